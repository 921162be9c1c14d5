package store

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/CraigglesO/mercator-to-s2/pkg/tile"
)

// HTTPSource reads source tiles from a web map service. The URL template
// holds {z}, {x} and {y} placeholders, plus optionally {s} for subdomain
// rotation. A 404 counts as an absent tile and falls through to the
// background color; every other non-200 status is an error.
type HTTPSource struct {
	template  string
	userAgent string
	headers   map[string]string
	client    *http.Client
}

// NewHTTPSource creates a source fetching tiles via the URL template.
func NewHTTPSource(template, userAgent string) *HTTPSource {
	if userAgent == "" {
		userAgent = "mercator-to-s2/1.0.0"
	}
	return &HTTPSource{
		template:  template,
		userAgent: userAgent,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHeader adds a header sent with every tile request.
func (s *HTTPSource) SetHeader(key, value string) {
	if s.headers == nil {
		s.headers = make(map[string]string)
	}
	s.headers[key] = value
}

// ReadTile fetches and decodes one source tile.
func (s *HTTPSource) ReadTile(zoom, x, y int) (*tile.Raster, tile.Metadata, error) {
	url := buildTileURL(s.template, zoom, x, y)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, tile.Metadata{}, errors.Wrapf(err, "building request for %s", url)
	}
	req.Header.Set("User-Agent", s.userAgent)
	for key, value := range s.headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, tile.Metadata{}, errors.Wrapf(err, "fetching %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, tile.Metadata{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, tile.Metadata{}, errors.Errorf("fetching %s: HTTP %d: %s", url, resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, tile.Metadata{}, errors.Wrapf(err, "reading %s", url)
	}

	r, meta, err := tile.DecodeImage(data)
	if err != nil {
		return nil, tile.Metadata{}, errors.Wrapf(err, "decoding %s", url)
	}
	return r, meta, nil
}

// buildTileURL replaces URL template tokens.
func buildTileURL(template string, zoom, x, y int) string {
	url := template
	url = strings.ReplaceAll(url, "{z}", strconv.Itoa(zoom))
	url = strings.ReplaceAll(url, "{x}", strconv.Itoa(x))
	url = strings.ReplaceAll(url, "{y}", strconv.Itoa(y))
	// Handle {s} for subdomains (simple implementation)
	if strings.Contains(url, "{s}") {
		subdomain := string(rune('a' + (x+y)%3))
		url = strings.ReplaceAll(url, "{s}", subdomain)
	}
	return url
}
