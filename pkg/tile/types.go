package tile

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// NumFaces is the number of cube faces in the output pyramid.
	NumFaces = 6

	// DefaultSize is the default tile edge length in pixels.
	DefaultSize = 512

	// MaxZoom bounds the zoom levels a SourceKey can encode. The key packs
	// 2·zoom coordinate bits above a five-bit zoom field; that fits 64 bits
	// only through zoom 29, beyond it the packing would wrap and alias
	// distinct tiles.
	MaxZoom = 29
)

// Descriptor identifies one tile of the cube-face pyramid.
type Descriptor struct {
	Face int
	Zoom int
	X    int
	Y    int
}

// Valid reports whether the descriptor addresses a real tile: a known face
// and x/y inside the 2^zoom grid.
func (d Descriptor) Valid() bool {
	if d.Face < 0 || d.Face >= NumFaces || d.Zoom < 0 || d.Zoom > MaxZoom {
		return false
	}
	n := 1 << uint(d.Zoom)
	return d.X >= 0 && d.X < n && d.Y >= 0 && d.Y < n
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%d/%d/%d/%d", d.Face, d.Zoom, d.X, d.Y)
}

// SourceKey identifies one source (mercator) tile. The encoding packs the
// zoom into the low five bits and the row-major tile index above them:
//
//	key = (2^zoom·y + x)·32 + zoom
//
// which is collision-free for all x, y < 2^zoom and zoom <= MaxZoom.
type SourceKey uint64

// NewSourceKey derives the cache key for source tile (x, y) at zoom.
func NewSourceKey(zoom, x, y int) SourceKey {
	idx := uint64(1)<<uint(zoom)*uint64(y) + uint64(x)
	return SourceKey(idx*32 + uint64(zoom))
}

// Zoom returns the zoom level encoded in the key.
func (k SourceKey) Zoom() int { return int(k & 31) }

// Tile returns the tile coordinates encoded in the key.
func (k SourceKey) Tile() (x, y int) {
	idx := uint64(k) / 32
	n := uint64(1) << uint(k.Zoom())
	return int(idx % n), int(idx / n)
}

// RGBA is one 8-bit-per-channel pixel value, not premultiplied.
type RGBA [4]byte

// ParseRGBA parses a color given as "r,g,b,a" with channels in [0,255].
func ParseRGBA(s string) (RGBA, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return RGBA{}, fmt.Errorf("color must be 'r,g,b,a', got %q", s)
	}
	var c RGBA
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return RGBA{}, fmt.Errorf("invalid channel %q in color %q", part, s)
		}
		if v < 0 || v > 255 {
			return RGBA{}, fmt.Errorf("channel %d out of range in color %q", v, s)
		}
		c[i] = byte(v)
	}
	return c, nil
}

// SourcePath returns the on-disk location of a source pyramid tile:
// {folder}/{zoom}/{x}/{y}.png.
func SourcePath(folder string, zoom, x, y int) string {
	return filepath.Join(folder, strconv.Itoa(zoom), strconv.Itoa(x), strconv.Itoa(y)+".png")
}

// OutputPath returns the on-disk location of a cube pyramid tile:
// {folder}/{face}/{zoom}/{x}/{y}.png.
func OutputPath(folder string, d Descriptor) string {
	return filepath.Join(folder,
		strconv.Itoa(d.Face), strconv.Itoa(d.Zoom), strconv.Itoa(d.X), strconv.Itoa(d.Y)+".png")
}
