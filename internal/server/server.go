package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CraigglesO/mercator-to-s2/internal/engine"
	"github.com/CraigglesO/mercator-to-s2/internal/log"
	"github.com/CraigglesO/mercator-to-s2/internal/store"
	"github.com/CraigglesO/mercator-to-s2/pkg/proj"
	"github.com/CraigglesO/mercator-to-s2/pkg/tile"
)

// Server exposes a built cube pyramid over HTTP along with a build
// trigger that runs the reprojection pipeline on demand.
type Server struct {
	startTime time.Time
	version   string
	folder    string        // cube pyramid served from disk
	input     string        // default source folder for build requests
	base      engine.Config // defaults a build request starts from
}

// NewServer creates a server serving tiles from folder. Build requests
// read Mercator tiles from input unless they override it.
func NewServer(version, folder, input string, base engine.Config) *Server {
	return &Server{
		startTime: time.Now(),
		version:   version,
		folder:    folder,
		input:     input,
		base:      base,
	}
}

// Routes registers the API endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/tiles/{face}/{zoom}/{x}/{y}", s.GetTile)
	r.Post("/build", s.CreateBuild)
}

// GetHealth implements the health check endpoint.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error("encoding health response", zap.Error(err))
	}
}

// GetTile streams one stored cube tile as image/png.
func (s *Server) GetTile(w http.ResponseWriter, r *http.Request) {
	d, err := descriptorFromURL(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_TILE", err.Error(), nil)
		return
	}

	f, err := os.Open(tile.OutputPath(s.folder, d))
	if os.IsNotExist(err) {
		s.writeErrorResponse(w, http.StatusNotFound, "TILE_NOT_FOUND",
			fmt.Sprintf("tile %s has not been built", d), nil)
		return
	}
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"could not open tile", nil)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		log.Error("writing tile response", zap.Stringer("tile", d), zap.Error(err))
	}
}

// descriptorFromURL parses /tiles/{face}/{zoom}/{x}/{y}. A trailing
// .png on the row segment is accepted and stripped.
func descriptorFromURL(r *http.Request) (tile.Descriptor, error) {
	var d tile.Descriptor
	var err error
	if d.Face, err = strconv.Atoi(chi.URLParam(r, "face")); err != nil {
		return d, fmt.Errorf("invalid face: %v", err)
	}
	if d.Zoom, err = strconv.Atoi(chi.URLParam(r, "zoom")); err != nil {
		return d, fmt.Errorf("invalid zoom: %v", err)
	}
	if d.X, err = strconv.Atoi(chi.URLParam(r, "x")); err != nil {
		return d, fmt.Errorf("invalid x: %v", err)
	}
	y := strings.TrimSuffix(chi.URLParam(r, "y"), ".png")
	if d.Y, err = strconv.Atoi(y); err != nil {
		return d, fmt.Errorf("invalid y: %v", err)
	}
	if !d.Valid() {
		return d, fmt.Errorf("tile %s outside the pyramid", d)
	}
	return d, nil
}

// GetInfo reports which face and zoom levels exist under the served
// folder and how many tiles each holds.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	info := InfoResponse{Folder: s.folder, Levels: []LevelInfo{}}

	for face := 0; face < tile.NumFaces; face++ {
		faceDir := filepath.Join(s.folder, strconv.Itoa(face))
		zooms, err := os.ReadDir(faceDir)
		if err != nil {
			continue
		}
		for _, z := range zooms {
			if !z.IsDir() {
				continue
			}
			zoom, err := strconv.Atoi(z.Name())
			if err != nil {
				continue
			}
			count := countTiles(filepath.Join(faceDir, z.Name()))
			if count > 0 {
				info.Levels = append(info.Levels, LevelInfo{Face: face, Zoom: zoom, Tiles: count})
			}
		}
	}
	sort.Slice(info.Levels, func(i, j int) bool {
		if info.Levels[i].Face != info.Levels[j].Face {
			return info.Levels[i].Face < info.Levels[j].Face
		}
		return info.Levels[i].Zoom < info.Levels[j].Zoom
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(info); err != nil {
		log.Error("encoding info response", zap.Error(err))
	}
}

// countTiles counts the .png files under one {face}/{zoom} directory.
func countTiles(zoomDir string) int {
	count := 0
	cols, err := os.ReadDir(zoomDir)
	if err != nil {
		return 0
	}
	for _, col := range cols {
		if !col.IsDir() {
			continue
		}
		rows, err := os.ReadDir(filepath.Join(zoomDir, col.Name()))
		if err != nil {
			continue
		}
		for _, row := range rows {
			if strings.HasSuffix(row.Name(), ".png") {
				count++
			}
		}
	}
	return count
}

// CreateBuild runs the reprojection pipeline with the posted overrides
// applied on top of the server's defaults. The request blocks until
// the run finishes and responds with its statistics.
func (s *Server) CreateBuild(w http.ResponseWriter, r *http.Request) {
	requestID := generateRequestID()

	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON",
			"Invalid JSON in request body", &requestID)
		return
	}

	cfg, src, output, err := s.resolveBuild(&req)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST",
			err.Error(), &requestID)
		return
	}

	log.Info("starting build",
		zap.String("request_id", requestID),
		zap.String("output", output),
		zap.Int("output_zoom", cfg.OutputZoom))

	eng := engine.New(cfg, src, store.NewFSOutput(output))
	stats, err := eng.Run(r.Context(), engine.NewQueue(cfg.OutputZoom))
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "BUILD_FAILED",
			err.Error(), &requestID)
		return
	}

	response := BuildResponse{
		Built:     stats.Built,
		Skipped:   stats.Skipped,
		Failed:    stats.Failed,
		Total:     stats.Total,
		ElapsedMs: stats.Elapsed.Milliseconds(),
		RequestId: &requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error("encoding build response", zap.Error(err))
	}
}

// resolveBuild overlays the request fields on the serve defaults,
// validates the result and picks the source store.
func (s *Server) resolveBuild(req *BuildRequest) (engine.Config, store.SourceStore, string, error) {
	cfg := s.base
	input := s.input
	inputURL := ""
	output := s.folder

	if req.InputZoom != nil {
		cfg.InputZoom = *req.InputZoom
	}
	if req.Input != nil {
		input = *req.Input
	}
	if req.InputURL != nil {
		inputURL = *req.InputURL
	}
	if req.OutputZoom != nil {
		cfg.OutputZoom = *req.OutputZoom
	}
	if req.Output != nil {
		output = *req.Output
	}
	if req.TileSize != nil {
		cfg.TileSize = *req.TileSize
	}
	if req.TMS != nil {
		cfg.TMSStyle = *req.TMS
	}
	if req.SRS != nil {
		cfg.SRS = proj.SRS(*req.SRS)
	}
	if req.Background != nil {
		c, err := tile.ParseRGBA(*req.Background)
		if err != nil {
			return cfg, nil, "", err
		}
		cfg.Background = c
	}
	if req.Workers != nil {
		cfg.Workers = *req.Workers
	}
	if req.FailFast != nil {
		cfg.FailFast = *req.FailFast
	}

	if err := cfg.Validate(); err != nil {
		return cfg, nil, "", err
	}
	if inputURL != "" {
		return cfg, store.NewHTTPSource(inputURL, ""), output, nil
	}
	if input == "" {
		return cfg, nil, "", fmt.Errorf("input folder is required")
	}
	return cfg, store.NewFSSource(input), output, nil
}

// writeErrorResponse writes a standardized error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string) {
	response := ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error("encoding error response", zap.Error(err))
	}
}

// generateRequestID generates a unique request identifier.
func generateRequestID() string {
	return uuid.NewString()
}
