package server

import "time"

// StatusHealthy is the status value reported by a live server.
const StatusHealthy = "healthy"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    *int      `json:"uptime_seconds,omitempty"`
	Version   *string   `json:"version,omitempty"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error     string  `json:"error"`
	Message   string  `json:"message"`
	RequestId *string `json:"request_id,omitempty"`
}

// BuildRequest configures a reprojection run started over HTTP. Absent
// fields fall back to the serve command's configuration.
type BuildRequest struct {
	InputZoom  *int    `json:"input_zoom,omitempty"`
	Input      *string `json:"input,omitempty"`
	InputURL   *string `json:"input_url,omitempty"`
	OutputZoom *int    `json:"output_zoom,omitempty"`
	Output     *string `json:"output,omitempty"`
	TileSize   *int    `json:"tile_size,omitempty"`
	TMS        *bool   `json:"tms,omitempty"`
	SRS        *string `json:"srs,omitempty"`
	Background *string `json:"background,omitempty"`
	Workers    *int    `json:"workers,omitempty"`
	FailFast   *bool   `json:"fail_fast,omitempty"`
}

// BuildResponse reports the statistics of a finished run.
type BuildResponse struct {
	Built     int64   `json:"built"`
	Skipped   int64   `json:"skipped"`
	Failed    int64   `json:"failed"`
	Total     int64   `json:"total"`
	ElapsedMs int64   `json:"elapsed_ms"`
	RequestId *string `json:"request_id,omitempty"`
}

// LevelInfo describes one face/zoom level of the served pyramid.
type LevelInfo struct {
	Face  int `json:"face"`
	Zoom  int `json:"zoom"`
	Tiles int `json:"tiles"`
}

// InfoResponse describes the pyramid found under the served folder.
type InfoResponse struct {
	Folder string      `json:"folder"`
	Levels []LevelInfo `json:"levels"`
}
