// Package engine drives the reprojection pipeline: a queue of cube-face
// tile descriptors drained by a pool of workers, each pulling output
// pixels back through the sphere into a mercator source pyramid.
package engine

import (
	"fmt"
	"runtime"

	"github.com/CraigglesO/mercator-to-s2/pkg/proj"
	"github.com/CraigglesO/mercator-to-s2/pkg/tile"
)

// Config is the immutable run configuration, snapshotted once at startup
// and shared read-only by every worker.
type Config struct {
	// InputZoom is the zoom level of the source mercator pyramid.
	InputZoom int
	// OutputZoom is the zoom level of the cube pyramid to build.
	OutputZoom int
	// TileSize is the edge length of both source and output tiles.
	TileSize int
	// TMSStyle flips source pixel rows so row zero is the south edge.
	TMSStyle bool
	// SRS selects how source rows are spaced (900913 or WGS84).
	SRS proj.SRS
	// Background fills output pixels whose source tile does not exist.
	Background tile.RGBA
	// Workers caps the pool size; it is clamped to the CPU count.
	Workers int
	// FailFast stops handing out new tiles after the first failure.
	// Default is off: the run keeps going and reports failures at the end.
	FailFast bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		InputZoom:  2,
		OutputZoom: 0,
		TileSize:   tile.DefaultSize,
		TMSStyle:   true,
		SRS:        proj.SRSSphericalMercator,
		Background: tile.RGBA{9, 8, 17, 255},
		Workers:    runtime.NumCPU(),
	}
}

// Validate checks the invariants the pixel pipeline relies on.
func (c Config) Validate() error {
	if c.TileSize <= 0 {
		return fmt.Errorf("tile size must be positive, got %d", c.TileSize)
	}
	if c.InputZoom < 0 || c.InputZoom > tile.MaxZoom {
		return fmt.Errorf("input zoom %d outside [0, %d]", c.InputZoom, tile.MaxZoom)
	}
	if c.OutputZoom < 0 || c.OutputZoom > tile.MaxZoom {
		return fmt.Errorf("output zoom %d outside [0, %d]", c.OutputZoom, tile.MaxZoom)
	}
	if !c.SRS.Valid() {
		return fmt.Errorf("unknown srs %q", c.SRS)
	}
	if c.Workers < 1 {
		return fmt.Errorf("need at least one worker, got %d", c.Workers)
	}
	return nil
}

// pyramid returns the source pixel addressing for this configuration.
func (c Config) pyramid() proj.Pyramid {
	return proj.Pyramid{
		Zoom:     c.InputZoom,
		TileSize: c.TileSize,
		TMS:      c.TMSStyle,
		SRS:      c.SRS,
	}
}
