package engine

import (
	"fmt"

	"github.com/CraigglesO/mercator-to-s2/internal/store"
	"github.com/CraigglesO/mercator-to-s2/pkg/proj"
	"github.com/CraigglesO/mercator-to-s2/pkg/tile"
)

// Reprojector builds single cube-face tiles. For every output pixel it
// walks the inverse of the rendering direction: face-local (s, t) onto the
// sphere, down to geographic coordinates, into the mercator pixel pyramid,
// and finally into a source tile plus offset.
type Reprojector struct {
	cfg    Config
	pyr    proj.Pyramid
	maxPix int
	cache  *sourceCache
	out    store.OutputStore
}

// NewReprojector binds a reprojector to its stores. Each worker gets its
// own instance; nothing here is safe for concurrent use.
func NewReprojector(cfg Config, src store.SourceStore, out store.OutputStore) *Reprojector {
	pyr := cfg.pyramid()
	return &Reprojector{
		cfg:    cfg,
		pyr:    pyr,
		maxPix: pyr.MapSize(),
		cache:  newSourceCache(src, cfg.InputZoom, cfg.TileSize, cfg.Background),
		out:    out,
	}
}

// Reproject produces the raster for one descriptor. A nil raster with a
// nil error means the tile was skipped: it already exists in the output
// store, or it is addressed at a zoom this run is not building.
func (r *Reprojector) Reproject(d tile.Descriptor) (*tile.Raster, tile.Metadata, error) {
	if d.Zoom != r.cfg.OutputZoom {
		return nil, tile.Metadata{}, nil
	}
	if r.out.Exists(d) {
		return nil, tile.Metadata{}, nil
	}

	size := r.cfg.TileSize
	out := tile.NewRaster(size, size)

	s0, t0, s1, t1 := proj.CellBoundsST(d.X, d.Y, d.Zoom)
	ds := (s1 - s0) / float64(size)
	dt := (t1 - t0) / float64(size)

	for j := 0; j < size; j++ {
		t := t0 + float64(j)*dt
		// t grows northwards, raster rows grow downwards
		row := size - 1 - j
		for i := 0; i < size; i++ {
			s := s0 + float64(i)*ds

			lon, lat := proj.LonLatDegrees(proj.FaceSTToPoint(d.Face, s, t))
			px, py := r.pyr.Pixel(lon, lat)
			px = clamp(px, 0, r.maxPix-1)
			py = clamp(py, 0, r.maxPix-1)

			c, err := r.cache.resolve(px/size, py/size, px%size, py%size)
			if err != nil {
				return nil, tile.Metadata{}, fmt.Errorf("reprojecting %s: %w", d, err)
			}
			out.Set(i, row, c)
		}
	}

	meta := r.cache.metadata()
	r.cache.flush()
	return out, meta, nil
}

// clamp pins v into [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
