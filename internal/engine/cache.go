package engine

import (
	"github.com/CraigglesO/mercator-to-s2/internal/store"
	"github.com/CraigglesO/mercator-to-s2/pkg/tile"
)

// sourceCache holds the decoded source rasters one output tile touches.
// Every worker owns one; nothing here is safe for concurrent use. The
// cache is flushed after each output tile, so peak memory stays at the
// handful of source tiles under the current output tile rather than the
// whole input pyramid.
type sourceCache struct {
	src        store.SourceStore
	zoom       int
	tileSize   int
	background tile.RGBA

	// rasters maps source keys to decoded tiles. A nil entry records an
	// absent tile, so the store is probed once per tile, not per pixel.
	rasters map[tile.SourceKey]*tile.Raster
	meta    tile.Metadata
	hasMeta bool
}

func newSourceCache(src store.SourceStore, zoom, tileSize int, background tile.RGBA) *sourceCache {
	return &sourceCache{
		src:        src,
		zoom:       zoom,
		tileSize:   tileSize,
		background: background,
		rasters:    make(map[tile.SourceKey]*tile.Raster),
	}
}

// resolve returns the pixel at offset (px, py) inside source tile (x, y),
// loading and caching the raster on first touch. Pixels of absent tiles
// resolve to the background color.
func (c *sourceCache) resolve(x, y, px, py int) (tile.RGBA, error) {
	key := tile.NewSourceKey(c.zoom, x, y)
	r, ok := c.rasters[key]
	if !ok {
		var err error
		r, err = c.load(x, y)
		if err != nil {
			return tile.RGBA{}, err
		}
		c.rasters[key] = r
	}
	if r == nil {
		return c.background, nil
	}
	return r.At(px, py), nil
}

func (c *sourceCache) load(x, y int) (*tile.Raster, error) {
	r, meta, err := c.src.ReadTile(c.zoom, x, y)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	if !c.hasMeta {
		c.meta = meta
		c.hasMeta = true
	}
	return tile.Rescale(r, c.tileSize), nil
}

// metadata returns the properties captured from the first source raster
// this output tile loaded, or the hard default when none was.
func (c *sourceCache) metadata() tile.Metadata {
	if c.hasMeta {
		return c.meta
	}
	return tile.DefaultMetadata()
}

// flush drops every cached raster and the captured metadata. Called once
// per completed output tile.
func (c *sourceCache) flush() {
	c.rasters = make(map[tile.SourceKey]*tile.Raster)
	c.meta = tile.Metadata{}
	c.hasMeta = false
}
