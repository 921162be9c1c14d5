package engine

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CraigglesO/mercator-to-s2/pkg/proj"
	"github.com/CraigglesO/mercator-to-s2/pkg/tile"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2, cfg.InputZoom)
	assert.Equal(t, 0, cfg.OutputZoom)
	assert.Equal(t, 512, cfg.TileSize)
	assert.True(t, cfg.TMSStyle)
	assert.Equal(t, proj.SRSSphericalMercator, cfg.SRS)
	assert.Equal(t, tile.RGBA{9, 8, 17, 255}, cfg.Background)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.False(t, cfg.FailFast)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tile size", func(c *Config) { c.TileSize = 0 }},
		{"negative tile size", func(c *Config) { c.TileSize = -8 }},
		{"negative input zoom", func(c *Config) { c.InputZoom = -1 }},
		{"input zoom too deep", func(c *Config) { c.InputZoom = tile.MaxZoom + 1 }},
		{"negative output zoom", func(c *Config) { c.OutputZoom = -1 }},
		{"output zoom too deep", func(c *Config) { c.OutputZoom = 40 }},
		{"unknown srs", func(c *Config) { c.SRS = "EPSG:31337" }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
