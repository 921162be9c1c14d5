package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CraigglesO/mercator-to-s2/internal/store"
	"github.com/CraigglesO/mercator-to-s2/pkg/tile"
)

// testConfig is small enough that a full pyramid builds in milliseconds.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InputZoom = 0
	cfg.OutputZoom = 1
	cfg.TileSize = 2
	cfg.Workers = 2
	return cfg
}

func writeSourceTile(t *testing.T, folder string, zoom, x, y, size int, c tile.RGBA) {
	t.Helper()
	r := tile.NewRaster(size, size)
	r.Fill(c)
	var fs store.FS
	require.NoError(t, fs.WriteRaster(tile.SourcePath(folder, zoom, x, y), r, tile.DefaultMetadata()))
}

// failingSource errors on every read, so each worker dies on its first tile.
type failingSource struct{}

func (failingSource) ReadTile(zoom, x, y int) (*tile.Raster, tile.Metadata, error) {
	return nil, tile.Metadata{}, errors.New("source store down")
}

// poisonOutput fails the write of one specific descriptor.
type poisonOutput struct {
	store.OutputStore
	bad tile.Descriptor
}

func (p poisonOutput) WriteTile(d tile.Descriptor, r *tile.Raster, meta tile.Metadata) error {
	if d == p.bad {
		return errors.New("disk full")
	}
	return p.OutputStore.WriteTile(d, r, meta)
}

func TestRunBuildsFullPyramid(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	cfg := testConfig()
	writeSourceTile(t, in, 0, 0, 0, cfg.TileSize, tile.RGBA{100, 100, 100, 255})

	eng := New(cfg, store.NewFSSource(in), store.NewFSOutput(out))
	q := NewQueue(cfg.OutputZoom)
	stats, err := eng.Run(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, int64(24), stats.Built)
	assert.Equal(t, int64(0), stats.Skipped)
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, int64(24), stats.Total)

	for face := 0; face < tile.NumFaces; face++ {
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				d := tile.Descriptor{Face: face, Zoom: 1, X: x, Y: y}
				_, err := os.Stat(tile.OutputPath(out, d))
				assert.NoError(t, err, "missing output tile %s", d)
			}
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	cfg := testConfig()
	writeSourceTile(t, in, 0, 0, 0, cfg.TileSize, tile.RGBA{100, 100, 100, 255})

	eng := New(cfg, store.NewFSSource(in), store.NewFSOutput(out))
	_, err := eng.Run(context.Background(), NewQueue(cfg.OutputZoom))
	require.NoError(t, err)

	probe := tile.OutputPath(out, tile.Descriptor{Face: 3, Zoom: 1, X: 1, Y: 0})
	before, err := os.ReadFile(probe)
	require.NoError(t, err)

	stats, err := eng.Run(context.Background(), NewQueue(cfg.OutputZoom))
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Built)
	assert.Equal(t, int64(24), stats.Skipped)

	after, err := os.ReadFile(probe)
	require.NoError(t, err)
	assert.Equal(t, before, after, "existing tile was rewritten")
}

func TestRunResumesAroundExistingTiles(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	cfg := testConfig()
	writeSourceTile(t, in, 0, 0, 0, cfg.TileSize, tile.RGBA{100, 100, 100, 255})

	// A tile left behind by an earlier run must survive untouched, even
	// with content the pipeline would never produce.
	existing := tile.Descriptor{Face: 2, Zoom: 1, X: 0, Y: 1}
	path := tile.OutputPath(out, existing)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("sentinel"), 0o644))

	eng := New(cfg, store.NewFSSource(in), store.NewFSOutput(out))
	stats, err := eng.Run(context.Background(), NewQueue(cfg.OutputZoom))
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Skipped)
	assert.Equal(t, int64(23), stats.Built)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("sentinel"), data)
}

func TestRunReportsProgress(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	cfg := testConfig()
	writeSourceTile(t, in, 0, 0, 0, cfg.TileSize, tile.RGBA{100, 100, 100, 255})

	var got []Progress
	eng := New(cfg, store.NewFSSource(in), store.NewFSOutput(out),
		WithProgress(func(p Progress) { got = append(got, p) }))
	_, err := eng.Run(context.Background(), NewQueue(cfg.OutputZoom))
	require.NoError(t, err)

	require.Len(t, got, 24)
	for i, p := range got {
		assert.Equal(t, int64(i+1), p.Completed)
		assert.Equal(t, int64(24), p.Total)
	}
}

func TestRunMirrorsTiles(t *testing.T) {
	in, out, mirror := t.TempDir(), t.TempDir(), t.TempDir()
	cfg := testConfig()
	writeSourceTile(t, in, 0, 0, 0, cfg.TileSize, tile.RGBA{100, 100, 100, 255})

	eng := New(cfg, store.NewFSSource(in), store.NewFSOutput(out),
		WithMirror(store.NewFSOutput(mirror)))
	stats, err := eng.Run(context.Background(), NewQueue(cfg.OutputZoom))
	require.NoError(t, err)
	require.Equal(t, int64(24), stats.Built)

	d := tile.Descriptor{Face: 5, Zoom: 1, X: 1, Y: 1}
	want, err := os.ReadFile(tile.OutputPath(out, d))
	require.NoError(t, err)
	got, err := os.ReadFile(tile.OutputPath(mirror, d))
	require.NoError(t, err)
	assert.Equal(t, want, got, "mirror copy differs from primary")
}

func TestRunAllWorkersFailing(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 4

	eng := New(cfg, failingSource{}, store.NewFSOutput(t.TempDir()))
	stats, err := eng.Run(context.Background(), NewQueue(cfg.OutputZoom))

	require.Error(t, err)
	assert.Equal(t, int64(0), stats.Built)
	assert.Equal(t, int64(0), stats.Skipped)
	assert.GreaterOrEqual(t, stats.Failed, int64(1))
}

func TestRunSurvivesSingleFailure(t *testing.T) {
	if runtime.NumCPU() < 2 {
		t.Skip("needs at least two workers")
	}
	in, out := t.TempDir(), t.TempDir()
	cfg := testConfig()
	writeSourceTile(t, in, 0, 0, 0, cfg.TileSize, tile.RGBA{100, 100, 100, 255})

	bad := tile.Descriptor{Face: 0, Zoom: 1, X: 1, Y: 0}
	sink := poisonOutput{OutputStore: store.NewFSOutput(out), bad: bad}

	eng := New(cfg, store.NewFSSource(in), sink)
	stats, err := eng.Run(context.Background(), NewQueue(cfg.OutputZoom))

	// One unit dies on the poisoned tile; the rest of the pool finishes
	// the level and the run still reports success.
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(23), stats.Built)
	assert.NoFileExists(t, tile.OutputPath(out, bad))
}

func TestRunFailFast(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 2
	cfg.FailFast = true

	eng := New(cfg, failingSource{}, store.NewFSOutput(t.TempDir()))
	stats, err := eng.Run(context.Background(), NewQueue(cfg.OutputZoom))

	require.Error(t, err)
	assert.LessOrEqual(t, stats.Failed+stats.Built+stats.Skipped, int64(24))
}

func TestRunContextCancelled(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	cfg := testConfig()
	writeSourceTile(t, in, 0, 0, 0, cfg.TileSize, tile.RGBA{100, 100, 100, 255})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := New(cfg, store.NewFSSource(in), store.NewFSOutput(out))
	stats, err := eng.Run(ctx, NewQueue(cfg.OutputZoom))

	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, stats.Built+stats.Skipped+stats.Failed, int64(24))
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.TileSize = 0
	eng := New(cfg, failingSource{}, store.NewFSOutput(t.TempDir()))
	_, err := eng.Run(context.Background(), NewQueue(cfg.OutputZoom))
	require.Error(t, err)
}
