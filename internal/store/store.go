// Package store persists tile pyramids: a plain directory tree laid out
// as {zoom}/{x}/{y}.png (plus a face level for cube tiles), and a
// GeoPackage container for sqlite-backed pyramids.
package store

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/CraigglesO/mercator-to-s2/pkg/tile"
)

// SourceStore resolves rasters of the source mercator pyramid. A missing
// tile is a normal condition: implementations return a nil raster and no
// error for it.
type SourceStore interface {
	ReadTile(zoom, x, y int) (*tile.Raster, tile.Metadata, error)
}

// OutputStore persists built cube-face tiles.
type OutputStore interface {
	Exists(d tile.Descriptor) bool
	WriteTile(d tile.Descriptor, r *tile.Raster, meta tile.Metadata) error
}

// FS is the directory-tree tile store.
type FS struct{}

// Exists reports whether a tile file is present at path.
func (FS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadRaster loads and decodes the raster stored at path.
func (FS) ReadRaster(path string) (*tile.Raster, tile.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tile.Metadata{}, errors.Wrap(err, "reading raster")
	}
	r, meta, err := tile.DecodePNG(data)
	if err != nil {
		return nil, tile.Metadata{}, errors.Wrapf(err, "decoding %s", path)
	}
	return r, meta, nil
}

// EnsureDirectory creates path and any missing parents. An existing
// directory is success, also when two workers race on the same branch.
func (FS) EnsureDirectory(path string) error {
	return os.MkdirAll(path, 0o755)
}

// WriteRaster encodes the raster into a temporary sibling of path and
// renames it into place, so concurrent readers and resumed runs never see
// a partially written tile.
func (fs FS) WriteRaster(path string, r *tile.Raster, meta tile.Metadata) error {
	if err := fs.EnsureDirectory(filepath.Dir(path)); err != nil {
		return errors.Wrap(err, "creating tile directory")
	}

	tmp := path + "." + uuid.NewString() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "creating temp tile")
	}
	if err = tile.EncodePNG(f, r, meta); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "encoding tile")
	}
	if err = f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "closing temp tile")
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "publishing tile")
	}
	return nil
}

// FSSource reads a fixed-zoom mercator pyramid from a directory tree.
type FSSource struct {
	fs     FS
	Folder string
}

func NewFSSource(folder string) *FSSource {
	return &FSSource{Folder: folder}
}

func (s *FSSource) ReadTile(zoom, x, y int) (*tile.Raster, tile.Metadata, error) {
	path := tile.SourcePath(s.Folder, zoom, x, y)
	if !s.fs.Exists(path) {
		return nil, tile.Metadata{}, nil
	}
	return s.fs.ReadRaster(path)
}

// FSOutput writes the cube pyramid as {folder}/{face}/{zoom}/{x}/{y}.png.
type FSOutput struct {
	fs     FS
	Folder string
}

func NewFSOutput(folder string) *FSOutput {
	return &FSOutput{Folder: folder}
}

func (o *FSOutput) Exists(d tile.Descriptor) bool {
	return o.fs.Exists(tile.OutputPath(o.Folder, d))
}

func (o *FSOutput) WriteTile(d tile.Descriptor, r *tile.Raster, meta tile.Metadata) error {
	return o.fs.WriteRaster(tile.OutputPath(o.Folder, d), r, meta)
}
