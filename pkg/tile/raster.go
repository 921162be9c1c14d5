package tile

import "image"

// Raster is a width×height RGBA pixel buffer, row-major, top row first.
type Raster struct {
	Pix    []byte
	Width  int
	Height int
}

// NewRaster allocates a zeroed (fully transparent) raster.
func NewRaster(width, height int) *Raster {
	return &Raster{
		Pix:    make([]byte, width*height*4),
		Width:  width,
		Height: height,
	}
}

// At returns the pixel at (x, y). Out-of-bounds reads return the zero value.
func (r *Raster) At(x, y int) RGBA {
	if x < 0 || x >= r.Width || y < 0 || y >= r.Height {
		return RGBA{}
	}
	i := (y*r.Width + x) * 4
	return RGBA{r.Pix[i], r.Pix[i+1], r.Pix[i+2], r.Pix[i+3]}
}

// Set writes the pixel at (x, y). Out-of-bounds writes are dropped.
func (r *Raster) Set(x, y int, c RGBA) {
	if x < 0 || x >= r.Width || y < 0 || y >= r.Height {
		return
	}
	i := (y*r.Width + x) * 4
	r.Pix[i], r.Pix[i+1], r.Pix[i+2], r.Pix[i+3] = c[0], c[1], c[2], c[3]
}

// Fill sets every pixel to c.
func (r *Raster) Fill(c RGBA) {
	for i := 0; i < len(r.Pix); i += 4 {
		r.Pix[i], r.Pix[i+1], r.Pix[i+2], r.Pix[i+3] = c[0], c[1], c[2], c[3]
	}
}

// nrgba wraps the buffer as a stdlib image without copying.
func (r *Raster) nrgba() *image.NRGBA {
	return &image.NRGBA{
		Pix:    r.Pix,
		Stride: r.Width * 4,
		Rect:   image.Rect(0, 0, r.Width, r.Height),
	}
}

// PNG color types as stored in the IHDR chunk.
const (
	ColorTypeGray      = 0
	ColorTypeRGB       = 2
	ColorTypePaletted  = 3
	ColorTypeGrayAlpha = 4
	ColorTypeRGBA      = 6
)

// Metadata carries the persistence properties of a raster. The pipeline
// captures it from the first source tile decoded for an output tile and
// hands it back unchanged when that output tile is written.
type Metadata struct {
	BitDepth   uint8
	ColorType  uint8
	Interlaced bool
}

// DefaultMetadata is used for output tiles that never sampled a source
// raster: 8-bit truecolor with alpha, non-interlaced.
func DefaultMetadata() Metadata {
	return Metadata{BitDepth: 8, ColorType: ColorTypeRGBA}
}

// HasPalette reports whether the raster was palette-indexed.
func (m Metadata) HasPalette() bool { return m.ColorType&1 != 0 }

// HasAlpha reports whether the raster carried an alpha channel.
func (m Metadata) HasAlpha() bool { return m.ColorType&4 != 0 }
