package tile

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	xdraw "golang.org/x/image/draw"
)

// pngMagic is the 8-byte PNG signature.
var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// jpegMagic is the 2-byte JPEG start-of-image marker.
var jpegMagic = []byte{0xFF, 0xD8}

// DecodePNG decodes a PNG byte stream into an RGBA raster plus the
// persistence metadata read from its IHDR chunk.
func DecodePNG(data []byte) (*Raster, Metadata, error) {
	meta, err := SniffMetadata(data)
	if err != nil {
		return nil, Metadata{}, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("decoding png: %w", err)
	}

	bounds := img.Bounds()
	r := NewRaster(bounds.Dx(), bounds.Dy())
	xdraw.Draw(r.nrgba(), r.nrgba().Rect, img, bounds.Min, xdraw.Src)
	return r, meta, nil
}

// DecodeImage decodes a PNG or JPEG byte stream, sniffed by its magic
// bytes. JPEG has no IHDR to carry over, so decoded JPEGs report plain
// 8-bit truecolor.
func DecodeImage(data []byte) (*Raster, Metadata, error) {
	if len(data) >= len(pngMagic) && bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return DecodePNG(data)
	}
	if len(data) >= len(jpegMagic) && bytes.Equal(data[:len(jpegMagic)], jpegMagic) {
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, Metadata{}, fmt.Errorf("decoding jpeg: %w", err)
		}
		bounds := img.Bounds()
		r := NewRaster(bounds.Dx(), bounds.Dy())
		xdraw.Draw(r.nrgba(), r.nrgba().Rect, img, bounds.Min, xdraw.Src)
		return r, Metadata{BitDepth: 8, ColorType: ColorTypeRGB}, nil
	}
	return nil, Metadata{}, fmt.Errorf("unrecognized image format")
}

// SniffMetadata reads bit depth, color type and interlacing out of a PNG
// IHDR chunk without decoding the pixel data.
func SniffMetadata(data []byte) (Metadata, error) {
	// 8 signature bytes, 4 chunk length, 4 chunk type, 13 IHDR fields.
	if len(data) < 29 || !bytes.Equal(data[:8], pngMagic) {
		return Metadata{}, fmt.Errorf("not a png stream")
	}
	if !bytes.Equal(data[12:16], []byte("IHDR")) {
		return Metadata{}, fmt.Errorf("malformed png: IHDR is not the first chunk")
	}
	return Metadata{
		BitDepth:   data[24],
		ColorType:  data[25],
		Interlaced: data[28] != 0,
	}, nil
}

// EncodePNG writes the raster as a PNG stream. meta is advisory only:
// the stdlib encoder cannot be forced onto a color model and picks the
// smallest one covering the pixel data itself, so an opaque buffer read
// from alpha-less sources round-trips back to plain truecolor.
func EncodePNG(w io.Writer, r *Raster, meta Metadata) error {
	return png.Encode(w, r.nrgba())
}

// Rescale resamples the raster to size×size. Rasters already at the target
// size are returned as-is; anything else is brought to it with bilinear
// interpolation so off-size source tiles still line up with the pyramid
// pixel grid.
func Rescale(r *Raster, size int) *Raster {
	if r.Width == size && r.Height == size {
		return r
	}
	out := NewRaster(size, size)
	xdraw.ApproxBiLinear.Scale(out.nrgba(), image.Rect(0, 0, size, size), r.nrgba(), r.nrgba().Rect, xdraw.Src, nil)
	return out
}
