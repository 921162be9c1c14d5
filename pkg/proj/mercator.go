package proj

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// SRS selects how the source pyramid addresses pixels vertically.
type SRS string

const (
	// SRSSphericalMercator is the usual web-mercator ("900913", EPSG:3857)
	// pyramid.
	SRSSphericalMercator SRS = "900913"
	// SRSWGS84 spaces rows linearly in geographic latitude instead.
	SRSWGS84 SRS = "WGS84"
)

// Valid reports whether s names a supported addressing scheme.
func (s SRS) Valid() bool {
	return s == SRSSphericalMercator || s == SRSWGS84
}

// MaxLatitude is the north/south edge of the source pixel domain.
// Latitudes beyond it are clamped onto the edge, never rejected, so the
// cube faces covering the poles still resolve to source pixels.
const MaxLatitude = 85.05

// ClampLatitude pins a latitude into [-MaxLatitude, MaxLatitude].
func ClampLatitude(lat float64) float64 {
	if lat > MaxLatitude {
		return MaxLatitude
	}
	if lat < -MaxLatitude {
		return -MaxLatitude
	}
	return lat
}

// Pyramid addresses the pixels of a square tile pyramid at one fixed zoom.
type Pyramid struct {
	Zoom     int
	TileSize int
	TMS      bool
	SRS      SRS
}

// MapSize returns the pixel edge length of the full pyramid raster,
// 2^zoom · tileSize.
func (p Pyramid) MapSize() int {
	return (1 << uint(p.Zoom)) * p.TileSize
}

// Pixel maps geographic coordinates to an absolute pixel address in the
// pyramid raster. The longitude is expected in [-180, 180]; the latitude
// is clamped into the mercator domain first. Addresses at the east and
// south domain edges can land exactly one pixel past the raster; callers
// clamp into [0, MapSize).
func (p Pyramid) Pixel(lon, lat float64) (px, py int) {
	lat = ClampLatitude(lat)
	size := float64(p.MapSize())

	var fx, fy float64
	if p.SRS == SRSWGS84 {
		fx = (lon + 180) / 360 * size
		fy = (0.5 - lat/180) * size
	} else {
		f := maptile.Fraction(orb.Point{lon, lat}, maptile.Zoom(p.Zoom))
		fx = f[0] * float64(p.TileSize)
		fy = f[1] * float64(p.TileSize)
	}
	if p.TMS {
		fy = size - fy
	}
	return int(math.Floor(fx)), int(math.Floor(fy))
}
