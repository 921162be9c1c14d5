// Package proj holds the projection math the reprojection pipeline rests
// on: the S2 cube-face parametrisation of the sphere on one side and the
// mercator pixel pyramid on the other.
package proj

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
)

// CellBoundsST returns the ST bounding box (s0, t0)–(s1, t1) of quadtree
// cell (x, y) at the given zoom on a cube face: the unit square split into
// 2^zoom columns and rows.
func CellBoundsST(x, y, zoom int) (s0, t0, s1, t1 float64) {
	n := float64(uint64(1) << uint(zoom))
	return float64(x) / n, float64(y) / n, float64(x+1) / n, float64(y+1) / n
}

// STToUV converts a cell-space coordinate in [0,1] to the face coordinate
// in [-1,1] using the S2 quadratic transform, which keeps cell areas close
// to uniform once projected onto the sphere.
func STToUV(s float64) float64 {
	if s >= 0.5 {
		return (1 / 3.) * (4*s*s - 1)
	}
	return (1 / 3.) * (1 - 4*(1-s)*(1-s))
}

// UVToST inverts STToUV.
func UVToST(u float64) float64 {
	if u >= 0 {
		return 0.5 * math.Sqrt(1+3*u)
	}
	return 1 - 0.5*math.Sqrt(1-3*u)
}

// FaceUVToXYZ maps face coordinates to the corresponding point on the cube
// circumscribing the unit sphere. Faces follow the S2 order: 0 +x, 1 +y,
// 2 +z, 3 -x, 4 -y, 5 -z. The result is not normalized.
func FaceUVToXYZ(face int, u, v float64) r3.Vector {
	switch face {
	case 0:
		return r3.Vector{X: 1, Y: u, Z: v}
	case 1:
		return r3.Vector{X: -u, Y: 1, Z: v}
	case 2:
		return r3.Vector{X: -u, Y: -v, Z: 1}
	case 3:
		return r3.Vector{X: -1, Y: -v, Z: -u}
	case 4:
		return r3.Vector{X: v, Y: -1, Z: -u}
	default:
		return r3.Vector{X: v, Y: u, Z: -1}
	}
}

// FaceXYZToUV projects a point onto the given face plane, returning its
// (u, v) coordinates there. It assumes the point actually lies over that
// face (the matching axis component is nonzero).
func FaceXYZToUV(face int, p r3.Vector) (u, v float64) {
	switch face {
	case 0:
		return p.Y / p.X, p.Z / p.X
	case 1:
		return -p.X / p.Y, p.Z / p.Y
	case 2:
		return -p.X / p.Z, -p.Y / p.Z
	case 3:
		return p.Z / p.X, p.Y / p.X
	case 4:
		return p.Z / p.Y, -p.X / p.Y
	default:
		return -p.Y / p.Z, -p.X / p.Z
	}
}

// FaceXYZ returns the face whose axis is closest to the direction of p,
// with the (u, v) coordinates of p on that face.
func FaceXYZ(p r3.Vector) (face int, u, v float64) {
	ax, ay, az := math.Abs(p.X), math.Abs(p.Y), math.Abs(p.Z)
	switch {
	case ax >= ay && ax >= az:
		face = 0
		if p.X < 0 {
			face = 3
		}
	case ay >= az:
		face = 1
		if p.Y < 0 {
			face = 4
		}
	default:
		face = 2
		if p.Z < 0 {
			face = 5
		}
	}
	u, v = FaceXYZToUV(face, p)
	return face, u, v
}

// FaceSTToPoint projects cell-space (s, t) on a face onto the unit sphere.
func FaceSTToPoint(face int, s, t float64) s2.Point {
	return s2.Point{Vector: FaceUVToXYZ(face, STToUV(s), STToUV(t)).Normalize()}
}

// LonLatDegrees converts a sphere point to geographic coordinates with the
// longitude folded into [-180, 180].
func LonLatDegrees(p s2.Point) (lon, lat float64) {
	ll := s2.LatLngFromPoint(p).Normalized()
	return ll.Lng.Degrees(), ll.Lat.Degrees()
}
