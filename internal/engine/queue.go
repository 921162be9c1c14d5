package engine

import "github.com/CraigglesO/mercator-to-s2/pkg/tile"

// Queue enumerates every descriptor of one cube pyramid zoom level, face
// by face, row by row. It is a single-pass sequence: once drained it stays
// empty, and a run consumes each descriptor exactly once.
type Queue struct {
	zoom int
	face int
	x, y int
	done bool
}

// NewQueue starts the enumeration for the given zoom level.
func NewQueue(zoom int) *Queue {
	return &Queue{zoom: zoom}
}

// Total returns the number of descriptors the queue yields, 6·4^zoom.
func (q *Queue) Total() int64 {
	return int64(tile.NumFaces) << uint(2*q.zoom)
}

// Next returns the following descriptor, or ok=false once the level is
// exhausted. Not safe for concurrent use; the dispatcher owns the queue.
func (q *Queue) Next() (d tile.Descriptor, ok bool) {
	if q.done {
		return tile.Descriptor{}, false
	}
	d = tile.Descriptor{Face: q.face, Zoom: q.zoom, X: q.x, Y: q.y}

	n := 1 << uint(q.zoom)
	q.x++
	if q.x == n {
		q.x = 0
		q.y++
		if q.y == n {
			q.y = 0
			q.face++
			if q.face == tile.NumFaces {
				q.done = true
			}
		}
	}
	return d, true
}
