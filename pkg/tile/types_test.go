package tile

import (
	"path/filepath"
	"testing"
)

func TestSourceKeyFormula(t *testing.T) {
	// (2^2·3 + 1)·32 + 2
	if got := NewSourceKey(2, 1, 3); got != 418 {
		t.Errorf("NewSourceKey(2, 1, 3) = %d, want 418", got)
	}
	if got := NewSourceKey(0, 0, 0); got != 0 {
		t.Errorf("NewSourceKey(0, 0, 0) = %d, want 0", got)
	}
}

func TestSourceKeyRoundTrip(t *testing.T) {
	for zoom := 0; zoom <= 4; zoom++ {
		n := 1 << uint(zoom)
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				k := NewSourceKey(zoom, x, y)
				if k.Zoom() != zoom {
					t.Fatalf("key %d: zoom = %d, want %d", k, k.Zoom(), zoom)
				}
				gx, gy := k.Tile()
				if gx != x || gy != y {
					t.Fatalf("key %d: tile = (%d, %d), want (%d, %d)", k, gx, gy, x, y)
				}
			}
		}
	}
}

func TestSourceKeyUnique(t *testing.T) {
	seen := make(map[SourceKey]bool)
	for zoom := 0; zoom <= 3; zoom++ {
		n := 1 << uint(zoom)
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				k := NewSourceKey(zoom, x, y)
				if seen[k] {
					t.Fatalf("key collision at zoom=%d x=%d y=%d: %d", zoom, x, y, k)
				}
				seen[k] = true
			}
		}
	}
}

func TestSourceKeyMaxZoomNoWrap(t *testing.T) {
	// The deepest supported level packs 2·MaxZoom+5 bits; extreme
	// coordinates must still yield distinct keys and round-trip intact
	// rather than wrapping past 64 bits.
	edge := 1<<uint(MaxZoom) - 1
	tiles := [][2]int{
		{0, 0},
		{edge, 0},
		{0, edge},
		{edge, edge},
		{0, 1 << uint(MaxZoom-1)},
		{1 << uint(MaxZoom-1), edge},
	}
	seen := make(map[SourceKey][2]int)
	for _, tl := range tiles {
		k := NewSourceKey(MaxZoom, tl[0], tl[1])
		if prev, dup := seen[k]; dup {
			t.Fatalf("key %d shared by tiles %v and %v", k, prev, tl)
		}
		seen[k] = tl

		if k.Zoom() != MaxZoom {
			t.Errorf("key %d: zoom = %d, want %d", k, k.Zoom(), MaxZoom)
		}
		if x, y := k.Tile(); x != tl[0] || y != tl[1] {
			t.Errorf("key %d: tile = (%d, %d), want %v", k, x, y, tl)
		}
	}
}

func TestDescriptorValid(t *testing.T) {
	tests := []struct {
		d    Descriptor
		want bool
	}{
		{Descriptor{Face: 0, Zoom: 0, X: 0, Y: 0}, true},
		{Descriptor{Face: 5, Zoom: 2, X: 3, Y: 3}, true},
		{Descriptor{Face: 0, Zoom: MaxZoom, X: 0, Y: 0}, true},
		{Descriptor{Face: 6, Zoom: 0, X: 0, Y: 0}, false},
		{Descriptor{Face: -1, Zoom: 0, X: 0, Y: 0}, false},
		{Descriptor{Face: 0, Zoom: 1, X: 2, Y: 0}, false},
		{Descriptor{Face: 0, Zoom: 1, X: 0, Y: -1}, false},
		{Descriptor{Face: 0, Zoom: MaxZoom + 1, X: 0, Y: 0}, false},
	}
	for _, tt := range tests {
		if got := tt.d.Valid(); got != tt.want {
			t.Errorf("%s.Valid() = %v, want %v", tt.d, got, tt.want)
		}
	}
}

func TestParseRGBA(t *testing.T) {
	c, err := ParseRGBA("9,8,17,255")
	if err != nil {
		t.Fatalf("ParseRGBA: %v", err)
	}
	if c != (RGBA{9, 8, 17, 255}) {
		t.Errorf("ParseRGBA = %v, want {9 8 17 255}", c)
	}

	if _, err := ParseRGBA(" 0, 128 ,255, 64 "); err != nil {
		t.Errorf("ParseRGBA with spaces: %v", err)
	}

	for _, bad := range []string{"", "1,2,3", "1,2,3,4,5", "1,2,3,x", "1,2,3,256", "-1,0,0,0"} {
		if _, err := ParseRGBA(bad); err == nil {
			t.Errorf("ParseRGBA(%q) succeeded, want error", bad)
		}
	}
}

func TestPaths(t *testing.T) {
	got := SourcePath("img", 2, 1, 3)
	want := filepath.Join("img", "2", "1", "3.png")
	if got != want {
		t.Errorf("SourcePath = %q, want %q", got, want)
	}

	got = OutputPath("out", Descriptor{Face: 4, Zoom: 1, X: 0, Y: 1})
	want = filepath.Join("out", "4", "1", "0", "1.png")
	if got != want {
		t.Errorf("OutputPath = %q, want %q", got, want)
	}
}
