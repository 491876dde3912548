package objectness

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/sahayak-ai/focus-monitor/internal/match"
)

func TestFilterCandidates(t *testing.T) {
	tests := []struct {
		name string
		box  image.Rectangle
		keep bool
	}{
		{"phone-shaped", image.Rect(0, 0, 100, 200), true},
		{"too small", image.Rect(0, 0, 20, 40), false},
		{"too wide", image.Rect(0, 0, 200, 300), false},
		{"too narrow", image.Rect(0, 0, 50, 100), false},
		{"square aspect", image.Rect(0, 0, 100, 100), false},
		{"too elongated", image.Rect(0, 0, 100, 300), false},
		{"too tall", image.Rect(0, 0, 149, 351), false},
		{"upper band edge", image.Rect(0, 0, 140, 290), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept := filterCandidates([]image.Rectangle{tt.box})
			if (len(kept) == 1) != tt.keep {
				t.Errorf("box %v: kept=%v, want %v", tt.box, len(kept) == 1, tt.keep)
			}
		})
	}
}

func TestComponentBoxes(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 40, 40))
	fill := func(r image.Rectangle) {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				g.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	fill(image.Rect(2, 2, 10, 12))
	fill(image.Rect(20, 20, 30, 35))

	boxes := componentBoxes(g)
	if len(boxes) != 2 {
		t.Fatalf("expected 2 components, got %d: %v", len(boxes), boxes)
	}
	if boxes[0] != image.Rect(2, 2, 10, 12) {
		t.Errorf("unexpected first box %v", boxes[0])
	}
	if boxes[1] != image.Rect(20, 20, 30, 35) {
		t.Errorf("unexpected second box %v", boxes[1])
	}
}

func TestComponentBoxesEmptyImage(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 20, 20))
	if boxes := componentBoxes(g); len(boxes) != 0 {
		t.Errorf("expected no components in black image, got %v", boxes)
	}
}

func TestNearestFaceAttribution(t *testing.T) {
	cands := []image.Rectangle{image.Rect(100, 100, 200, 280)}
	matched := []match.Detection{
		{Region: image.Rect(120, 50, 220, 150), PersonID: "near"},
		{Region: image.Rect(700, 50, 800, 150), PersonID: "far"},
		{Region: image.Rect(100, 100, 200, 200)}, // Unknown, never attributed
	}

	person, ok := nearestFace(cands, matched)
	if !ok || person != "near" {
		t.Errorf("expected attribution to near, got %q ok=%v", person, ok)
	}
}

func TestNearestFaceUnattributedWhenTooFar(t *testing.T) {
	cands := []image.Rectangle{image.Rect(0, 0, 100, 180)}
	matched := []match.Detection{
		{Region: image.Rect(900, 900, 1000, 1000), PersonID: "a"},
	}

	if _, ok := nearestFace(cands, matched); ok {
		t.Error("expected no attribution beyond the distance bound")
	}
}

func TestDebounceMergesWithinCooldown(t *testing.T) {
	h := New(5 * time.Second)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	if !h.debounce("a", base) {
		t.Fatal("first event should be recorded")
	}
	if h.debounce("a", base.Add(2*time.Second)) {
		t.Error("event within cooldown should merge, not record")
	}
	if !h.debounce("a", base.Add(6*time.Second)) {
		t.Error("event after cooldown should be recorded")
	}
	if !h.debounce("b", base.Add(2*time.Second)) {
		t.Error("cooldown is per person; b should record")
	}
}

func TestScanBlankFrameIsNegative(t *testing.T) {
	h := New(time.Second)
	frame := image.NewRGBA(image.Rect(0, 0, 320, 240))

	if person, ok := h.Scan(frame, nil, time.Now()); ok || person != "" {
		t.Errorf("blank frame should be negative, got %q ok=%v", person, ok)
	}
}

func TestScanRecoversFromFrameError(t *testing.T) {
	h := New(time.Second)

	// A nil frame makes the filter pipeline panic; Scan must swallow it.
	if person, ok := h.Scan(nil, nil, time.Now()); ok || person != "" {
		t.Errorf("failed scan should be negative, got %q ok=%v", person, ok)
	}
}
