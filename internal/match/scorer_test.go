package match

import (
	"image"
	"image/color"
	"testing"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestHistogramScorerIdenticalRegions(t *testing.T) {
	s := HistogramScorer{}
	img := solidImage(100, 100, color.RGBA{200, 40, 40, 255})
	region := image.Rect(10, 10, 90, 90)

	a := s.Describe(img, region)
	b := s.Describe(img, region)

	if sim := s.Similarity(a, b); sim < 0.999 {
		t.Errorf("identical regions should score ~1.0, got %g", sim)
	}
}

func TestHistogramScorerDistinctColors(t *testing.T) {
	s := HistogramScorer{}
	red := solidImage(50, 50, color.RGBA{255, 0, 0, 255})
	blue := solidImage(50, 50, color.RGBA{0, 0, 255, 255})

	a := s.Describe(red, red.Bounds())
	b := s.Describe(blue, blue.Bounds())

	if sim := s.Similarity(a, b); sim > 0.1 {
		t.Errorf("distinct solid colors should score near 0, got %g", sim)
	}
}

func TestHistogramScorerScaleInvariant(t *testing.T) {
	s := HistogramScorer{}
	small := solidImage(20, 20, color.RGBA{40, 180, 90, 255})
	large := solidImage(200, 200, color.RGBA{40, 180, 90, 255})

	a := s.Describe(small, small.Bounds())
	b := s.Describe(large, large.Bounds())

	if sim := s.Similarity(a, b); sim < 0.99 {
		t.Errorf("same color at different scales should match, got %g", sim)
	}
}

func TestHistogramScorerEmptyRegion(t *testing.T) {
	s := HistogramScorer{}
	img := solidImage(10, 10, color.White)

	if d := s.Describe(img, image.Rect(50, 50, 60, 60)); d != nil {
		t.Error("region outside bounds should yield nil descriptor")
	}
	if sim := s.Similarity(nil, Descriptor{1}); sim != 0 {
		t.Errorf("nil descriptor similarity should be 0, got %g", sim)
	}
}
