package match

import (
	"image"

	"golang.org/x/image/draw"
)

// Descriptor is a compact appearance signature of a face region.
type Descriptor []float64

// Scorer turns a face region into a Descriptor and compares two
// descriptors. Implementations must return similarities in [0,1], higher
// meaning more alike, so one threshold applies across backends.
type Scorer interface {
	Describe(frame image.Image, region image.Rectangle) Descriptor
	Similarity(a, b Descriptor) float64
}

// Histogram scorer parameters: regions are normalized to descSize² pixels
// and binned into histBins per RGB channel.
const (
	descSize = 64
	histBins = 8
)

// HistogramScorer scores face regions by color distribution: the region is
// resized to a fixed square and reduced to an L1-normalized 8×8×8 RGB
// histogram; similarity is histogram intersection. Deterministic, fast,
// and dependency-light; heavier embedding backends can replace it behind
// the Scorer interface.
type HistogramScorer struct{}

// Describe computes the normalized color histogram of the region.
func (HistogramScorer) Describe(frame image.Image, region image.Rectangle) Descriptor {
	region = region.Intersect(frame.Bounds())
	if region.Empty() {
		return nil
	}

	// Normalize scale so descriptors from differently sized regions compare.
	scaled := image.NewRGBA(image.Rect(0, 0, descSize, descSize))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), frame, region, draw.Src, nil)

	hist := make(Descriptor, histBins*histBins*histBins)
	for y := 0; y < descSize; y++ {
		for x := 0; x < descSize; x++ {
			r, g, b, _ := scaled.At(x, y).RGBA()
			// 16-bit channels to histBins buckets.
			ri := int(r) * histBins / 65536
			gi := int(g) * histBins / 65536
			bi := int(b) * histBins / 65536
			hist[(ri*histBins+gi)*histBins+bi]++
		}
	}

	total := float64(descSize * descSize)
	for i := range hist {
		hist[i] /= total
	}
	return hist
}

// Similarity is the histogram intersection of two descriptors: the sum of
// per-bin minimums, 1.0 for identical distributions.
func (HistogramScorer) Similarity(a, b Descriptor) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	sum := 0.0
	for i := range a {
		if a[i] < b[i] {
			sum += a[i]
		} else {
			sum += b[i]
		}
	}
	return sum
}
