package match

import (
	"errors"
	"image"
	"testing"

	"github.com/sahayak-ai/focus-monitor/internal/enrollment"
)

// fakeScorer describes a region by its Min.X coordinate and scores pairs
// from a fixed table, giving tests full control over similarities.
type fakeScorer struct {
	sims map[[2]float64]float64
}

func (s *fakeScorer) Describe(_ image.Image, region image.Rectangle) Descriptor {
	return Descriptor{float64(region.Min.X)}
}

func (s *fakeScorer) Similarity(a, b Descriptor) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return s.sims[[2]float64{a[0], b[0]}]
}

// fakeDetector returns scripted face regions per image.
type fakeDetector struct {
	faces map[image.Image][]image.Rectangle
}

func (d *fakeDetector) Faces(frame image.Image) []image.Rectangle {
	return d.faces[frame]
}

func (d *fakeDetector) Eyes(image.Image, image.Rectangle) []image.Rectangle {
	return nil
}

func refImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 1, 1))
}

// trainPair trains a matcher where person IDs map to template descriptor
// keys via the given region x-coordinates.
func trainMatcher(t *testing.T, scorer Scorer, refs map[string]int) *Matcher {
	t.Helper()

	people := make(map[string][]enrollment.ReferenceImage)
	det := &fakeDetector{faces: make(map[image.Image][]image.Rectangle)}
	for person, x := range refs {
		img := refImage()
		people[person] = []enrollment.ReferenceImage{{Name: person + ".png", Image: img}}
		det.faces[img] = []image.Rectangle{image.Rect(x, 0, x+10, 10)}
	}

	m := NewMatcher(scorer, 0.5)
	if err := m.Train(enrollment.NewRoster(people), det); err != nil {
		t.Fatalf("unexpected train error: %v", err)
	}
	return m
}

func TestTrainExcludesPersonsWithoutUsableImages(t *testing.T) {
	scorer := &fakeScorer{sims: map[[2]float64]float64{}}

	imgX := refImage()
	imgY := refImage()
	people := map[string][]enrollment.ReferenceImage{
		"x": {{Name: "x.png", Image: imgX}},
		"y": {{Name: "y.png", Image: imgY}},
	}
	// Detector finds a face only in y's reference image.
	det := &fakeDetector{faces: map[image.Image][]image.Rectangle{
		imgY: {image.Rect(0, 0, 10, 10)},
	}}

	m := NewMatcher(scorer, 0.5)
	if err := m.Train(enrollment.NewRoster(people), det); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	persons := m.Persons()
	if len(persons) != 1 || persons[0] != "y" {
		t.Errorf("expected only y templated, got %v", persons)
	}
}

func TestTrainEmptyTemplateSetFails(t *testing.T) {
	img := refImage()
	people := map[string][]enrollment.ReferenceImage{
		"x": {{Name: "x.png", Image: img}},
	}
	det := &fakeDetector{faces: map[image.Image][]image.Rectangle{}}

	m := NewMatcher(&fakeScorer{}, 0.5)
	err := m.Train(enrollment.NewRoster(people), det)
	if !errors.Is(err, ErrNoTemplates) {
		t.Errorf("expected ErrNoTemplates, got %v", err)
	}
}

func TestAssignThreshold(t *testing.T) {
	scorer := &fakeScorer{sims: map[[2]float64]float64{
		{100, 0}: 0.8, // face at x=100 vs template of a
	}}
	m := trainMatcher(t, scorer, map[string]int{"a": 0})

	frame := refImage()
	dets := m.Assign(frame, []image.Rectangle{image.Rect(100, 0, 150, 50)})
	if len(dets) != 1 || dets[0].PersonID != "a" {
		t.Fatalf("expected match to a, got %+v", dets)
	}
	if dets[0].Score != 0.8 {
		t.Errorf("expected score 0.8, got %g", dets[0].Score)
	}

	// Below threshold resolves to Unknown.
	scorer.sims[[2]float64{100, 0}] = 0.4
	dets = m.Assign(frame, []image.Rectangle{image.Rect(100, 0, 150, 50)})
	if dets[0].Matched() {
		t.Errorf("expected Unknown below threshold, got %+v", dets[0])
	}
}

func TestAssignScoreAtThresholdMatches(t *testing.T) {
	scorer := &fakeScorer{sims: map[[2]float64]float64{
		{100, 0}: 0.5,
	}}
	m := trainMatcher(t, scorer, map[string]int{"a": 0})

	dets := m.Assign(refImage(), []image.Rectangle{image.Rect(100, 0, 150, 50)})
	if !dets[0].Matched() {
		t.Error("score exactly at threshold should match")
	}
}

func TestAssignTakesMaxOverDescriptors(t *testing.T) {
	scorer := &fakeScorer{sims: map[[2]float64]float64{
		{100, 0}: 0.55,
		{100, 1}: 0.9,
	}}

	img1, img2 := refImage(), refImage()
	people := map[string][]enrollment.ReferenceImage{
		"a": {
			{Name: "a1.png", Image: img1},
			{Name: "a2.png", Image: img2},
		},
	}
	det := &fakeDetector{faces: map[image.Image][]image.Rectangle{
		img1: {image.Rect(0, 0, 10, 10)},
		img2: {image.Rect(1, 0, 11, 10)},
	}}

	m := NewMatcher(scorer, 0.5)
	if err := m.Train(enrollment.NewRoster(people), det); err != nil {
		t.Fatal(err)
	}

	dets := m.Assign(refImage(), []image.Rectangle{image.Rect(100, 0, 150, 50)})
	if dets[0].Score != 0.9 {
		t.Errorf("expected max over own descriptors (0.9), got %g", dets[0].Score)
	}
}

func TestAssignDedup(t *testing.T) {
	// Both faces prefer person a; the higher-scoring face claims a, the
	// other falls back to its next-best candidate b.
	scorer := &fakeScorer{sims: map[[2]float64]float64{
		{100, 0}: 0.9, // face1 vs a
		{200, 0}: 0.8, // face2 vs a
		{200, 1}: 0.7, // face2 vs b
	}}
	m := trainMatcher(t, scorer, map[string]int{"a": 0, "b": 1})

	dets := m.Assign(refImage(), []image.Rectangle{
		image.Rect(100, 0, 150, 50),
		image.Rect(200, 0, 250, 50),
	})

	if dets[0].PersonID != "a" {
		t.Errorf("expected face1 -> a, got %q", dets[0].PersonID)
	}
	if dets[1].PersonID != "b" {
		t.Errorf("expected face2 demoted to b, got %q", dets[1].PersonID)
	}
}

func TestAssignDedupDemotesToUnknown(t *testing.T) {
	scorer := &fakeScorer{sims: map[[2]float64]float64{
		{100, 0}: 0.9,
		{200, 0}: 0.8, // face2's only candidate is already claimed
	}}
	m := trainMatcher(t, scorer, map[string]int{"a": 0})

	dets := m.Assign(refImage(), []image.Rectangle{
		image.Rect(100, 0, 150, 50),
		image.Rect(200, 0, 250, 50),
	})

	if dets[0].PersonID != "a" || dets[1].Matched() {
		t.Errorf("expected [a, Unknown], got [%q, %q]", dets[0].PersonID, dets[1].PersonID)
	}
}

func TestAssignTieBreaksLexicographically(t *testing.T) {
	scorer := &fakeScorer{sims: map[[2]float64]float64{
		{100, 0}: 0.8, // vs b
		{100, 1}: 0.8, // vs a, exactly equal
	}}
	m := trainMatcher(t, scorer, map[string]int{"b": 0, "a": 1})

	dets := m.Assign(refImage(), []image.Rectangle{image.Rect(100, 0, 150, 50)})
	if dets[0].PersonID != "a" {
		t.Errorf("expected lexicographic winner a, got %q", dets[0].PersonID)
	}
}

func TestAssignNoPersonClaimsTwoDetections(t *testing.T) {
	scorer := &fakeScorer{sims: map[[2]float64]float64{
		{100, 0}: 0.9,
		{200, 0}: 0.9,
		{300, 0}: 0.9,
	}}
	m := trainMatcher(t, scorer, map[string]int{"a": 0})

	dets := m.Assign(refImage(), []image.Rectangle{
		image.Rect(100, 0, 150, 50),
		image.Rect(200, 0, 250, 50),
		image.Rect(300, 0, 350, 50),
	})

	matched := 0
	for _, d := range dets {
		if d.PersonID == "a" {
			matched++
		}
	}
	if matched != 1 {
		t.Errorf("person a attributed to %d detections, want 1", matched)
	}
}
