// Package objectness implements the optional phone-like object heuristic.
// It is best-effort by design: per-frame failures are swallowed, and the
// engine skips the package entirely when the feature is disabled.
//
// Pipeline per frame: Gaussian blur to suppress noise edges, Sobel edge
// response, binary threshold, connected-component bounding boxes, then a
// phone-band filter on area, aspect ratio, and size. At least two
// surviving candidates must corroborate before a frame counts as a
// positive; single candidates are discarded as noise.
package objectness

import (
	"image"
	"math"
	"time"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/rs/zerolog/log"

	"github.com/sahayak-ai/focus-monitor/internal/match"
)

const (
	blurRadius    = 2.0
	edgeThreshold = 128

	// Phone-like candidate band. Phones held upright are roughly 1.6-2.2
	// tall-to-wide and within these pixel sizes at webcam range.
	minArea   = 2000
	minAspect = 1.6
	maxAspect = 2.2
	minWidth  = 60
	maxWidth  = 150
	minHeight = 120
	maxHeight = 350

	// minCandidates corroborating regions are required per frame.
	minCandidates = 2

	// maxAttributionDist bounds the candidate-to-face center distance for
	// attributing an event to a person.
	maxAttributionDist = 400.0
)

// Heuristic scans frames for phone-shaped regions and debounces events per
// person. Not safe for concurrent use; the engine loop is its only caller.
type Heuristic struct {
	cooldown  time.Duration
	lastEvent map[string]time.Time
}

// New returns a heuristic with the given per-person debounce window.
func New(cooldown time.Duration) *Heuristic {
	return &Heuristic{
		cooldown:  cooldown,
		lastEvent: make(map[string]time.Time),
	}
}

// Scan runs the heuristic over one frame. It returns the person a positive
// detection is attributed to and true when a new event should be recorded.
// Positives inside a person's cooldown window merge into the open event
// and return false. Unattributed positives return false and are logged at
// debug level only. Any runtime error aborts just this frame's scan.
func (h *Heuristic) Scan(frame image.Image, matched []match.Detection, now time.Time) (personID string, record bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("Object heuristic failed for frame, skipping")
			personID, record = "", false
		}
	}()

	cands := candidates(frame)
	if len(cands) < minCandidates {
		return "", false
	}

	person, ok := nearestFace(cands, matched)
	if !ok {
		log.Debug().Int("candidates", len(cands)).Msg("Phone-like object with no nearby matched face")
		return "", false
	}

	if !h.debounce(person, now) {
		return "", false
	}

	log.Info().Str("person", person).Int("candidates", len(cands)).Msg("Phone-like object detected")
	return person, true
}

// candidates extracts phone-band bounding boxes from the frame.
func candidates(frame image.Image) []image.Rectangle {
	blurred := blur.Gaussian(frame, blurRadius)
	edges := effect.Sobel(blurred)
	binary := segment.Threshold(edges, edgeThreshold)
	return filterCandidates(componentBoxes(binary))
}

// filterCandidates keeps boxes inside the phone band.
func filterCandidates(boxes []image.Rectangle) []image.Rectangle {
	var kept []image.Rectangle
	for _, b := range boxes {
		w, ht := b.Dx(), b.Dy()
		if w <= 0 || w*ht < minArea {
			continue
		}
		aspect := float64(ht) / float64(w)
		if aspect <= minAspect || aspect >= maxAspect {
			continue
		}
		if w <= minWidth || w >= maxWidth || ht <= minHeight || ht >= maxHeight {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

// componentBoxes returns the bounding box of every 4-connected white
// component in a binary image.
func componentBoxes(g *image.Gray) []image.Rectangle {
	bounds := g.Bounds()
	w, ht := bounds.Dx(), bounds.Dy()
	visited := make([]bool, w*ht)

	at := func(x, y int) bool {
		return g.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y >= 128
	}

	var boxes []image.Rectangle
	var stack []image.Point

	for y := 0; y < ht; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] || !at(x, y) {
				continue
			}

			minX, minY, maxX, maxY := x, y, x, y
			stack = append(stack[:0], image.Pt(x, y))
			visited[y*w+x] = true

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]

				if p.X < minX {
					minX = p.X
				}
				if p.X > maxX {
					maxX = p.X
				}
				if p.Y < minY {
					minY = p.Y
				}
				if p.Y > maxY {
					maxY = p.Y
				}

				for _, n := range [4]image.Point{
					{p.X - 1, p.Y}, {p.X + 1, p.Y}, {p.X, p.Y - 1}, {p.X, p.Y + 1},
				} {
					if n.X < 0 || n.X >= w || n.Y < 0 || n.Y >= ht {
						continue
					}
					if visited[n.Y*w+n.X] || !at(n.X, n.Y) {
						continue
					}
					visited[n.Y*w+n.X] = true
					stack = append(stack, n)
				}
			}

			boxes = append(boxes, image.Rect(
				bounds.Min.X+minX, bounds.Min.Y+minY,
				bounds.Min.X+maxX+1, bounds.Min.Y+maxY+1,
			))
		}
	}
	return boxes
}

// nearestFace attributes the candidate set to the matched face whose box
// center is closest to any candidate center, within maxAttributionDist.
func nearestFace(cands []image.Rectangle, matched []match.Detection) (string, bool) {
	best := maxAttributionDist
	person := ""

	for _, det := range matched {
		if !det.Matched() {
			continue
		}
		fc := center(det.Region)
		for _, c := range cands {
			if d := dist(fc, center(c)); d <= best {
				best = d
				person = det.PersonID
			}
		}
	}
	return person, person != ""
}

// debounce reports whether an event for person should be recorded now,
// marking the time when it should. Within the cooldown the open event
// absorbs the positive.
func (h *Heuristic) debounce(person string, now time.Time) bool {
	if last, ok := h.lastEvent[person]; ok && now.Sub(last) < h.cooldown {
		return false
	}
	h.lastEvent[person] = now
	return true
}

func center(r image.Rectangle) image.Point {
	return image.Pt(r.Min.X+r.Dx()/2, r.Min.Y+r.Dy()/2)
}

func dist(a, b image.Point) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}
