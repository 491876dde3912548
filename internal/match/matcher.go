// Package match builds identity templates from enrollment images and
// attributes detected face regions to enrolled persons. Attribution is
// deterministic: per-person scores take the maximum over that person's
// descriptors, a fixed threshold separates matches from Unknown, and a
// greedy assignment keeps any person from claiming two detections in one
// frame.
package match

import (
	"errors"
	"image"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/sahayak-ai/focus-monitor/internal/detect"
	"github.com/sahayak-ai/focus-monitor/internal/enrollment"
)

// Unknown marks a detection no enrolled person matched.
const Unknown = ""

// ErrNoTemplates is returned when training produced an empty template set.
// The session must fail fast rather than silently match nothing.
var ErrNoTemplates = errors.New("no usable enrollment templates")

// Detection is one face region with its attribution result.
type Detection struct {
	Region image.Rectangle

	// PersonID is Unknown ("") when no enrolled person cleared the
	// similarity threshold or the person was claimed by a better match.
	PersonID string

	// Score is the similarity behind the attribution, zero for Unknown.
	Score float64
}

// Matched reports whether the detection was attributed to a person.
func (d Detection) Matched() bool { return d.PersonID != Unknown }

// Matcher holds the trained template set. Templates are immutable after
// Train, so concurrent reads need no synchronization.
type Matcher struct {
	scorer    Scorer
	threshold float64
	templates map[string][]Descriptor
}

// NewMatcher creates an untrained matcher. Scores below threshold resolve
// to Unknown.
func NewMatcher(scorer Scorer, threshold float64) *Matcher {
	return &Matcher{
		scorer:    scorer,
		threshold: threshold,
		templates: make(map[string][]Descriptor),
	}
}

// Train builds one descriptor per usable reference image. A reference
// image is usable when the detector finds at least one face in it; the
// largest face region is used. Persons with zero usable images are
// excluded and logged. An empty resulting template set is a configuration
// error.
func (m *Matcher) Train(roster *enrollment.Roster, det detect.Detector) error {
	for _, person := range roster.Persons() {
		var descs []Descriptor
		for _, ref := range roster.Images(person) {
			faces := det.Faces(ref.Image)
			if len(faces) == 0 {
				log.Warn().
					Str("person", person).
					Str("image", ref.Name).
					Msg("No face found in reference image")
				continue
			}
			region := largestRegion(faces)
			if d := m.scorer.Describe(ref.Image, region); len(d) > 0 {
				descs = append(descs, d)
			}
		}

		if len(descs) == 0 {
			log.Warn().Str("person", person).Msg("Person excluded: no usable reference images")
			continue
		}

		m.templates[person] = descs
		log.Debug().Str("person", person).Int("descriptors", len(descs)).Msg("Person templated")
	}

	if len(m.templates) == 0 {
		return ErrNoTemplates
	}

	log.Info().Int("persons", len(m.templates)).Msg("Identity templates built")
	return nil
}

// Persons returns the templated person IDs in lexicographic order.
func (m *Matcher) Persons() []string {
	ids := make([]string, 0, len(m.templates))
	for id := range m.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// score is the similarity between a descriptor and a person's template
// set: the maximum over that person's own descriptors.
func (m *Matcher) score(d Descriptor, person string) float64 {
	best := 0.0
	for _, t := range m.templates[person] {
		if s := m.scorer.Similarity(d, t); s > best {
			best = s
		}
	}
	return best
}

// candidate is one (detection, person) pairing considered by Assign.
type candidate struct {
	det    int
	person string
	score  float64
}

// Assign attributes each face region to at most one person, and each
// person to at most one region. Candidates at or above the threshold are
// taken greedily in descending score order; exact ties break toward the
// lexicographically smallest person ID. Regions left unclaimed resolve to
// Unknown.
func (m *Matcher) Assign(frame image.Image, faces []image.Rectangle) []Detection {
	dets := make([]Detection, len(faces))
	for i, face := range faces {
		dets[i] = Detection{Region: face}
	}

	var cands []candidate
	for i, face := range faces {
		d := m.scorer.Describe(frame, face)
		if len(d) == 0 {
			continue
		}
		for person := range m.templates {
			if s := m.score(d, person); s >= m.threshold {
				cands = append(cands, candidate{det: i, person: person, score: s})
			}
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		if cands[i].person != cands[j].person {
			return cands[i].person < cands[j].person
		}
		return cands[i].det < cands[j].det
	})

	claimedPerson := make(map[string]bool, len(faces))
	claimedDet := make(map[int]bool, len(faces))
	for _, c := range cands {
		if claimedPerson[c.person] || claimedDet[c.det] {
			continue
		}
		claimedPerson[c.person] = true
		claimedDet[c.det] = true
		dets[c.det].PersonID = c.person
		dets[c.det].Score = c.score
	}

	return dets
}

// largestRegion picks the biggest face box by area.
func largestRegion(regions []image.Rectangle) image.Rectangle {
	best := regions[0]
	for _, r := range regions[1:] {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}
	return best
}
