// Package session owns the per-person running statistics of one
// monitoring session. The Aggregator is the single serialization point
// for all counter mutation; the engine loop is its only writer, and the
// report snapshot is taken only after the loop has stopped.
package session

import (
	"sync"
	"time"
)

// Stats are one person's accumulated results. Totals are derived, never
// set directly, so total checks always equals focused plus unfocused.
type Stats struct {
	Focused     int
	Unfocused   int
	ObjectTimes []time.Time
}

// TotalChecks is the number of focus samples recorded for the person.
func (s Stats) TotalChecks() int {
	return s.Focused + s.Unfocused
}

// Absent reports whether the person was never matched during the session.
func (s Stats) Absent() bool {
	return s.TotalChecks() == 0
}

// FocusPercentage is focused/total × 100. Only meaningful when the person
// is present; callers check Absent first.
func (s Stats) FocusPercentage() float64 {
	total := s.TotalChecks()
	if total == 0 {
		return 0
	}
	return float64(s.Focused) / float64(total) * 100
}

// MeetsThreshold reports whether the person passes the focus threshold.
// A percentage exactly equal to the threshold passes.
func (s Stats) MeetsThreshold(thresholdPercent int) bool {
	return s.FocusPercentage() >= float64(thresholdPercent)
}

// Snapshot is an immutable copy of the aggregator state, taken for
// reporting after the loop has stopped.
type Snapshot struct {
	Stats        map[string]Stats
	Unidentified int
}

// Aggregator accumulates per-person statistics behind one mutex.
type Aggregator struct {
	mu           sync.Mutex
	stats        map[string]*Stats
	unidentified int
	samples      int
}

// NewAggregator seeds an entry for every templated person so persons who
// are never matched still appear in the report as absent.
func NewAggregator(persons []string) *Aggregator {
	stats := make(map[string]*Stats, len(persons))
	for _, p := range persons {
		stats[p] = &Stats{}
	}
	return &Aggregator{stats: stats}
}

// RecordFocusSample adds one focus check result for a person.
func (a *Aggregator) RecordFocusSample(personID string, focused bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.person(personID)
	if focused {
		s.Focused++
	} else {
		s.Unfocused++
	}
	a.samples++
}

// RecordObjectEvent appends a debounced object event for a person.
// Timestamps arrive from the single loop in order, so the list stays
// chronological.
func (a *Aggregator) RecordObjectEvent(personID string, t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.person(personID)
	s.ObjectTimes = append(s.ObjectTimes, t)
}

// RecordUnidentified counts a detection no enrolled person matched. It is
// a session-wide diagnostic and contributes to no per-person statistics.
func (a *Aggregator) RecordUnidentified() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unidentified++
}

// HasData reports whether any sample or event has been recorded. The
// failsafe emission path uses it to skip writing an empty report.
func (a *Aggregator) HasData() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.samples > 0 || a.unidentified > 0 {
		return true
	}
	for _, s := range a.stats {
		if len(s.ObjectTimes) > 0 {
			return true
		}
	}
	return false
}

// Snapshot returns a deep copy of the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := Snapshot{
		Stats:        make(map[string]Stats, len(a.stats)),
		Unidentified: a.unidentified,
	}
	for id, s := range a.stats {
		copied := *s
		copied.ObjectTimes = append([]time.Time(nil), s.ObjectTimes...)
		out.Stats[id] = copied
	}
	return out
}

// person returns the entry for personID, creating it if the person was
// not pre-seeded.
func (a *Aggregator) person(personID string) *Stats {
	s, ok := a.stats[personID]
	if !ok {
		s = &Stats{}
		a.stats[personID] = s
	}
	return s
}
