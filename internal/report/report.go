// Package report defines the session report contract and its emission.
// The schema is fixed: serialization is a pure mapping from the snapshot,
// never string-built JSON.
package report

import (
	"math"
	"strconv"
	"time"

	"github.com/sahayak-ai/focus-monitor/internal/session"
)

// Percent is a focus percentage serialized with exactly one decimal place.
type Percent float64

// MarshalJSON renders the percentage as a bare number with one decimal,
// e.g. 100.0 or 66.7.
func (p Percent) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(p), 'f', 1, 64)), nil
}

// Student is one person's entry in the report. FocusPercentage is omitted
// for absent persons (total_checks == 0).
type Student struct {
	FocusPercentage *Percent `json:"focus_percentage,omitempty"`
	FocusedCount    int      `json:"focused_count"`
	UnfocusedCount  int      `json:"unfocused_count"`
	TotalChecks     int      `json:"total_checks"`
	MobileDetected  int      `json:"mobile_detected"`
	MobileTimes     []string `json:"mobile_times"`
}

// Report is the consolidated session result, written exactly once per
// session and immutable thereafter.
type Report struct {
	Timestamp string             `json:"timestamp"`
	Duration  int                `json:"duration"`
	Threshold int                `json:"threshold"`
	Students  map[string]Student `json:"students"`
}

// Build maps an aggregator snapshot into the report contract. Duration is
// the actual elapsed session time, not the planned duration. Object event
// timestamps are rendered as HH:MM:SS in local time, chronological.
func Build(snap session.Snapshot, elapsed time.Duration, thresholdPercent int, generatedAt time.Time) Report {
	students := make(map[string]Student, len(snap.Stats))
	for id, s := range snap.Stats {
		entry := Student{
			FocusedCount:   s.Focused,
			UnfocusedCount: s.Unfocused,
			TotalChecks:    s.TotalChecks(),
			MobileDetected: len(s.ObjectTimes),
			MobileTimes:    formatTimes(s.ObjectTimes),
		}
		if !s.Absent() {
			p := Percent(round1(s.FocusPercentage()))
			entry.FocusPercentage = &p
		}
		students[id] = entry
	}

	return Report{
		Timestamp: generatedAt.Format(time.RFC3339),
		Duration:  int(elapsed.Seconds()),
		Threshold: thresholdPercent,
		Students:  students,
	}
}

// formatTimes renders HH:MM:SS strings, preserving the snapshot's
// chronological order.
func formatTimes(times []time.Time) []string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = t.Format("15:04:05")
	}
	return out
}

// round1 rounds to one decimal place so 2/3 reports as 66.7, not 66.6.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
