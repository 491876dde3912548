// Package engine drives a monitoring session: the acquire/detect/match/
// classify/aggregate cycle, the session state machine, and the shutdown
// protocol that guarantees exactly-once report emission no matter which
// termination path fires first.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sahayak-ai/focus-monitor/internal/config"
	"github.com/sahayak-ai/focus-monitor/internal/detect"
	"github.com/sahayak-ai/focus-monitor/internal/focus"
	"github.com/sahayak-ai/focus-monitor/internal/match"
	"github.com/sahayak-ai/focus-monitor/internal/report"
	"github.com/sahayak-ai/focus-monitor/internal/session"
	"github.com/sahayak-ai/focus-monitor/internal/source"
)

// State is the session lifecycle state. Transitions are monotonic except
// StateFailed, which is reachable from any non-terminal state.
type State int32

const (
	StateInit State = iota
	StateRunning
	StateEnding
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateEnding:
		return "ENDING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// maxReadFailures bounds consecutive transient frame-read failures before
// the session escalates to FAILED.
const maxReadFailures = 3

// ObjectScanner is the objectness heuristic as the engine sees it: one
// scan per frame, returning the person a new debounced event should be
// recorded for.
type ObjectScanner interface {
	Scan(frame image.Image, matched []match.Detection, now time.Time) (personID string, record bool)
}

// ReportSink persists a built report. *report.Emitter is the production
// implementation.
type ReportSink interface {
	Emit(r report.Report) (string, error)
}

// Status is the view of the session exposed to the supervising
// collaborator.
type Status struct {
	SessionID string
	State     State
	Elapsed   time.Duration
	Remaining time.Duration
}

// Deps are the collaborators an Engine is composed from. Scanner is nil
// when the object heuristic is disabled; every other field is required.
type Deps struct {
	Source     source.FrameSource
	Detector   detect.Detector
	Matcher    *match.Matcher
	Classifier *focus.Classifier
	Scanner    ObjectScanner
	Aggregator *session.Aggregator
	Sink       ReportSink
}

// Engine is the lifecycle controller. It exclusively owns session state
// transitions; all aggregator writes happen from its single loop.
type Engine struct {
	cfg config.Session
	id  string

	src        source.FrameSource
	det        detect.Detector
	matcher    *match.Matcher
	classifier *focus.Classifier
	scanner    ObjectScanner
	agg        *session.Aggregator
	sink       ReportSink

	stateAtomic atomic.Int32

	// emitted is the idempotency guard shared by every emission path:
	// normal ENDING, failure fallback, and the exit-hook failsafe. Only
	// the first compare-and-swap winner emits.
	emitted atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}

	mu      sync.Mutex
	started time.Time
	ended   time.Time

	now func() time.Time
}

// New creates an engine in INIT for the given configuration.
func New(cfg config.Session, d Deps) *Engine {
	return &Engine{
		cfg:        cfg,
		id:         uuid.NewString(),
		src:        d.Source,
		det:        d.Detector,
		matcher:    d.Matcher,
		classifier: d.Classifier,
		scanner:    d.Scanner,
		agg:        d.Aggregator,
		sink:       d.Sink,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
}

// ID returns the session identifier.
func (e *Engine) ID() string { return e.id }

// Run executes the session to completion. It blocks until the engine
// reaches DONE or FAILED and returns the failure cause, if any. The frame
// source is released on every exit path.
func (e *Engine) Run(ctx context.Context) error {
	if !e.transition(StateInit, StateRunning) {
		return errors.New("engine already started")
	}

	e.mu.Lock()
	e.started = e.now()
	e.mu.Unlock()

	log.Info().
		Str("sessionId", e.id).
		Int("durationSeconds", e.cfg.DurationSeconds).
		Int("focusThreshold", e.cfg.FocusThresholdPercent).
		Bool("objectHeuristic", e.scanner != nil).
		Msg("Session running")

	runErr := e.loop(ctx)

	// ENDING: acquisition stops, the frame source is released, and the
	// report goes out through the idempotency guard.
	e.transition(StateRunning, StateEnding)
	e.mu.Lock()
	e.ended = e.now()
	e.mu.Unlock()

	if err := e.src.Close(); err != nil {
		log.Warn().Err(err).Msg("Frame source close failed")
	}

	e.emit()

	if runErr != nil {
		e.stateAtomic.Store(int32(StateFailed))
		log.Error().Err(runErr).Str("sessionId", e.id).Msg("Session failed")
		return runErr
	}

	e.transition(StateEnding, StateDone)
	log.Info().Str("sessionId", e.id).Msg("Session done")
	return nil
}

// loop runs checks until a termination condition fires. A non-nil return
// escalates the session to FAILED.
func (e *Engine) loop(ctx context.Context) error {
	failures := 0

	for {
		// Cooperative cancellation, observed at the top of every iteration.
		select {
		case <-ctx.Done():
			log.Info().Msg("Session interrupted by signal")
			return nil
		case <-e.stopCh:
			log.Info().Msg("Session stopped by external request")
			return nil
		default:
		}

		if e.elapsed() >= e.cfg.PlannedDuration() {
			log.Info().Msg("Planned duration reached")
			return nil
		}

		frame, err := e.src.Next(ctx, e.cfg.FrameTimeout)
		switch {
		case err == nil:
			failures = 0
			e.runCheck(frame)
		case errors.Is(err, source.ErrEndOfStream):
			log.Info().Msg("Frame stream ended")
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			failures++
			log.Warn().Err(err).Int("consecutive", failures).Msg("Frame read failed")
			if failures > maxReadFailures {
				return fmt.Errorf("frame source failed %d consecutive reads: %w", failures, err)
			}
		}

		// Cadence wait. Stop requests and cancellation cut it short, which
		// also expedites a second stop received while already shutting down.
		select {
		case <-ctx.Done():
		case <-e.stopCh:
		case <-time.After(e.cfg.CheckInterval):
		}
	}
}

// runCheck performs one full check on the frame. All aggregator updates
// for the check are applied before it returns, so no out-of-order
// aggregation can occur between checks.
func (e *Engine) runCheck(frame source.Frame) {
	faces := e.det.Faces(frame.Image)
	dets := e.matcher.Assign(frame.Image, faces)

	for _, d := range dets {
		if !d.Matched() {
			e.agg.RecordUnidentified()
			continue
		}
		focused := e.classifier.Focused(frame.Image, d.Region)
		e.agg.RecordFocusSample(d.PersonID, focused)
		log.Debug().
			Str("person", d.PersonID).
			Bool("focused", focused).
			Float64("score", d.Score).
			Msg("Focus sample")
	}

	if e.scanner != nil {
		if person, record := e.scanner.Scan(frame.Image, dets, frame.Time); record {
			e.agg.RecordObjectEvent(person, frame.Time)
		}
	}
}

// Stop requests session termination. The first call triggers ENDING at
// the next loop observation; later calls are no-ops that expedite an
// in-progress shutdown.
func (e *Engine) Stop() {
	first := false
	e.stopOnce.Do(func() {
		close(e.stopCh)
		first = true
	})
	if first {
		log.Info().Str("sessionId", e.id).Msg("Stop requested")
	} else {
		log.Debug().Str("sessionId", e.id).Msg("Stop already in progress, expediting")
	}
}

// Finalize is the process-exit failsafe, registered independently of the
// normal shutdown path. If no report has been emitted and the aggregator
// holds data, it performs a best-effort emission. Errors are logged only;
// this runs during teardown when callers can no longer react.
func (e *Engine) Finalize() {
	if e.emitted.Load() {
		return
	}
	if !e.agg.HasData() {
		return
	}
	log.Warn().Str("sessionId", e.id).Msg("Failsafe: emitting report on exit")
	e.mu.Lock()
	if e.ended.IsZero() {
		e.ended = e.now()
	}
	e.mu.Unlock()
	e.emit()
}

// emit builds and persists the report, at most once per session. Both the
// normal ENDING transition and the failsafe route through this guard; the
// loser of the compare-and-swap is a guaranteed no-op.
func (e *Engine) emit() {
	if !e.emitted.CompareAndSwap(false, true) {
		log.Debug().Str("sessionId", e.id).Msg("Report already emitted")
		return
	}

	snap := e.agg.Snapshot()
	rep := report.Build(snap, e.elapsed(), e.cfg.FocusThresholdPercent, e.now())

	if _, err := e.sink.Emit(rep); err != nil {
		log.Error().Err(err).Str("sessionId", e.id).Msg("Report emission failed")
	}

	e.logSummary(snap)
}

// logSummary renders the end-of-session per-person results.
func (e *Engine) logSummary(snap session.Snapshot) {
	for id, s := range snap.Stats {
		if s.Absent() {
			log.Info().Str("person", id).Msg("Absent for entire session")
			continue
		}
		verdict := "NEEDS IMPROVEMENT"
		if s.MeetsThreshold(e.cfg.FocusThresholdPercent) {
			verdict = "GOOD FOCUS"
		}
		evt := log.Info().
			Str("person", id).
			Float64("focusPercentage", s.FocusPercentage()).
			Int("focused", s.Focused).
			Int("unfocused", s.Unfocused).
			Int("totalChecks", s.TotalChecks())
		if len(s.ObjectTimes) > 0 {
			evt = evt.Int("mobileDetected", len(s.ObjectTimes))
		}
		evt.Msg(verdict)
	}
	if snap.Unidentified > 0 {
		log.Info().Int("count", snap.Unidentified).Msg("Unidentified detections during session")
	}
}

// Status returns the session state and clock for the supervising
// collaborator.
func (e *Engine) Status() Status {
	elapsed := e.elapsed()
	remaining := e.cfg.PlannedDuration() - elapsed
	if remaining < 0 {
		remaining = 0
	}
	state := e.currentState()
	if state.Terminal() {
		remaining = 0
	}
	return Status{
		SessionID: e.id,
		State:     state,
		Elapsed:   elapsed,
		Remaining: remaining,
	}
}

func (e *Engine) currentState() State {
	return State(e.stateAtomic.Load())
}

// transition performs a compare-and-swap state change.
func (e *Engine) transition(from, to State) bool {
	ok := e.stateAtomic.CompareAndSwap(int32(from), int32(to))
	if ok {
		log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("State transition")
	}
	return ok
}

// elapsed is the session time accumulated so far, frozen once ENDING is
// reached so the report reflects actual running time.
func (e *Engine) elapsed() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started.IsZero() {
		return 0
	}
	if !e.ended.IsZero() {
		return e.ended.Sub(e.started)
	}
	return e.now().Sub(e.started)
}
