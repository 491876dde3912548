// Package config defines the immutable session configuration and its
// loading rules. Precedence, highest first: CLI flags (applied by the
// caller), MONITOR_* environment variables, the optional JSON config file,
// built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Session holds every recognized session option. The value is constructed
// once before the engine starts and never mutated afterwards.
type Session struct {
	// DurationSeconds is the planned monitoring duration.
	DurationSeconds int `env:"MONITOR_DURATION"`

	// FocusThresholdPercent is the minimum focus percentage a person must
	// reach to be classified as passing. A percentage exactly equal to the
	// threshold passes.
	FocusThresholdPercent int `env:"MONITOR_THRESHOLD"`

	// ObjectHeuristicEnabled enables the phone-like object heuristic.
	// When false the heuristic performs no computation at all.
	ObjectHeuristicEnabled bool `env:"MONITOR_ENABLE_MOBILE_DETECTION"`

	// CheckInterval is the cadence of the monitoring loop.
	CheckInterval time.Duration `env:"MONITOR_CHECK_INTERVAL"`

	// MatchThreshold is the minimum similarity score for an identity match.
	MatchThreshold float64 `env:"MONITOR_MATCH_THRESHOLD"`

	// ObjectCooldown is the debounce window between two recorded object
	// events for the same person.
	ObjectCooldown time.Duration `env:"MONITOR_OBJECT_COOLDOWN"`

	// FrameTimeout bounds a single blocking frame acquisition.
	FrameTimeout time.Duration `env:"MONITOR_FRAME_TIMEOUT"`
}

// Default returns the built-in configuration defaults.
func Default() Session {
	return Session{
		DurationSeconds:       300,
		FocusThresholdPercent: 50,
		CheckInterval:         time.Second,
		MatchThreshold:        0.60,
		ObjectCooldown:        5 * time.Second,
		FrameTimeout:          2 * time.Second,
	}
}

// fileConfig mirrors the JSON config file written by the dashboard.
// Pointer fields distinguish "absent" from zero values.
type fileConfig struct {
	Duration              *int  `json:"duration"`
	Threshold             *int  `json:"threshold"`
	EnableMobileDetection *bool `json:"enable_mobile_detection"`
}

// Load builds a Session from defaults, the optional JSON config file at
// path (ignored when path is empty or the file does not exist), and
// MONITOR_* environment variables, in increasing precedence.
func Load(path string) (Session, error) {
	cfg := Default()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Session{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Session{}, fmt.Errorf("parse env config: %w", err)
	}

	return cfg, nil
}

func applyFile(cfg *Session, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Duration != nil {
		cfg.DurationSeconds = *fc.Duration
	}
	if fc.Threshold != nil {
		cfg.FocusThresholdPercent = *fc.Threshold
	}
	if fc.EnableMobileDetection != nil {
		cfg.ObjectHeuristicEnabled = *fc.EnableMobileDetection
	}
	return nil
}

// Validate reports the first invalid option, or nil.
func (s Session) Validate() error {
	if s.DurationSeconds <= 0 {
		return fmt.Errorf("duration must be positive, got %d", s.DurationSeconds)
	}
	if s.FocusThresholdPercent < 0 || s.FocusThresholdPercent > 100 {
		return fmt.Errorf("focus threshold must be 0-100, got %d", s.FocusThresholdPercent)
	}
	if s.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive, got %s", s.CheckInterval)
	}
	if s.MatchThreshold < 0 || s.MatchThreshold > 1 {
		return fmt.Errorf("match threshold must be 0-1, got %g", s.MatchThreshold)
	}
	if s.ObjectCooldown < 0 {
		return fmt.Errorf("object cooldown must not be negative, got %s", s.ObjectCooldown)
	}
	if s.FrameTimeout <= 0 {
		return fmt.Errorf("frame timeout must be positive, got %s", s.FrameTimeout)
	}
	return nil
}

// PlannedDuration returns DurationSeconds as a time.Duration.
func (s Session) PlannedDuration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}
