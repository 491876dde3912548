package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects session identity, configuration, and feature flags,
// then emits a single structured zerolog event summarising how a monitoring
// session was configured. This makes it easy to reconstruct exactly what a
// session was doing when troubleshooting from its logs.
type StartupLogger struct {
	name         string
	sessionID    string
	initDuration time.Duration

	features map[string]bool
	config   map[string]string
	counts   map[string]int
}

// NewStartupLogger creates a StartupLogger for the given component name
// (e.g. "focus-monitor").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:     name,
		features: make(map[string]bool),
		config:   make(map[string]string),
		counts:   make(map[string]int),
	}
}

// SessionID sets the session identifier included in the startup event.
func (s *StartupLogger) SessionID(id string) *StartupLogger {
	s.sessionID = id
	return s
}

// Feature registers a boolean feature flag (e.g. "mobileDetection").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// Count registers an integer measure gathered during startup, such as the
// number of enrolled persons or loaded reference images.
func (s *StartupLogger) Count(key string, n int) *StartupLogger {
	s.counts[key] = n
	return s
}

// InitDuration records how long startup (enrollment load + template build) took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// Log emits a single structured INFO log event with all collected information.
func (s *StartupLogger) Log() {
	evt := log.Info()

	identity := zerolog.Dict().
		Str("name", s.name).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv("MONITOR_LOG_LEVEL"))
	if s.sessionID != "" {
		identity = identity.Str("sessionId", s.sessionID)
	}
	evt = evt.Dict("monitor", identity)

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(s.config) > 0 {
		d := zerolog.Dict()
		for k, v := range s.config {
			d = d.Str(k, v)
		}
		evt = evt.Dict("config", d)
	}

	if len(s.counts) > 0 {
		d := zerolog.Dict()
		for k, v := range s.counts {
			d = d.Int(k, v)
		}
		evt = evt.Dict("counts", d)
	}

	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("Session startup complete")
}
