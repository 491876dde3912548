package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Emitter writes a report to disk. The primary directory is tried first;
// on failure the report falls back to the temp directory. Callers invoke
// Emit at most once per session, enforced upstream by the lifecycle
// controller's idempotency guard.
type Emitter struct {
	dir         string
	fallbackDir string
	// now names the output file; overridable in tests.
	now func() time.Time
}

// NewEmitter writes reports into dir, falling back to the OS temp
// directory when the primary write fails.
func NewEmitter(dir string) *Emitter {
	return &Emitter{
		dir:         dir,
		fallbackDir: os.TempDir(),
		now:         time.Now,
	}
}

// Emit serializes the report and writes it to the primary location, then
// the fallback. It returns the path written. An error is returned only
// when both paths fail; callers log it and move on, since emission runs
// during teardown when nobody upstream can react.
func (e *Emitter) Emit(r Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return "", fmt.Errorf("serialize report: %w", err)
	}

	name := fmt.Sprintf("focus_report_%s.json", e.now().Format("20060102_150405"))

	primary := filepath.Join(e.dir, name)
	err = os.WriteFile(primary, data, 0o644)
	if err == nil {
		log.Info().Str("path", primary).Int("students", len(r.Students)).Msg("Report saved")
		return primary, nil
	}
	log.Warn().Err(err).Str("path", primary).Msg("Primary report write failed, trying fallback")

	fallback := filepath.Join(e.fallbackDir, name)
	if err := os.WriteFile(fallback, data, 0o644); err != nil {
		return "", fmt.Errorf("fallback report write: %w", err)
	}

	log.Warn().Str("path", fallback).Msg("Report saved to fallback location")
	return fallback, nil
}
