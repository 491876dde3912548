// Package source defines the pull interface through which the engine
// acquires camera frames, plus a directory-replay implementation used for
// development and tests. Real camera acquisition lives behind the same
// interface in whatever collaborator supervises the engine.
package source

import (
	"context"
	"errors"
	"image"
	"time"
)

// Frame is one captured image and its capture timestamp. A Frame is owned
// by the acquisition loop for a single iteration and must not be retained.
type Frame struct {
	Image image.Image
	Time  time.Time
}

// ErrTimeout indicates no frame became available within the timeout.
// Timeouts are transient; the caller decides whether to retry.
var ErrTimeout = errors.New("frame acquisition timed out")

// ErrEndOfStream indicates the source has no further frames.
var ErrEndOfStream = errors.New("end of frame stream")

// FrameSource supplies frames on demand. Next blocks for at most timeout
// and honours ctx cancellation during the wait. Close releases the
// underlying resource and is safe to call more than once.
type FrameSource interface {
	Next(ctx context.Context, timeout time.Duration) (Frame, error)
	Close() error
}
