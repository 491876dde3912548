package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// imageExts lists the frame formats the replay source decodes.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// DirSource replays image files from a directory in filename order, one
// file per Next call, returning ErrEndOfStream once exhausted. Frames are
// decoded lazily so a large directory does not front-load memory.
type DirSource struct {
	mu     sync.Mutex
	paths  []string
	next   int
	closed bool
	// now stamps replayed frames; overridable in tests.
	now func() time.Time
}

// NewDirSource scans dir for supported image files. It fails when the
// directory is missing or holds no frames, so an unusable source is
// detected before the session starts.
func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("frame directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("frame path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames found in %s", dir)
	}

	log.Info().Str("path", dir).Int("frames", len(paths)).Msg("Frame replay source ready")

	return &DirSource{paths: paths, now: time.Now}, nil
}

// Next returns the next frame in filename order.
func (s *DirSource) Next(ctx context.Context, timeout time.Duration) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.next >= len(s.paths) {
		return Frame{}, ErrEndOfStream
	}

	path := s.paths[s.next]
	s.next++

	f, err := os.Open(path)
	if err != nil {
		return Frame{}, fmt.Errorf("open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Frame{}, fmt.Errorf("decode frame %s: %w", path, err)
	}

	return Frame{Image: img, Time: s.now()}, nil
}

// Close marks the source exhausted. Safe to call multiple times.
func (s *DirSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
