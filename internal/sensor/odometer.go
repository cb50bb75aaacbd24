package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/stepd/internal/tracker"
)

// OdometerSource reads a cumulative step counter from a file.
//
// The motion driver exposes its odometer as a decimal integer in a file.
// The source emits the current value on Start and again on every write,
// create or rename event for the file. The directory is watched rather
// than the file so atomic replace-by-rename is seen.
type OdometerSource struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
}

// NewOdometerSource creates a stopped source for the counter file at path.
func NewOdometerSource(path string) *OdometerSource {
	return &OdometerSource{path: path}
}

// Name implements Source.
func (s *OdometerSource) Name() string {
	return KindOdometer
}

// Start implements Source.
func (s *OdometerSource) Start(ctx context.Context, _ time.Time, fn Handler) error {
	if err := s.Stop(); err != nil {
		slog.Warn("stopping previous odometer watcher", "error", err)
	}

	absPath, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("resolve odometer path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create odometer watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch odometer directory: %w", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})

	s.mu.Lock()
	s.watcher = watcher
	s.stop = stop
	s.done = done
	s.mu.Unlock()

	s.emit(absPath, fn)
	go s.watchLoop(ctx, absPath, watcher, stop, done, fn)

	return nil
}

// Stop implements Source.
func (s *OdometerSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		return nil
	}

	close(s.stop)
	err := s.watcher.Close()
	<-s.done

	s.watcher = nil
	s.stop = nil
	s.done = nil

	if err != nil {
		return fmt.Errorf("close odometer watcher: %w", err)
	}
	return nil
}

func (s *OdometerSource) watchLoop(ctx context.Context, path string, w *fsnotify.Watcher, stop, done chan struct{}, fn Handler) {
	defer close(done)
	name := filepath.Base(path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				s.emit(path, fn)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Error("odometer watcher error", "path", path, "error", err)
		}
	}
}

func (s *OdometerSource) emit(path string, fn Handler) {
	value, err := ReadOdometerFile(path)
	if err != nil {
		slog.Debug("odometer read skipped", "path", path, "error", err)
		return
	}
	fn(tracker.Reading{
		OdometerValue: value,
		ObservedAt:    time.Now(),
		Source:        KindOdometer,
	})
}

// ReadOdometerFile parses the counter file at path.
func ReadOdometerFile(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read odometer: %w", err)
	}

	text := strings.TrimSpace(string(data))
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse odometer %q: %w", text, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("parse odometer %q: %w", text, ErrNegativeValue)
	}
	return value, nil
}
