package kb

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/synobot/core/logger"
)

// Store serves the current knowledge base snapshot and swaps it atomically on reload.
// Readers never observe a partially loaded tree.
type Store struct {
	path    string
	current atomic.Pointer[Base]

	mu      sync.Mutex // serializes reloads
	modTime time.Time
}

// NewStore loads path (falling back to the built-in base) and returns a ready Store.
func NewStore(path string) *Store {
	s := &Store{path: path}
	s.modTime = fileModTime(path)
	s.current.Store(LoadOrFallback(path))
	return s
}

// NewStaticStore wraps an already loaded base; Reload keeps it when path is empty.
func NewStaticStore(b *Base) *Store {
	s := &Store{}
	s.current.Store(b)
	return s
}

// Current returns the active snapshot.
func (s *Store) Current() *Base {
	return s.current.Load()
}

// Path returns the knowledge base source path.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the source and swaps it in. On error the previous snapshot stays active.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}

	start := time.Now()
	b, err := Load(s.path)
	if err != nil {
		logger.KB.LogAttrs(context.Background(), slog.LevelWarn, "kb.reload",
			slog.String("status", "fail"),
			slog.String("path_kb", s.path),
			slog.String("err", err.Error()),
		)
		return err
	}
	s.current.Store(b)
	s.modTime = fileModTime(s.path)
	logger.KB.LogAttrs(context.Background(), slog.LevelInfo, "kb.reload",
		slog.String("status", "ok"),
		slog.String("path_kb", s.path),
		slog.Int("categories", b.Len()),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// Watch polls the source modification time every interval and reloads on change
// until ctx is done.
func (s *Store) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.path == "" {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.changed() {
				_ = s.Reload()
			}
		}
	}
}

func (s *Store) changed() bool {
	mt := fileModTime(s.path)
	s.mu.Lock()
	defer s.mu.Unlock()
	return !mt.IsZero() && !mt.Equal(s.modTime)
}

func fileModTime(path string) time.Time {
	if path == "" {
		return time.Time{}
	}
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}
