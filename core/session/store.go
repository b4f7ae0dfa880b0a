package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/synobot/core/logger"
)

type entry struct {
	mu      sync.Mutex
	sess    Session
	evicted bool // set by Sweep under mu
}

// Store owns all sessions. Calls for different users run in parallel;
// calls for the same user are serialized.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do runs fn with exclusive access to the session of userID, creating it on
// first use. fn must not retain the pointer after it returns.
func (s *Store) Do(userID string, fn func(*Session)) {
	for {
		e := s.getOrCreate(userID)
		e.mu.Lock()
		if e.evicted {
			// Swept between lookup and lock; pick up the fresh entry.
			e.mu.Unlock()
			continue
		}
		fn(&e.sess)
		e.mu.Unlock()
		return
	}
}

func (s *Store) getOrCreate(userID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{sess: newSession(userID, s.now())}
		s.entries[userID] = e
	}
	return e
}

// Reset puts the session of userID back to the main menu.
func (s *Store) Reset(userID string) {
	now := s.now()
	s.Do(userID, func(sess *Session) { sess.Reset(now) })
}

// Snapshot returns a copy of the session of userID without creating one.
func (s *Store) Snapshot(userID string) (Session, bool) {
	s.mu.Lock()
	e, ok := s.entries[userID]
	s.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return Session{}, false
	}
	return e.sess, true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Now returns the store clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

// Sweep removes sessions idle for longer than ttl. Sessions that are in use are
// skipped. It returns the number of evicted sessions; ttl <= 0 disables eviction.
func (s *Store) Sweep(now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		if now.Sub(e.sess.LastInteraction) > ttl {
			e.evicted = true
			delete(s.entries, id)
			evicted++
		}
		e.mu.Unlock()
	}
	return evicted
}

// StartSweeper runs Sweep every interval in a background goroutine until ctx is done.
func (s *Store) StartSweeper(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		logger.SESS.LogAttrs(ctx, slog.LevelInfo, "session.sweeper",
			slog.String("status", "skip"),
		)
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		logger.SESS.LogAttrs(ctx, slog.LevelInfo, "session.sweeper",
			slog.String("status", "ok"),
			slog.Duration("interval", interval),
			slog.Duration("ttl", ttl),
		)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				n := s.Sweep(s.now(), ttl)
				if n == 0 {
					continue
				}
				logger.SESS.LogAttrs(ctx, slog.LevelInfo, "session.sweep",
					slog.String("status", "ok"),
					slog.Int("count", n),
					slog.Int("sessions", s.Len()),
					slog.Duration("duration", logger.Took(start)),
				)
			}
		}
	}()
}
