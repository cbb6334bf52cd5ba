package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps window counters in process memory. It suits a single
// instance and tests; use RedisStore when several instances share quotas.
type MemoryStore struct {
	mu         sync.Mutex
	windows    map[string]*window
	now        func() time.Time
	sweepEvery time.Duration
	lastSweep  time.Time
}

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithSweepEvery sets how often expired windows are dropped. Sweeps run
// inline during Take.
func WithSweepEvery(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.sweepEvery = d }
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		windows:    make(map[string]*window),
		now:        time.Now,
		sweepEvery: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastSweep = s.now()
	return s
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, key string, limit int64, d time.Duration) (Result, error) {
	if d <= 0 {
		return Result{}, fmt.Errorf("ratelimit: window must be positive, got %v", d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(d)}
		s.windows[key] = w
	}

	res := Result{Limit: limit, ResetIn: w.resetAt.Sub(now)}
	if w.count >= limit {
		res.Count = w.count
		return res, nil
	}
	w.count++
	res.Allowed = true
	res.Count = w.count
	return res, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	if s.sweepEvery <= 0 || now.Sub(s.lastSweep) < s.sweepEvery {
		return
	}
	for k, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, k)
		}
	}
	s.lastSweep = now
}
