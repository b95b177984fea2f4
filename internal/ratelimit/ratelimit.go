// Package ratelimit limits how often one client may call the recording endpoints.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request keyed by client may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Memory is a per-key fixed-window limiter held in process memory.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

type window struct {
	count int
	start time.Time
}

// maxTracked bounds the key map before expired windows are swept.
const maxTracked = 10000

// NewMemory allows limit requests per key in each period.
func NewMemory(limit int, period time.Duration) *Memory {
	return &Memory{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Allow counts a request for key.
func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	if m.limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if len(m.windows) >= maxTracked {
		m.sweep(now)
	}

	w, ok := m.windows[key]
	if !ok {
		w = &window{start: now}
		m.windows[key] = w
	}
	if now.Sub(w.start) >= m.period {
		w.start = now
		w.count = 0
	}
	if w.count >= m.limit {
		return Decision{
			Allowed:    false,
			Limit:      m.limit,
			RetryAfter: w.start.Add(m.period).Sub(now),
		}, nil
	}
	w.count++
	return Decision{Allowed: true, Limit: m.limit, Remaining: m.limit - w.count}, nil
}

func (m *Memory) sweep(now time.Time) {
	for k, w := range m.windows {
		if now.Sub(w.start) >= m.period {
			delete(m.windows, k)
		}
	}
}
