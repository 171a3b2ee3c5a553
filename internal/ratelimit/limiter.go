// Package ratelimit implements fixed-window request counting keyed by caller
// identity. A window opens on the first request for a key, counts requests
// until its reset time and then starts over; it never slides.
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// Config is a limit of Requests per Window.
type Config struct {
	Requests int
	Window   time.Duration
}

// Decision is the outcome of a Check. RetryAfter is set only on denial and
// equals ResetAt.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter *time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// Limiter holds per-key windows spread over independently locked shards.
// Checks on different keys rarely contend; checks on the same key are
// serialized by the shard lock.
type Limiter struct {
	shards [shardCount]shard
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{now: time.Now}
	for i := range l.shards {
		l.shards[i].windows = make(map[string]*window)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.shards[h.Sum32()%shardCount]
}

// Check counts one request for key against cfg. A denied request does not
// increment the counter. A non-positive cfg.Requests denies everything.
func (l *Limiter) Check(key string, cfg Config) Decision {
	now := l.now()
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(cfg.Window)}
		s.windows[key] = w
	}

	d := Decision{Limit: cfg.Requests, ResetAt: w.resetAt}
	if w.count >= cfg.Requests {
		retry := w.resetAt
		d.RetryAfter = &retry
		return d
	}

	w.count++
	d.Allowed = true
	d.Remaining = cfg.Requests - w.count
	return d
}

// Sweep removes expired windows and returns how many were removed. It locks
// one shard at a time.
func (l *Limiter) Sweep() int {
	now := l.now()
	removed := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for key, w := range s.windows {
			if !now.Before(w.resetAt) {
				delete(s.windows, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked windows.
func (l *Limiter) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}

// Run sweeps every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Sweep()
		}
	}
}
