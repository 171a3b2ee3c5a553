package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter() (*Limiter, *manualClock) {
	clock := &manualClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(WithClock(clock.Now)), clock
}

func TestLimiter_FixedWindowScenario(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter()
	cfg := Config{Requests: 5, Window: time.Minute}
	start := clock.Now()
	wantReset := start.Add(time.Second).Add(time.Minute)

	for i, wantRemaining := range []int{4, 3, 2, 1, 0} {
		clock.Advance(time.Second)
		d := l.Check("user-1", cfg)
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, wantRemaining, d.Remaining, "request %d", i+1)
		assert.Equal(t, 5, d.Limit)
		assert.Equal(t, wantReset, d.ResetAt)
		assert.Nil(t, d.RetryAfter)
	}

	clock.Advance(time.Second)
	d := l.Check("user-1", cfg)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	require.NotNil(t, d.RetryAfter)
	assert.Equal(t, wantReset, *d.RetryAfter)

	// Denials do not extend or consume the window.
	d = l.Check("user-1", cfg)
	assert.False(t, d.Allowed)
	assert.Equal(t, wantReset, d.ResetAt)

	clock.Advance(time.Minute)
	d = l.Check("user-1", cfg)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
	assert.True(t, d.ResetAt.After(wantReset))
}

func TestLimiter_ResetExactlyAtResetTime(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter()
	cfg := Config{Requests: 1, Window: time.Minute}

	first := l.Check("k", cfg)
	require.True(t, first.Allowed)

	clock.Advance(time.Minute - time.Nanosecond)
	assert.False(t, l.Check("k", cfg).Allowed)

	clock.Advance(time.Nanosecond)
	d := l.Check("k", cfg)
	assert.True(t, d.Allowed, "window resets when now reaches resetAt")
	assert.Equal(t, first.ResetAt.Add(time.Minute), d.ResetAt)
}

func TestLimiter_KeysIndependent(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter()
	cfg := Config{Requests: 2, Window: time.Minute}

	l.Check("a", cfg)
	l.Check("a", cfg)
	assert.False(t, l.Check("a", cfg).Allowed)
	assert.True(t, l.Check("b", cfg).Allowed)
}

func TestLimiter_NonPositiveLimitDenies(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter()
	d := l.Check("k", Config{Requests: 0, Window: time.Minute})
	assert.False(t, d.Allowed)
	require.NotNil(t, d.RetryAfter)
}

func TestLimiter_Sweep(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter()
	short := Config{Requests: 10, Window: time.Second}
	long := Config{Requests: 10, Window: time.Hour}

	for i := 0; i < 50; i++ {
		l.Check(fmt.Sprintf("short-%d", i), short)
	}
	l.Check("long", long)
	require.Equal(t, 51, l.Len())

	assert.Zero(t, l.Sweep(), "nothing expired yet")

	clock.Advance(time.Second)
	assert.Equal(t, 50, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestLimiter_ConcurrentSameKey(t *testing.T) {
	t.Parallel()

	l := New()
	cfg := Config{Requests: 100, Window: time.Hour}

	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if l.Check("shared", cfg).Allowed {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), allowed.Load(), "exactly the limit is admitted")
}

func TestLimiter_ConcurrentDistinctKeys(t *testing.T) {
	t.Parallel()

	l := New()
	cfg := Config{Requests: 3, Window: time.Hour}

	var wg sync.WaitGroup
	for g := 0; g < 64; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", g)
			for i := 0; i < 3; i++ {
				assert.True(t, l.Check(key, cfg).Allowed)
			}
			assert.False(t, l.Check(key, cfg).Allowed)
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 64, l.Len())
}

func TestLimiter_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter()
	l.Check("k", Config{Requests: 1, Window: time.Second})
	clock.Advance(time.Second)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return l.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPresets_Get(t *testing.T) {
	t.Parallel()

	p := Presets{PresetAuth: {Requests: 5, Window: 15 * time.Minute}}

	cfg, err := p.Get(PresetAuth)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Requests)

	_, err = p.Get(PresetAdmin)
	assert.Error(t, err)
}
