// Package integrity periodically verifies every ledger and latches the first
// integrity failure of each one until the process restarts. A detected
// failure is an operator alert; it is never cleared by a later read.
package integrity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/heartmarshall/ledger-backend/internal/domain"
	"github.com/heartmarshall/ledger-backend/internal/ledger"
)

type verifier interface {
	Name() string
	Verify(ctx context.Context) (ledger.VerifyResult, error)
}

// Failure is a latched integrity failure.
type Failure struct {
	Ledger     string                 `json:"ledger"`
	DetectedAt time.Time              `json:"detectedAt"`
	Error      *domain.IntegrityError `json:"error"`
}

// Watchdog verifies ledgers on a schedule.
type Watchdog struct {
	ledgers  []verifier
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	failures map[string]Failure
	lastRun  time.Time
}

// NewWatchdog creates a watchdog over the given ledgers.
func NewWatchdog(log *slog.Logger, interval, timeout time.Duration, ledgers ...verifier) *Watchdog {
	return &Watchdog{
		ledgers:  ledgers,
		interval: interval,
		timeout:  timeout,
		log:      log.With("component", "integrity"),
		now:      time.Now,
		failures: make(map[string]Failure),
	}
}

// Run checks all ledgers immediately and then every interval until ctx is
// cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Check(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Check verifies every ledger once. A verification that does not finish
// within the timeout is logged and not treated as a pass or a failure.
func (w *Watchdog) Check(ctx context.Context) {
	for _, l := range w.ledgers {
		vctx, cancel := context.WithTimeout(ctx, w.timeout)
		res, err := l.Verify(vctx)
		cancel()

		if err != nil {
			if ctx.Err() == nil {
				w.log.WarnContext(ctx, "ledger verification did not complete",
					slog.String("ledger", l.Name()),
					slog.Int("checked", res.Checked),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		w.Raise(ctx, l.Name(), res)
	}

	w.mu.Lock()
	w.lastRun = w.now()
	w.mu.Unlock()
}

// Raise latches res if it reports a failure. The first failure per ledger
// is kept.
func (w *Watchdog) Raise(ctx context.Context, ledgerName string, res ledger.VerifyResult) {
	if res.Valid || !res.Verified || res.Failure == nil {
		return
	}

	w.mu.Lock()
	_, latched := w.failures[ledgerName]
	if !latched {
		w.failures[ledgerName] = Failure{Ledger: ledgerName, DetectedAt: w.now(), Error: res.Failure}
	}
	w.mu.Unlock()

	w.log.ErrorContext(ctx, "LEDGER INTEGRITY FAILURE",
		slog.String("ledger", ledgerName),
		slog.String("kind", res.Failure.Kind.String()),
		slog.Int("index", res.Failure.Index),
		slog.String("entry_id", res.Failure.EntryID.String()),
		slog.String("expected", res.Failure.Expected),
		slog.String("actual", res.Failure.Actual),
	)
}

// Failures returns the latched failures keyed by ledger name.
func (w *Watchdog) Failures() map[string]Failure {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make(map[string]Failure, len(w.failures))
	for k, v := range w.failures {
		out[k] = v
	}
	return out
}

// Healthy reports whether no failure has been latched.
func (w *Watchdog) Healthy() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.failures) == 0
}

// LastRun returns when the last full check finished.
func (w *Watchdog) LastRun() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastRun
}
