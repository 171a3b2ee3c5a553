package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// EntryWriter stores ledger records. Records arrive in sequence order and
// may be retried, so implementations must ignore records already stored.
// cp, when non-nil, is the latest retention checkpoint.
type EntryWriter interface {
	WriteEntries(ctx context.Context, ledger string, records []Record, cp *Checkpoint) error
}

const finalFlushTimeout = 10 * time.Second

// Persister drains appended entries into an EntryWriter in the background.
// It runs outside the append critical section: Append only signals it.
// There must be at most one Persister per Ledger.
type Persister[A Action] struct {
	ledger    *Ledger[A]
	writer    EntryWriter
	log       *slog.Logger
	batchSize int
	retry     time.Duration

	mu          sync.Mutex
	persisted   uint64
	persistedCP uint64
}

// NewPersister creates a persister that treats everything currently in the
// ledger as already stored. Create it after Restore.
func NewPersister[A Action](l *Ledger[A], w EntryWriter, logger *slog.Logger, batchSize int, retry time.Duration) *Persister[A] {
	if batchSize <= 0 {
		batchSize = 500
	}
	if retry <= 0 {
		retry = 5 * time.Second
	}
	p := &Persister[A]{
		ledger:    l,
		writer:    w,
		log:       logger.With("component", "persister", "ledger", l.Name()),
		batchSize: batchSize,
		retry:     retry,
		persisted: l.Sequence(),
	}
	if cp := l.Checkpoint(); cp != nil {
		p.persistedCP = cp.Sequence
	}
	return p
}

// Run flushes on every append signal and on every retry tick until ctx is
// cancelled, then performs a final flush and returns nil.
func (p *Persister[A]) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.retry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			defer cancel()
			if err := p.Flush(flushCtx); err != nil {
				p.log.Error("final flush failed", slog.String("error", err.Error()))
			}
			return nil
		case <-p.ledger.notify:
		case <-ticker.C:
		}

		if err := p.Flush(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("flush failed, will retry",
				slog.Duration("retry_in", p.retry),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Flush writes every entry not yet stored, in batches.
func (p *Persister[A]) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if first := p.ledger.FirstSequence(); first > p.persisted+1 {
			p.log.Error("entries evicted before they were persisted",
				slog.Uint64("from_sequence", p.persisted+1),
				slog.Uint64("to_sequence", first-1),
			)
			p.persisted = first - 1
		}

		records := p.ledger.Records(p.persisted, p.batchSize)
		var cp *Checkpoint
		if c := p.ledger.Checkpoint(); c != nil && c.Sequence > p.persistedCP {
			cp = c
		}
		if len(records) == 0 && cp == nil {
			return nil
		}

		if err := p.writer.WriteEntries(ctx, p.ledger.Name(), records, cp); err != nil {
			return fmt.Errorf("write %d records: %w", len(records), err)
		}
		if len(records) > 0 {
			p.persisted = records[len(records)-1].Sequence
		}
		if cp != nil {
			p.persistedCP = cp.Sequence
		}
		if len(records) < p.batchSize {
			return nil
		}
	}
}

// Persisted returns the sequence of the newest stored entry.
func (p *Persister[A]) Persisted() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.persisted
}
