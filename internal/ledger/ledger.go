package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/ledger-backend/internal/domain"
)

// snapshot is an immutable view of the chain. Appends never write inside
// the range of a published entries slice: they only write past its end, and
// eviction only moves the start forward.
type snapshot[A Action] struct {
	entries    []Entry[A]
	checkpoint *Checkpoint
	head       string
	seq        uint64
}

type options struct {
	now        func() time.Time
	newID      func() uuid.UUID
	digest     Digest
	maxEntries int
	signer     CheckpointSigner
	logger     *slog.Logger
}

// Option configures a Ledger.
type Option func(*options)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides entry id generation.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(o *options) { o.newID = newID }
}

// WithDigest selects the hash function. Defaults to SHA-256.
func WithDigest(d Digest) Option {
	return func(o *options) { o.digest = d }
}

// WithMaxEntries enables bounded retention. Zero keeps every entry.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

// WithCheckpointSigner signs checkpoints created by eviction.
func WithCheckpointSigner(s CheckpointSigner) Option {
	return func(o *options) { o.signer = s }
}

// WithLogger sets the logger used for retention events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Ledger is an append-only hash chain of entries with action type A.
type Ledger[A Action] struct {
	name string
	opts options

	mu     sync.Mutex // serializes Append and Restore
	state  atomic.Pointer[snapshot[A]]
	notify chan struct{}
}

// New creates an empty ledger.
func New[A Action](name string, opts ...Option) *Ledger[A] {
	o := options{
		now:    time.Now,
		newID:  uuid.New,
		digest: DigestSHA256,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	l := &Ledger[A]{
		name:   name,
		opts:   o,
		notify: make(chan struct{}, 1),
	}
	l.opts.logger = o.logger.With("ledger", name)
	l.state.Store(&snapshot[A]{})
	return l
}

// Name returns the ledger name.
func (l *Ledger[A]) Name() string { return l.name }

// Digest returns the hash function in use.
func (l *Ledger[A]) Digest() Digest { return l.opts.digest }

// Append creates, hashes, links and appends a new entry, then returns it.
// It fails only on invalid fields; a valid entry is always appended.
func (l *Ledger[A]) Append(f Fields[A]) (Entry[A], error) {
	if err := f.validate(); err != nil {
		return Entry[A]{}, err
	}
	details, err := canonicalJSON(f.Details)
	if err != nil {
		return Entry[A]{}, domain.NewValidationError("details", err.Error())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.state.Load()
	e := Entry[A]{
		ID:           l.opts.newID(),
		Timestamp:    l.opts.now().UTC().Truncate(time.Millisecond),
		ActorID:      f.ActorID,
		Action:       f.Action,
		Resource:     f.Resource,
		ResourceID:   f.ResourceID,
		Details:      details,
		IPAddress:    f.IPAddress,
		UserAgent:    f.UserAgent,
		PreviousHash: cur.head,
		Sequence:     cur.seq + 1,
	}
	e.Hash, err = ComputeHash(e, l.opts.digest)
	if err != nil {
		return Entry[A]{}, fmt.Errorf("ledger %s: hash entry: %w", l.name, err)
	}

	next := &snapshot[A]{
		entries:    append(cur.entries, e),
		checkpoint: cur.checkpoint,
		head:       e.Hash,
		seq:        e.Sequence,
	}
	l.evict(next)
	l.state.Store(next)

	select {
	case l.notify <- struct{}{}:
	default:
	}

	return e, nil
}

// evict drops the oldest entries above the retention bound and records a
// checkpoint of the last one dropped. If the checkpoint cannot be signed
// nothing is evicted.
func (l *Ledger[A]) evict(s *snapshot[A]) {
	if l.opts.maxEntries <= 0 || len(s.entries) <= l.opts.maxEntries {
		return
	}

	drop := len(s.entries) - l.opts.maxEntries
	last := s.entries[drop-1]
	cp := &Checkpoint{
		Ledger:    l.name,
		Sequence:  last.Sequence,
		Hash:      last.Hash,
		EvictedAt: l.opts.now().UTC(),
	}
	if l.opts.signer != nil {
		sig, err := l.opts.signer.SignCheckpoint(*cp)
		if err != nil {
			l.opts.logger.Error("sign checkpoint, retention skipped",
				slog.Uint64("sequence", cp.Sequence),
				slog.String("error", err.Error()),
			)
			return
		}
		cp.Signature = sig
	}

	s.entries = s.entries[drop:]
	s.checkpoint = cp
	l.opts.logger.Warn("ledger entries evicted, chain now anchored at checkpoint",
		slog.Int("evicted", drop),
		slog.Uint64("checkpoint_sequence", cp.Sequence),
	)
}

// Restore loads a previously persisted chain into an empty ledger. The
// records are verified first; a damaged chain is refused with the
// *domain.IntegrityError describing the first failure.
func (l *Ledger[A]) Restore(records []Record, anchor *Checkpoint) error {
	entries := make([]Entry[A], 0, len(records))
	for i, r := range records {
		e, err := FromRecord[A](r)
		if err != nil {
			var ie *domain.IntegrityError
			if errors.As(err, &ie) {
				ie.Index = i
			}
			return fmt.Errorf("ledger %s: restore: %w", l.name, err)
		}
		entries = append(entries, e)
	}

	var cp *Checkpoint
	if anchor != nil {
		c := *anchor
		c.Ledger = l.name
		cp = &c
	}

	if cp != nil && l.opts.signer != nil {
		if cp.Signature == "" {
			sig, err := l.opts.signer.SignCheckpoint(*cp)
			if err != nil {
				return fmt.Errorf("ledger %s: sign restore anchor: %w", l.name, err)
			}
			cp.Signature = sig
		} else if err := l.opts.signer.VerifyCheckpoint(*cp); err != nil {
			return fmt.Errorf("ledger %s: restore anchor: %w", l.name, err)
		}
	}

	anchorHash := ""
	if cp != nil {
		anchorHash = cp.Hash
	}
	res, err := VerifyEntries(context.Background(), entries, anchorHash, l.opts.digest)
	if err != nil {
		return fmt.Errorf("ledger %s: restore: %w", l.name, err)
	}
	if !res.Valid {
		return fmt.Errorf("ledger %s: restore: %w", l.name, res.Failure)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.state.Load()
	if cur.seq != 0 {
		return fmt.Errorf("ledger %s: restore: %w", l.name, domain.ErrLedgerNotEmpty)
	}

	next := &snapshot[A]{entries: entries, checkpoint: cp}
	switch {
	case len(entries) > 0:
		tip := entries[len(entries)-1]
		next.head, next.seq = tip.Hash, tip.Sequence
	case cp != nil:
		next.head, next.seq = cp.Hash, cp.Sequence
	}
	l.evict(next)
	l.state.Store(next)
	return nil
}

// Len returns the number of retained entries.
func (l *Ledger[A]) Len() int { return len(l.state.Load().entries) }

// Tip returns the newest entry, or false when the ledger is empty.
func (l *Ledger[A]) Tip() (Entry[A], bool) {
	s := l.state.Load()
	if len(s.entries) == 0 {
		return Entry[A]{}, false
	}
	return cloneEntry(s.entries[len(s.entries)-1]), true
}

// Checkpoint returns the retention checkpoint, or nil when the chain still
// starts at genesis.
func (l *Ledger[A]) Checkpoint() *Checkpoint {
	cp := l.state.Load().checkpoint
	if cp == nil {
		return nil
	}
	c := *cp
	return &c
}

func (l *Ledger[A]) snapshot() *snapshot[A] { return l.state.Load() }
