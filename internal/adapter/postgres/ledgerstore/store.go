// Package ledgerstore persists hash-chained ledger entries and their
// retention checkpoints in PostgreSQL. Rows are only ever inserted; the
// schema rejects UPDATE and DELETE on ledger_entries.
package ledgerstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	postgres "github.com/heartmarshall/ledger-backend/internal/adapter/postgres"
	"github.com/heartmarshall/ledger-backend/internal/domain"
	"github.com/heartmarshall/ledger-backend/internal/ledger"
)

const (
	entriesTable     = "ledger_entries"
	checkpointsTable = "ledger_checkpoints"
)

var entryColumns = []string{
	"ledger", "sequence", "id", "ts", "actor_id", "action", "resource", "resource_id",
	"details", "ip_address", "user_agent", "previous_hash", "hash",
}

// builder returns a squirrel statement builder using PostgreSQL placeholders.
func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

type txRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store implements ledger.EntryWriter and loads persisted chains back for
// ledger.Restore.
type Store struct {
	q  postgres.Querier
	tx txRunner
}

// New creates a store. q is usually a *pgxpool.Pool; writes run inside tx.
func New(q postgres.Querier, tx txRunner) *Store {
	return &Store{q: q, tx: tx}
}

type entryRow struct {
	Ledger       string    `db:"ledger"`
	Sequence     int64     `db:"sequence"`
	ID           uuid.UUID `db:"id"`
	Timestamp    time.Time `db:"ts"`
	ActorID      *string   `db:"actor_id"`
	Action       string    `db:"action"`
	Resource     string    `db:"resource"`
	ResourceID   *string   `db:"resource_id"`
	Details      []byte    `db:"details"`
	IPAddress    *string   `db:"ip_address"`
	UserAgent    *string   `db:"user_agent"`
	PreviousHash *string   `db:"previous_hash"`
	Hash         string    `db:"hash"`
}

func (r entryRow) record() ledger.Record {
	rec := ledger.Record{
		ID:         r.ID,
		Sequence:   uint64(r.Sequence),
		Timestamp:  r.Timestamp.UTC(),
		ActorID:    r.ActorID,
		Action:     r.Action,
		Resource:   r.Resource,
		ResourceID: r.ResourceID,
		Details:    r.Details,
		IPAddress:  r.IPAddress,
		UserAgent:  r.UserAgent,
		Hash:       r.Hash,
	}
	if r.PreviousHash != nil {
		rec.PreviousHash = *r.PreviousHash
	}
	return rec
}

type checkpointRow struct {
	Ledger    string    `db:"ledger"`
	Sequence  int64     `db:"sequence"`
	Hash      string    `db:"hash"`
	EvictedAt time.Time `db:"evicted_at"`
	Signature string    `db:"signature"`
}

func (r checkpointRow) checkpoint() *ledger.Checkpoint {
	return &ledger.Checkpoint{
		Ledger:    r.Ledger,
		Sequence:  uint64(r.Sequence),
		Hash:      r.Hash,
		EvictedAt: r.EvictedAt.UTC(),
		Signature: r.Signature,
	}
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// WriteEntries inserts records and upserts cp in one transaction. Records
// already stored under the same (ledger, sequence) are skipped, so a batch
// retried after a partial failure is safe.
func (s *Store) WriteEntries(ctx context.Context, name string, records []ledger.Record, cp *ledger.Checkpoint) error {
	if len(records) == 0 && cp == nil {
		return nil
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := postgres.QuerierFromCtx(ctx, s.q)

		if len(records) > 0 {
			insert := builder().
				Insert(entriesTable).
				Columns(entryColumns...).
				Suffix("ON CONFLICT (ledger, sequence) DO NOTHING")
			for _, r := range records {
				insert = insert.Values(
					name, int64(r.Sequence), r.ID, r.Timestamp, r.ActorID, r.Action, r.Resource, r.ResourceID,
					nullBytes(r.Details), r.IPAddress, r.UserAgent, nullString(r.PreviousHash), r.Hash,
				)
			}

			sql, args, err := insert.ToSql()
			if err != nil {
				return fmt.Errorf("build insert: %w", err)
			}
			if _, err := q.Exec(ctx, sql, args...); err != nil {
				return postgres.MapError(err, "ledger_entries", name)
			}
		}

		if cp != nil {
			upsert := builder().
				Insert(checkpointsTable).
				Columns("ledger", "sequence", "hash", "evicted_at", "signature").
				Values(name, int64(cp.Sequence), cp.Hash, cp.EvictedAt, cp.Signature).
				Suffix(`ON CONFLICT (ledger) DO UPDATE SET
					sequence = EXCLUDED.sequence,
					hash = EXCLUDED.hash,
					evicted_at = EXCLUDED.evicted_at,
					signature = EXCLUDED.signature,
					updated_at = now()
				WHERE ledger_checkpoints.sequence < EXCLUDED.sequence`)

			sql, args, err := upsert.ToSql()
			if err != nil {
				return fmt.Errorf("build checkpoint upsert: %w", err)
			}
			if _, err := q.Exec(ctx, sql, args...); err != nil {
				return postgres.MapError(err, "ledger_checkpoints", name)
			}
		}
		return nil
	})
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// Load returns the newest tail records of a ledger in sequence order
// together with the anchor that precedes the oldest of them. tail <= 0
// loads the whole chain. The anchor is nil when the chain starts at genesis.
func (s *Store) Load(ctx context.Context, name string, tail int) ([]ledger.Record, *ledger.Checkpoint, error) {
	q := postgres.QuerierFromCtx(ctx, s.q)

	query := builder().
		Select(entryColumns...).
		From(entriesTable).
		Where(sq.Eq{"ledger": name}).
		OrderBy("sequence DESC")
	if tail > 0 {
		query = query.Limit(uint64(tail))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build select: %w", err)
	}

	var rows []entryRow
	if err := pgxscan.Select(ctx, q, &rows, sql, args...); err != nil {
		return nil, nil, postgres.MapError(err, "ledger_entries", name)
	}
	slices.Reverse(rows)

	records := make([]ledger.Record, len(rows))
	for i, r := range rows {
		records[i] = r.record()
	}

	stored, err := s.checkpoint(ctx, q, name)
	if err != nil {
		return nil, nil, err
	}

	if len(records) == 0 {
		return nil, stored, nil
	}

	first := records[0]
	if first.Sequence == 1 {
		return records, nil, nil
	}

	if stored != nil && stored.Sequence == first.Sequence-1 && stored.Hash == first.PreviousHash {
		return records, stored, nil
	}

	prior, err := s.entryAt(ctx, q, name, first.Sequence-1)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, fmt.Errorf("ledger %s: no anchor before sequence %d: %w", name, first.Sequence, domain.ErrIntegrity)
		}
		return nil, nil, err
	}
	return records, &ledger.Checkpoint{
		Ledger:    name,
		Sequence:  prior.Sequence,
		Hash:      prior.Hash,
		EvictedAt: prior.Timestamp,
	}, nil
}

// Count returns the number of persisted entries of a ledger.
func (s *Store) Count(ctx context.Context, name string) (int64, error) {
	q := postgres.QuerierFromCtx(ctx, s.q)

	sql, args, err := builder().
		Select("count(*)").
		From(entriesTable).
		Where(sq.Eq{"ledger": name}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int64
	if err := q.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, postgres.MapError(err, "ledger_entries", name)
	}
	return n, nil
}

func (s *Store) entryAt(ctx context.Context, q postgres.Querier, name string, seq uint64) (ledger.Record, error) {
	sql, args, err := builder().
		Select(entryColumns...).
		From(entriesTable).
		Where(sq.Eq{"ledger": name, "sequence": int64(seq)}).
		ToSql()
	if err != nil {
		return ledger.Record{}, fmt.Errorf("build select: %w", err)
	}

	var row entryRow
	if err := pgxscan.Get(ctx, q, &row, sql, args...); err != nil {
		key := fmt.Sprintf("%s/%d", name, seq)
		if pgxscan.NotFound(err) {
			return ledger.Record{}, fmt.Errorf("ledger_entries %s: %w", key, domain.ErrNotFound)
		}
		return ledger.Record{}, postgres.MapError(err, "ledger_entries", key)
	}
	return row.record(), nil
}

func (s *Store) checkpoint(ctx context.Context, q postgres.Querier, name string) (*ledger.Checkpoint, error) {
	sql, args, err := builder().
		Select("ledger", "sequence", "hash", "evicted_at", "signature").
		From(checkpointsTable).
		Where(sq.Eq{"ledger": name}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []checkpointRow
	if err := pgxscan.Select(ctx, q, &rows, sql, args...); err != nil {
		return nil, postgres.MapError(err, "ledger_checkpoints", name)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].checkpoint(), nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
