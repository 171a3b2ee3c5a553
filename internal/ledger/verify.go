package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/ledger-backend/internal/domain"
)

// verifyCheckEvery is how many entries are verified between context checks.
const verifyCheckEvery = 256

// VerifyResult is the outcome of a chain verification.
//
// Verified is false when the walk did not finish (cancellation); such a
// result is never Valid.
type VerifyResult struct {
	Valid             bool                   `json:"valid"`
	Verified          bool                   `json:"verified"`
	Checked           int                    `json:"checked"`
	FirstFailingIndex *int                   `json:"firstFailingIndex,omitempty"`
	Failure           *domain.IntegrityError `json:"failure,omitempty"`
	Checkpoint        *Checkpoint            `json:"checkpoint,omitempty"`
}

// Verify walks the current snapshot from oldest to newest and reports the
// first entry whose hash or link does not match. Appends made while Verify
// runs are not observed and are not blocked.
func (l *Ledger[A]) Verify(ctx context.Context) (VerifyResult, error) {
	s := l.snapshot()

	anchor := ""
	if s.checkpoint != nil {
		anchor = s.checkpoint.Hash
		if l.opts.signer != nil {
			if err := l.opts.signer.VerifyCheckpoint(*s.checkpoint); err != nil {
				res := failed(domain.IntegrityError{
					Index:    0,
					Kind:     domain.IntegrityCheckpointMismatch,
					Expected: "valid checkpoint signature",
					Actual:   err.Error(),
				}, s.entries)
				res.Checkpoint = l.Checkpoint()
				return res, nil
			}
		}
	}

	res, err := VerifyEntries(ctx, s.entries, anchor, l.opts.digest)
	if s.checkpoint != nil {
		cp := *s.checkpoint
		res.Checkpoint = &cp
	}
	return res, err
}

// VerifyEntries verifies an ordered slice of entries. anchor is the expected
// previous hash of the first entry; empty means the first entry must be
// genesis.
func VerifyEntries[A Action](ctx context.Context, entries []Entry[A], anchor string, d Digest) (VerifyResult, error) {
	prev := anchor
	for i, e := range entries {
		if i%verifyCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return VerifyResult{Checked: i}, err
			}
		}

		if field, bad := e.invalidUTF8Field(); bad {
			res := failed(domain.IntegrityError{
				Index:    i,
				EntryID:  e.ID,
				Kind:     domain.IntegrityHashMismatch,
				Expected: "valid UTF-8",
				Actual:   field,
			}, entries)
			res.Checked = i + 1
			return res, nil
		}
		// The hash input carries milliseconds only.
		if !e.Timestamp.Equal(e.Timestamp.Truncate(time.Millisecond)) {
			res := failed(domain.IntegrityError{
				Index:    i,
				EntryID:  e.ID,
				Kind:     domain.IntegrityHashMismatch,
				Expected: "millisecond timestamp",
				Actual:   e.Timestamp.Format(time.RFC3339Nano),
			}, entries)
			res.Checked = i + 1
			return res, nil
		}

		want, err := ComputeHash(e, d)
		if err != nil {
			return VerifyResult{Checked: i}, err
		}
		if want != e.Hash {
			res := failed(domain.IntegrityError{
				Index:    i,
				EntryID:  e.ID,
				Kind:     domain.IntegrityHashMismatch,
				Expected: want,
				Actual:   e.Hash,
			}, entries)
			res.Checked = i + 1
			return res, nil
		}

		if e.PreviousHash != prev {
			res := failed(domain.IntegrityError{
				Index:    i,
				EntryID:  e.ID,
				Kind:     domain.IntegrityLinkMismatch,
				Expected: prev,
				Actual:   e.PreviousHash,
			}, entries)
			res.Checked = i + 1
			return res, nil
		}
		prev = e.Hash
	}

	return VerifyResult{Valid: true, Verified: true, Checked: len(entries)}, nil
}

func failed[A Action](ie domain.IntegrityError, entries []Entry[A]) VerifyResult {
	if ie.Index < len(entries) && ie.EntryID == uuid.Nil {
		ie.EntryID = entries[ie.Index].ID
	}
	idx := ie.Index
	return VerifyResult{
		Verified:          true,
		FirstFailingIndex: &idx,
		Failure:           &ie,
	}
}
