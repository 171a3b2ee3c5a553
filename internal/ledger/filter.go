package ledger

import (
	"sort"
	"time"
)

// Filter selects entries. Nil fields do not constrain the result; From and
// To are inclusive. Limit <= 0 means no limit.
type Filter[A Action] struct {
	ActorID    *string
	Action     *A
	Resource   *string
	ResourceID *string
	From       *time.Time
	To         *time.Time

	// Match is an extra predicate applied after the field filters.
	Match func(Entry[A]) bool

	Limit int
}

func (f Filter[A]) matches(e Entry[A]) bool {
	if f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID) {
		return false
	}
	if f.Action != nil && e.Action != *f.Action {
		return false
	}
	if f.Resource != nil && e.Resource != *f.Resource {
		return false
	}
	if f.ResourceID != nil && (e.ResourceID == nil || *e.ResourceID != *f.ResourceID) {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if f.Match != nil && !f.Match(e) {
		return false
	}
	return true
}

// Entries returns the entries matching f, newest first, taken from a
// snapshot of the chain at call time. The returned entries are copies.
func (l *Ledger[A]) Entries(f Filter[A]) []Entry[A] {
	s := l.snapshot()

	capHint := len(s.entries)
	if f.Limit > 0 && f.Limit < capHint {
		capHint = f.Limit
	}
	out := make([]Entry[A], 0, capHint)
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !f.matches(e) {
			continue
		}
		out = append(out, cloneEntry(e))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Count returns the number of entries matching f, ignoring Limit.
func (l *Ledger[A]) Count(f Filter[A]) int {
	s := l.snapshot()
	n := 0
	for _, e := range s.entries {
		if f.matches(e) {
			n++
		}
	}
	return n
}

// Records returns the storage form of every retained entry with
// Sequence > after, oldest first, at most limit records (limit <= 0: all).
func (l *Ledger[A]) Records(after uint64, limit int) []Record {
	s := l.snapshot()
	start := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Sequence > after
	})
	end := len(s.entries)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]Record, 0, end-start)
	for _, e := range s.entries[start:end] {
		out = append(out, cloneEntry(e).Record())
	}
	return out
}

// Sequence returns the sequence number of the chain tip, including
// entries already evicted.
func (l *Ledger[A]) Sequence() uint64 { return l.snapshot().seq }

// FirstSequence returns the sequence of the oldest retained entry, or 0
// when nothing is retained.
func (l *Ledger[A]) FirstSequence() uint64 {
	s := l.snapshot()
	if len(s.entries) == 0 {
		return 0
	}
	return s.entries[0].Sequence
}
