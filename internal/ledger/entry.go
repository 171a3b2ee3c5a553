// Package ledger implements an append-only, hash-chained ledger. Every entry
// commits to its own fields and to the hash of the entry before it, so any
// retroactive change, removal or reordering is detectable by Verify.
//
// A Ledger has exactly one writer critical section. Readers work on an
// immutable snapshot published atomically after each append and never block
// the writer.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/heartmarshall/ledger-backend/internal/domain"
)

// Action is the constraint for the closed action enumeration of a ledger.
type Action interface {
	~string
	IsValid() bool
}

// Entry is one immutable ledger record. Callers must treat returned entries
// as read-only values.
type Entry[A Action] struct {
	ID           uuid.UUID       `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	ActorID      *string         `json:"actorId"`
	Action       A               `json:"action"`
	Resource     string          `json:"resource"`
	ResourceID   *string         `json:"resourceId"`
	Details      json.RawMessage `json:"details"`
	IPAddress    *string         `json:"ipAddress"`
	UserAgent    *string         `json:"userAgent"`
	PreviousHash string          `json:"previousHash"`
	Hash         string          `json:"hash"`

	// Sequence is the 1-based position since genesis. It orders storage and
	// is not part of the hash input; position is protected by linkage.
	Sequence uint64 `json:"sequence"`
}

// IsGenesis reports whether the entry carries the "none" previous hash.
func (e Entry[A]) IsGenesis() bool { return e.PreviousHash == "" }

// Fields are the caller-supplied parts of a new entry. ID, timestamp,
// previous hash, hash and sequence are always computed by the ledger.
type Fields[A Action] struct {
	ActorID    *string
	Action     A
	Resource   string
	ResourceID *string
	Details    json.RawMessage
	IPAddress  *string
	UserAgent  *string
}

func (f Fields[A]) validate() error {
	var errs []domain.FieldError
	if f.Action == "" {
		errs = append(errs, domain.FieldError{Field: "action", Message: "required"})
	} else if !f.Action.IsValid() {
		errs = append(errs, domain.FieldError{Field: "action", Message: fmt.Sprintf("unknown action %q", string(f.Action))})
	}
	if f.Resource == "" {
		errs = append(errs, domain.FieldError{Field: "resource", Message: "required"})
	}
	for _, sf := range stringFields(f.ActorID, &f.Resource, f.ResourceID, f.IPAddress, f.UserAgent) {
		if !utf8.ValidString(*sf.value) {
			errs = append(errs, domain.FieldError{Field: sf.name, Message: "must be valid UTF-8"})
		}
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

type stringField struct {
	name  string
	value *string
}

// stringFields pairs the free-text fields of an entry with their JSON names,
// skipping absent ones.
func stringFields(actorID, resource, resourceID, ip, userAgent *string) []stringField {
	all := []stringField{
		{"actorId", actorID},
		{"resource", resource},
		{"resourceId", resourceID},
		{"ipAddress", ip},
		{"userAgent", userAgent},
	}
	out := all[:0]
	for _, sf := range all {
		if sf.value != nil {
			out = append(out, sf)
		}
	}
	return out
}

// invalidUTF8Field returns the name of the first string field that is not
// valid UTF-8. The JSON encoder replaces such bytes, so they are not
// protected by the hash.
func (e Entry[A]) invalidUTF8Field() (string, bool) {
	for _, sf := range stringFields(e.ActorID, &e.Resource, e.ResourceID, e.IPAddress, e.UserAgent) {
		if !utf8.ValidString(*sf.value) {
			return sf.name, true
		}
	}
	if !utf8.ValidString(string(e.Action)) {
		return "action", true
	}
	return "", false
}

// Record is the action-agnostic form of an entry used by storage adapters.
type Record struct {
	ID           uuid.UUID
	Sequence     uint64
	Timestamp    time.Time
	ActorID      *string
	Action       string
	Resource     string
	ResourceID   *string
	Details      []byte
	IPAddress    *string
	UserAgent    *string
	PreviousHash string
	Hash         string
}

// Record converts the entry to its storage form.
func (e Entry[A]) Record() Record {
	return Record{
		ID:           e.ID,
		Sequence:     e.Sequence,
		Timestamp:    e.Timestamp,
		ActorID:      e.ActorID,
		Action:       string(e.Action),
		Resource:     e.Resource,
		ResourceID:   e.ResourceID,
		Details:      e.Details,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		PreviousHash: e.PreviousHash,
		Hash:         e.Hash,
	}
}

// FromRecord converts a stored record back into a typed entry. A stored
// action outside the enumeration is reported as a *domain.IntegrityError,
// since Append never writes one.
func FromRecord[A Action](r Record) (Entry[A], error) {
	action := A(r.Action)
	if !action.IsValid() {
		return Entry[A]{}, &domain.IntegrityError{
			EntryID:  r.ID,
			Kind:     domain.IntegrityHashMismatch,
			Expected: "known action",
			Actual:   r.Action,
		}
	}
	var details json.RawMessage
	if len(r.Details) > 0 {
		details = json.RawMessage(r.Details)
	}
	return Entry[A]{
		ID:           r.ID,
		Timestamp:    r.Timestamp.UTC(),
		ActorID:      r.ActorID,
		Action:       action,
		Resource:     r.Resource,
		ResourceID:   r.ResourceID,
		Details:      details,
		IPAddress:    r.IPAddress,
		UserAgent:    r.UserAgent,
		PreviousHash: r.PreviousHash,
		Hash:         r.Hash,
		Sequence:     r.Sequence,
	}, nil
}

func cloneEntry[A Action](e Entry[A]) Entry[A] {
	if e.Details != nil {
		e.Details = append(json.RawMessage(nil), e.Details...)
	}
	return e
}
