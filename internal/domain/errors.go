package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrIntegrity           = errors.New("integrity violation")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrLedgerNotEmpty      = errors.New("ledger not empty")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
// An entry is never created when validation fails.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

// IntegrityKind tells what kind of chain damage verification found.
type IntegrityKind string

const (
	// IntegrityHashMismatch means an entry's stored hash does not match the
	// digest of its own fields: the data or the hash was altered.
	IntegrityHashMismatch IntegrityKind = "hash_mismatch"
	// IntegrityLinkMismatch means previousHash does not point at the prior
	// entry: entries were reordered, removed or inserted.
	IntegrityLinkMismatch IntegrityKind = "link_mismatch"
	// IntegrityCheckpointMismatch means the retention checkpoint anchoring
	// the oldest retained entry failed signature verification.
	IntegrityCheckpointMismatch IntegrityKind = "checkpoint_mismatch"
)

func (k IntegrityKind) String() string { return string(k) }

// IntegrityError reports the first failing entry found by chain verification.
// It is never corrected automatically.
type IntegrityError struct {
	Index    int           `json:"index"`
	EntryID  uuid.UUID     `json:"entryId"`
	Kind     IntegrityKind `json:"kind"`
	Expected string        `json:"expected"`
	Actual   string        `json:"actual"`
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s at index %d (entry %s): expected %q, got %q",
		e.Kind, e.Index, e.EntryID, e.Expected, e.Actual)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }
