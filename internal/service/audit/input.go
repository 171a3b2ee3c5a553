package audit

import (
	"fmt"
	"strings"

	"github.com/heartmarshall/ledger-backend/internal/domain"
)

// RecordInput describes one audit event.
type RecordInput struct {
	ActorID    *string
	Action     domain.AuditAction
	Resource   string
	ResourceID *string
	Details    domain.AuditDetails
	IPAddress  *string
	UserAgent  *string
}

// Validate checks the action against the taxonomy and the details payload
// against the action's category.
func (i RecordInput) Validate() error {
	var errs []domain.FieldError

	if i.Action == "" {
		errs = append(errs, domain.FieldError{Field: "action", Message: "required"})
	} else if !i.Action.IsValid() {
		errs = append(errs, domain.FieldError{Field: "action", Message: fmt.Sprintf("unknown action %q", i.Action)})
	} else if i.Details != nil && i.Details.Category() != i.Action.Category() {
		errs = append(errs, domain.FieldError{
			Field:   "details",
			Message: fmt.Sprintf("%s payload does not match %s action", i.Details.Category(), i.Action),
		})
	}

	if strings.TrimSpace(i.Resource) == "" {
		errs = append(errs, domain.FieldError{Field: "resource", Message: "required"})
	}

	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}
