package consent

import (
	"fmt"
	"strings"

	"github.com/heartmarshall/ledger-backend/internal/domain"
)

// Outcome is one run of the auto-apply workflow for a job.
type Outcome struct {
	UserID    string
	PackageID string
	JobID     string
	ConsentID string
	Action    domain.ConsentAction
	Metadata  map[string]any
	IPAddress *string
	UserAgent *string
}

// Validate checks that every identifier is present and the action is known.
func (o Outcome) Validate() error {
	var errs []domain.FieldError

	required := []struct{ field, value string }{
		{"userId", o.UserID},
		{"packageId", o.PackageID},
		{"jobId", o.JobID},
		{"consentId", o.ConsentID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, domain.FieldError{Field: r.field, Message: "required"})
		}
	}

	if o.Action == "" {
		errs = append(errs, domain.FieldError{Field: "action", Message: "required"})
	} else if !o.Action.IsValid() {
		errs = append(errs, domain.FieldError{Field: "action", Message: fmt.Sprintf("unknown action %q", o.Action)})
	}

	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}
