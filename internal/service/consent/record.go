package consent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/heartmarshall/ledger-backend/internal/domain"
	"github.com/heartmarshall/ledger-backend/internal/ledger"
	"github.com/heartmarshall/ledger-backend/pkg/ctxutil"
)

// Record appends a consent outcome without any idempotency check.
func (s *Service) Record(ctx context.Context, o Outcome) (Entry, error) {
	if err := o.Validate(); err != nil {
		return Entry{}, err
	}
	return s.append(ctx, o)
}

// RecordSubmission records a submitted outcome unless the user already has
// a submitted entry for the job, in which case nothing is written and
// domain.ErrDuplicateSubmission is returned.
func (s *Service) RecordSubmission(ctx context.Context, o Outcome) (Entry, error) {
	o.Action = domain.ConsentActionSubmitted
	if err := o.Validate(); err != nil {
		return Entry{}, err
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	if s.hasSubmitted(strings.TrimSpace(o.UserID), strings.TrimSpace(o.JobID)) {
		s.log.InfoContext(ctx, "duplicate submission prevented",
			slog.String("user_id", o.UserID),
			slog.String("job_id", o.JobID),
		)
		return Entry{}, domain.ErrDuplicateSubmission
	}
	return s.append(ctx, o)
}

func (s *Service) append(ctx context.Context, o Outcome) (Entry, error) {
	details, err := json.Marshal(domain.ConsentDetails{
		ConsentID: strings.TrimSpace(o.ConsentID),
		Metadata:  o.Metadata,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("marshal consent details: %w", err)
	}

	userID := strings.TrimSpace(o.UserID)
	jobID := strings.TrimSpace(o.JobID)
	client := ctxutil.ClientInfoFromCtx(ctx)

	entry, err := s.ledger.Append(ledger.Fields[domain.ConsentAction]{
		ActorID:    &userID,
		Action:     o.Action,
		Resource:   strings.TrimSpace(o.PackageID),
		ResourceID: &jobID,
		Details:    details,
		IPAddress:  orFallback(o.IPAddress, client.IP),
		UserAgent:  orFallback(o.UserAgent, client.UserAgent),
	})
	if err != nil {
		return Entry{}, fmt.Errorf("append consent entry: %w", err)
	}
	return entry, nil
}

func orFallback(v *string, fallback string) *string {
	if v != nil || fallback == "" {
		return v
	}
	return &fallback
}
