package audit

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

// Record appends an audit entry. When the input carries no IP address or
// user agent, the values from the request context are used.
func (s *Service) Record(ctx context.Context, input RecordInput) (Entry, error) {
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}

	var details json.RawMessage
	if input.Details != nil {
		raw, err := json.Marshal(input.Details)
		if err != nil {
			return Entry{}, fmt.Errorf("marshal audit details: %w", err)
		}
		details = raw
	}

	client := ctxutil.ClientInfoFromCtx(ctx)
	fields := ledger.Fields[domain.AuditAction]{
		ActorID:    trimOrNil(input.ActorID),
		Action:     input.Action,
		Resource:   strings.TrimSpace(input.Resource),
		ResourceID: trimOrNil(input.ResourceID),
		Details:    details,
		IPAddress:  orFallback(trimOrNil(input.IPAddress), client.IP),
		UserAgent:  orFallback(trimOrNil(input.UserAgent), client.UserAgent),
	}

	entry, err := s.ledger.Append(fields)
	if err != nil {
		return Entry{}, fmt.Errorf("append audit entry: %w", err)
	}

	if input.Action.Category() == domain.AuditCategoryPolicy || input.Action == domain.AuditActionLoginFailed {
		s.log.WarnContext(ctx, "security event recorded",
			slog.String("action", input.Action.String()),
			slog.String("entry_id", entry.ID.String()),
		)
	}

	return entry, nil
}

// trimOrNil trims whitespace. Returns nil if result is empty.
func trimOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func orFallback(v *string, fallback string) *string {
	if v != nil || fallback == "" {
		return v
	}
	return &fallback
}
