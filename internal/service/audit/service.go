package audit

import (
	"context"
	"log/slog"

	"github.com/heartmarshall/ledger-backend/internal/domain"
	"github.com/heartmarshall/ledger-backend/internal/ledger"
)

const (
	DefaultLimit       = 50
	MaxLimit           = 1000
	DefaultRecentCount = 10
)

type (
	// Entry is an audit ledger entry.
	Entry = ledger.Entry[domain.AuditAction]
	// Filter selects audit ledger entries.
	Filter = ledger.Filter[domain.AuditAction]
)

type auditLedger interface {
	Append(f ledger.Fields[domain.AuditAction]) (Entry, error)
	Entries(f Filter) []Entry
	Verify(ctx context.Context) (ledger.VerifyResult, error)
}

// Service records security-relevant actions in the audit ledger.
type Service struct {
	ledger auditLedger
	log    *slog.Logger
}

// NewService creates a new audit service.
func NewService(
	log *slog.Logger,
	ledger auditLedger,
) *Service {
	return &Service{
		ledger: ledger,
		log:    log.With("service", "audit"),
	}
}

// Entries returns the entries matching f, newest first.
func (s *Service) Entries(_ context.Context, f Filter) []Entry {
	return s.ledger.Entries(f)
}

// Verify checks the integrity of the audit chain.
func (s *Service) Verify(ctx context.Context) (ledger.VerifyResult, error) {
	return s.ledger.Verify(ctx)
}
