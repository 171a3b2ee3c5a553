package consent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/heartmarshall/ledger-backend/internal/domain"
	"github.com/heartmarshall/ledger-backend/internal/ledger"
)

type (
	// Entry is a consent ledger entry.
	Entry = ledger.Entry[domain.ConsentAction]
	// Filter selects consent ledger entries.
	Filter = ledger.Filter[domain.ConsentAction]
)

type consentLedger interface {
	Append(f ledger.Fields[domain.ConsentAction]) (Entry, error)
	Entries(f Filter) []Entry
	Count(f Filter) int
	Verify(ctx context.Context) (ledger.VerifyResult, error)
}

// Service records auto-apply consent outcomes. Entries map as
// actor = user, resource = consent package, resource id = job.
type Service struct {
	ledger consentLedger
	log    *slog.Logger

	// submitMu makes the duplicate check and the append of a submission
	// one step.
	submitMu sync.Mutex
}

// NewService creates a new consent service.
func NewService(
	log *slog.Logger,
	ledger consentLedger,
) *Service {
	return &Service{
		ledger: ledger,
		log:    log.With("service", "consent"),
	}
}

// Verify checks the integrity of the consent chain.
func (s *Service) Verify(ctx context.Context) (ledger.VerifyResult, error) {
	return s.ledger.Verify(ctx)
}
