package audit

import (
	"context"
	"fmt"

	"github.com/heartmarshall/ledger-backend/internal/domain"
	"github.com/heartmarshall/ledger-backend/internal/ledger"
)

// AnonymousActor is the key under which entries without an actor are counted.
const AnonymousActor = "anonymous"

// Stats summarizes the audit ledger.
type Stats struct {
	TotalEntries      int                        `json:"totalEntries"`
	EntriesByAction   map[domain.AuditAction]int `json:"entriesByAction"`
	EntriesByResource map[string]int             `json:"entriesByResource"`
	EntriesByActor    map[string]int             `json:"entriesByActor"`
	RecentEntries     []Entry                    `json:"recentEntries"`
	Integrity         ledger.VerifyResult        `json:"integrity"`
}

// Stats returns entry counts grouped by action, resource and actor, the
// most recent entries and the current verification result.
func (s *Service) Stats(ctx context.Context, recent int) (Stats, error) {
	if recent <= 0 {
		recent = DefaultRecentCount
	}

	entries := s.ledger.Entries(Filter{})
	st := Stats{
		TotalEntries:      len(entries),
		EntriesByAction:   make(map[domain.AuditAction]int),
		EntriesByResource: make(map[string]int),
		EntriesByActor:    make(map[string]int),
	}
	for _, e := range entries {
		st.EntriesByAction[e.Action]++
		st.EntriesByResource[e.Resource]++
		actor := AnonymousActor
		if e.ActorID != nil {
			actor = *e.ActorID
		}
		st.EntriesByActor[actor]++
	}
	st.RecentEntries = entries[:min(recent, len(entries))]

	res, err := s.ledger.Verify(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("verify audit ledger: %w", err)
	}
	st.Integrity = res

	return st, nil
}
