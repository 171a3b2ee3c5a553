package consent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/heartmarshall/ledger-backend/internal/domain"
	"github.com/heartmarshall/ledger-backend/internal/ledger"
)

var hundred = decimal.NewFromInt(100)

// HasUserAppliedToJob reports whether a submitted entry exists for the
// user and job. Other outcomes for the pair are ignored. Ids are trimmed the
// same way Record trims them before storing.
func (s *Service) HasUserAppliedToJob(_ context.Context, userID, jobID string) bool {
	return s.hasSubmitted(strings.TrimSpace(userID), strings.TrimSpace(jobID))
}

func (s *Service) hasSubmitted(userID, jobID string) bool {
	submitted := domain.ConsentActionSubmitted
	return len(s.ledger.Entries(Filter{
		ActorID:    &userID,
		Action:     &submitted,
		ResourceID: &jobID,
		Limit:      1,
	})) > 0
}

// SuccessRate is the share of submitted outcomes among submitted and failed.
type SuccessRate struct {
	Submitted int             `json:"submitted"`
	Failed    int             `json:"failed"`
	Rate      decimal.Decimal `json:"successRate"`
}

// UserSuccessRate returns submitted*100/(submitted+failed) for the user,
// rounded to two places. The rate is 0 when there is no data.
func (s *Service) UserSuccessRate(_ context.Context, userID string) SuccessRate {
	submitted := domain.ConsentActionSubmitted
	failed := domain.ConsentActionFailed

	sr := SuccessRate{
		Submitted: s.ledger.Count(Filter{ActorID: &userID, Action: &submitted}),
		Failed:    s.ledger.Count(Filter{ActorID: &userID, Action: &failed}),
		Rate:      decimal.Zero,
	}
	if total := sr.Submitted + sr.Failed; total > 0 {
		sr.Rate = decimal.NewFromInt(int64(sr.Submitted)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(total))).
			Round(2)
	}
	return sr
}

// UserEntries returns the user's entries, newest first.
func (s *Service) UserEntries(_ context.Context, userID string, f Filter) []Entry {
	f.ActorID = &userID
	return s.ledger.Entries(f)
}

// PackageEntries returns the entries recorded under a consent package.
func (s *Service) PackageEntries(_ context.Context, packageID string, f Filter) []Entry {
	f.Resource = &packageID
	return s.ledger.Entries(f)
}

// ConsentEntries returns the entries whose details carry consentID.
func (s *Service) ConsentEntries(_ context.Context, consentID string, f Filter) []Entry {
	prev := f.Match
	f.Match = func(e Entry) bool {
		if prev != nil && !prev(e) {
			return false
		}
		return consentIDOf(e) == consentID
	}
	return s.ledger.Entries(f)
}

func consentIDOf(e Entry) string {
	if len(e.Details) == 0 {
		return ""
	}
	var d domain.ConsentDetails
	if err := json.Unmarshal(e.Details, &d); err != nil {
		return ""
	}
	return d.ConsentID
}

// Stats summarizes the consent ledger.
type Stats struct {
	TotalEntries    int                          `json:"totalEntries"`
	EntriesByAction map[domain.ConsentAction]int `json:"entriesByAction"`
	DistinctUsers   int                          `json:"distinctUsers"`
	Integrity       ledger.VerifyResult          `json:"integrity"`
}

// Stats returns totals per action, the number of distinct users and the
// current verification result.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	entries := s.ledger.Entries(Filter{})
	st := Stats{
		TotalEntries:    len(entries),
		EntriesByAction: make(map[domain.ConsentAction]int),
	}
	users := make(map[string]struct{})
	for _, e := range entries {
		st.EntriesByAction[e.Action]++
		if e.ActorID != nil {
			users[*e.ActorID] = struct{}{}
		}
	}
	st.DistinctUsers = len(users)

	res, err := s.ledger.Verify(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("verify consent ledger: %w", err)
	}
	st.Integrity = res
	return st, nil
}
