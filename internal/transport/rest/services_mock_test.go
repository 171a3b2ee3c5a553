package rest

import (
	"context"

	"github.com/heartmarshall/ledger-backend/internal/ledger"
	"github.com/heartmarshall/ledger-backend/internal/service/audit"
	"github.com/heartmarshall/ledger-backend/internal/service/consent"
)

type auditServiceMock struct {
	RecordFunc  func(ctx context.Context, input audit.RecordInput) (audit.Entry, error)
	EntriesFunc func(ctx context.Context, f audit.Filter) []audit.Entry
	StatsFunc   func(ctx context.Context, recent int) (audit.Stats, error)
	VerifyFunc  func(ctx context.Context) (ledger.VerifyResult, error)
}

func (m *auditServiceMock) Record(ctx context.Context, input audit.RecordInput) (audit.Entry, error) {
	return m.RecordFunc(ctx, input)
}

func (m *auditServiceMock) Entries(ctx context.Context, f audit.Filter) []audit.Entry {
	return m.EntriesFunc(ctx, f)
}

func (m *auditServiceMock) Stats(ctx context.Context, recent int) (audit.Stats, error) {
	return m.StatsFunc(ctx, recent)
}

func (m *auditServiceMock) Verify(ctx context.Context) (ledger.VerifyResult, error) {
	return m.VerifyFunc(ctx)
}

type consentServiceMock struct {
	RecordFunc              func(ctx context.Context, o consent.Outcome) (consent.Entry, error)
	RecordSubmissionFunc    func(ctx context.Context, o consent.Outcome) (consent.Entry, error)
	HasUserAppliedToJobFunc func(ctx context.Context, userID, jobID string) bool
	UserSuccessRateFunc     func(ctx context.Context, userID string) consent.SuccessRate
	UserEntriesFunc         func(ctx context.Context, userID string, f consent.Filter) []consent.Entry
	PackageEntriesFunc      func(ctx context.Context, packageID string, f consent.Filter) []consent.Entry
	ConsentEntriesFunc      func(ctx context.Context, consentID string, f consent.Filter) []consent.Entry
	StatsFunc               func(ctx context.Context) (consent.Stats, error)
	VerifyFunc              func(ctx context.Context) (ledger.VerifyResult, error)
}

func (m *consentServiceMock) Record(ctx context.Context, o consent.Outcome) (consent.Entry, error) {
	return m.RecordFunc(ctx, o)
}

func (m *consentServiceMock) RecordSubmission(ctx context.Context, o consent.Outcome) (consent.Entry, error) {
	return m.RecordSubmissionFunc(ctx, o)
}

func (m *consentServiceMock) HasUserAppliedToJob(ctx context.Context, userID, jobID string) bool {
	return m.HasUserAppliedToJobFunc(ctx, userID, jobID)
}

func (m *consentServiceMock) UserSuccessRate(ctx context.Context, userID string) consent.SuccessRate {
	return m.UserSuccessRateFunc(ctx, userID)
}

func (m *consentServiceMock) UserEntries(ctx context.Context, userID string, f consent.Filter) []consent.Entry {
	return m.UserEntriesFunc(ctx, userID, f)
}

func (m *consentServiceMock) PackageEntries(ctx context.Context, packageID string, f consent.Filter) []consent.Entry {
	return m.PackageEntriesFunc(ctx, packageID, f)
}

func (m *consentServiceMock) ConsentEntries(ctx context.Context, consentID string, f consent.Filter) []consent.Entry {
	return m.ConsentEntriesFunc(ctx, consentID, f)
}

func (m *consentServiceMock) Stats(ctx context.Context) (consent.Stats, error) {
	return m.StatsFunc(ctx)
}

func (m *consentServiceMock) Verify(ctx context.Context) (ledger.VerifyResult, error) {
	return m.VerifyFunc(ctx)
}
