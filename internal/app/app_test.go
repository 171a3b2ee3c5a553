package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/ledger-backend/internal/config"
	"github.com/heartmarshall/ledger-backend/internal/domain"
	"github.com/heartmarshall/ledger-backend/internal/ledger"
)

type chainLoaderMock struct {
	records []ledger.Record
	anchor  *ledger.Checkpoint
	err     error

	gotName string
	gotTail int
}

func (m *chainLoaderMock) Load(_ context.Context, name string, tail int) ([]ledger.Record, *ledger.Checkpoint, error) {
	m.gotName, m.gotTail = name, tail
	return m.records, m.anchor, m.err
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret: "app-test-secret-that-is-32-chars-long",
			JWTIssuer: "ledger",
		},
		Ledger: config.LedgerConfig{Digest: "sha256"},
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func persistedChain(t *testing.T, n int) []ledger.Record {
	t.Helper()

	src := ledger.New[domain.AuditAction](AuditLedger, LedgerOptions(testConfig(), discard())...)
	for range n {
		_, err := src.Append(ledger.Fields[domain.AuditAction]{Action: domain.AuditActionUserLogin, Resource: "session"})
		require.NoError(t, err)
	}
	return src.Records(0, 0)
}

func TestRestoreLedger(t *testing.T) {
	t.Parallel()

	loader := &chainLoaderMock{records: persistedChain(t, 3)}
	l := ledger.New[domain.AuditAction](AuditLedger, LedgerOptions(testConfig(), discard())...)

	require.NoError(t, RestoreLedger(t.Context(), loader, l, 100))

	assert.Equal(t, AuditLedger, loader.gotName)
	assert.Equal(t, 100, loader.gotTail)
	assert.Equal(t, uint64(3), l.Sequence())

	res, err := l.Verify(t.Context())
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestRestoreLedger_RefusesTamperedChain(t *testing.T) {
	t.Parallel()

	records := persistedChain(t, 3)
	records[1].Resource = "tampered"
	l := ledger.New[domain.AuditAction](AuditLedger, LedgerOptions(testConfig(), discard())...)

	err := RestoreLedger(t.Context(), &chainLoaderMock{records: records}, l, 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIntegrity)
	assert.Zero(t, l.Sequence())
}

func TestRestoreLedger_LoadError(t *testing.T) {
	t.Parallel()

	l := ledger.New[domain.AuditAction](AuditLedger)
	err := RestoreLedger(t.Context(), &chainLoaderMock{err: errors.New("db down")}, l, 0)

	assert.ErrorContains(t, err, "load ledger audit")
}
