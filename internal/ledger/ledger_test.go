package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/ledger-backend/internal/domain"
)

type testAction string

const (
	actLogin  testAction = "login"
	actLogout testAction = "logout"
	actUpdate testAction = "update"
)

func (a testAction) IsValid() bool {
	switch a {
	case actLogin, actLogout, actUpdate:
		return true
	}
	return false
}

func ptr[T any](v T) *T { return &v }

// fakeClock advances by step on every call.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), step: time.Second}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func newTestLedger(t *testing.T, opts ...Option) *Ledger[testAction] {
	t.Helper()
	clock := newFakeClock()
	return New[testAction]("test", append([]Option{WithClock(clock.Now)}, opts...)...)
}

func appendN(t *testing.T, l *Ledger[testAction], n int) []Entry[testAction] {
	t.Helper()
	out := make([]Entry[testAction], 0, n)
	for i := 0; i < n; i++ {
		e, err := l.Append(Fields[testAction]{
			ActorID:    ptr(fmt.Sprintf("user-%d", i%3)),
			Action:     actLogin,
			Resource:   "session",
			ResourceID: ptr(fmt.Sprintf("s-%d", i)),
			Details:    json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		})
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

// signerMock is a hand-written mock of CheckpointSigner.
type signerMock struct {
	SignFunc   func(cp Checkpoint) (string, error)
	VerifyFunc func(cp Checkpoint) error
}

func (m *signerMock) SignCheckpoint(cp Checkpoint) (string, error) { return m.SignFunc(cp) }
func (m *signerMock) VerifyCheckpoint(cp Checkpoint) error       { return m.VerifyFunc(cp) }

func stubSigner() *signerMock {
	return &signerMock{
		SignFunc: func(cp Checkpoint) (string, error) {
			return fmt.Sprintf("sig:%d:%s", cp.Sequence, cp.Hash), nil
		},
		VerifyFunc: func(cp Checkpoint) error {
			if cp.Signature != fmt.Sprintf("sig:%d:%s", cp.Sequence, cp.Hash) {
				return errors.New("bad signature")
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// Append
// ---------------------------------------------------------------------------

func TestLedger_Append_GenesisAndLinkage(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	entries := appendN(t, l, 3)

	assert.True(t, entries[0].IsGenesis())
	assert.Empty(t, entries[0].PreviousHash)
	assert.Equal(t, entries[0].Hash, entries[1].PreviousHash)
	assert.Equal(t, entries[1].Hash, entries[2].PreviousHash)

	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Sequence)
		assert.NotEqual(t, uuid.Nil, e.ID)
		assert.Len(t, e.Hash, 64)
		assert.Equal(t, time.UTC, e.Timestamp.Location())
	}

	tip, ok := l.Tip()
	require.True(t, ok)
	assert.Equal(t, entries[2].Hash, tip.Hash)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, uint64(3), l.Sequence())
}

func TestLedger_Append_UniqueIDs(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	seen := make(map[uuid.UUID]bool)
	for _, e := range appendN(t, l, 100) {
		assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
		seen[e.ID] = true
	}
}

func TestLedger_Append_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields Fields[testAction]
		field  string
	}{
		{name: "missing action", fields: Fields[testAction]{Resource: "session"}, field: "action"},
		{name: "unknown action", fields: Fields[testAction]{Action: "explode", Resource: "session"}, field: "action"},
		{name: "missing resource", fields: Fields[testAction]{Action: actLogin}, field: "resource"},
		{name: "malformed details", fields: Fields[testAction]{Action: actLogin, Resource: "session", Details: json.RawMessage(`{"a":`)}, field: "details"},
		{name: "trailing details", fields: Fields[testAction]{Action: actLogin, Resource: "session", Details: json.RawMessage(`{} {}`)}, field: "details"},
		{name: "invalid utf8 actor", fields: Fields[testAction]{Action: actLogin, Resource: "session", ActorID: ptr("alice\xff")}, field: "actorId"},
		{name: "invalid utf8 resource", fields: Fields[testAction]{Action: actLogin, Resource: "sess\xc3"}, field: "resource"},
		{name: "invalid utf8 ip", fields: Fields[testAction]{Action: actLogin, Resource: "session", IPAddress: ptr("\xff")}, field: "ipAddress"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := newTestLedger(t)
			_, err := l.Append(tt.fields)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)

			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Errors[0].Field)
			assert.Zero(t, l.Len(), "invalid entry must not be appended")
		})
	}
}

func TestLedger_Append_CanonicalizesDetails(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	e, err := l.Append(Fields[testAction]{
		Action:   actUpdate,
		Resource: "profile",
		Details:  json.RawMessage(`{ "b": 1.50, "a": "<x>", "c": {"z": null, "y": [2, 1]} }`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"<x>","b":1.50,"c":{"y":[2,1],"z":null}}`, string(e.Details))
	assert.Equal(t, `{"a":"<x>","b":1.50,"c":{"y":[2,1],"z":null}}`, string(e.Details))
}

func TestLedger_Append_NullDetailsStoredAsNil(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	e, err := l.Append(Fields[testAction]{Action: actLogin, Resource: "session", Details: json.RawMessage(`null`)})
	require.NoError(t, err)
	assert.Nil(t, e.Details)
}

func TestLedger_Append_Concurrent(t *testing.T) {
	t.Parallel()

	l := New[testAction]("test")

	const (
		workers = 8
		each    = 200
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_, err := l.Append(Fields[testAction]{
					ActorID:  ptr(fmt.Sprintf("w%d", w)),
					Action:   actLogin,
					Resource: "session",
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*each, l.Len())
	res, err := l.Verify(t.Context())
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, workers*each, res.Checked)

	all := l.Entries(Filter[testAction]{})
	for i, e := range all {
		assert.Equal(t, uint64(len(all)-i), e.Sequence)
	}
}

func TestLedger_VerifyDuringAppends(t *testing.T) {
	t.Parallel()

	l := New[testAction]("test")
	appendN(t, l, 50)

	var (
		stop     atomic.Bool
		wg       sync.WaitGroup
		verifies atomic.Int64
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			res, err := l.Verify(t.Context())
			assert.NoError(t, err)
			assert.True(t, res.Valid, "snapshot verification must never see a torn chain")
			verifies.Add(1)
		}
	}()

	for i := 0; i < 500; i++ {
		_, err := l.Append(Fields[testAction]{Action: actLogout, Resource: "session"})
		require.NoError(t, err)
	}
	stop.Store(true)
	wg.Wait()

	assert.Positive(t, verifies.Load())
}

// ---------------------------------------------------------------------------
// Retention
// ---------------------------------------------------------------------------

func TestLedger_Retention_Unbounded(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	appendN(t, l, 20)
	assert.Equal(t, 20, l.Len())
	assert.Nil(t, l.Checkpoint())
}

func TestLedger_Retention_EvictsAndCheckpoints(t *testing.T) {
	t.Parallel()

	signer := stubSigner()
	l := newTestLedger(t, WithMaxEntries(3), WithCheckpointSigner(signer))
	entries := appendN(t, l, 5)

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, uint64(3), l.FirstSequence())
	assert.Equal(t, uint64(5), l.Sequence())

	cp := l.Checkpoint()
	require.NotNil(t, cp)
	assert.Equal(t, "test", cp.Ledger)
	assert.Equal(t, uint64(2), cp.Sequence)
	assert.Equal(t, entries[1].Hash, cp.Hash)
	assert.NotEmpty(t, cp.Signature)

	res, err := l.Verify(t.Context())
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 3, res.Checked)
	require.NotNil(t, res.Checkpoint)
	assert.Equal(t, cp.Hash, res.Checkpoint.Hash)
}

func TestLedger_Retention_ForgedCheckpoint(t *testing.T) {
	t.Parallel()

	signer := stubSigner()
	l := newTestLedger(t, WithMaxEntries(2), WithCheckpointSigner(signer))
	appendN(t, l, 4)

	l.state.Load().checkpoint.Signature = "forged"

	res, err := l.Verify(t.Context())
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.NotNil(t, res.Failure)
	assert.Equal(t, domain.IntegrityCheckpointMismatch, res.Failure.Kind)
	require.NotNil(t, res.FirstFailingIndex)
	assert.Equal(t, 0, *res.FirstFailingIndex)
}

func TestLedger_Retention_SignFailureKeepsEntries(t *testing.T) {
	t.Parallel()

	signer := &signerMock{
		SignFunc:   func(Checkpoint) (string, error) { return "", errors.New("no key") },
		VerifyFunc: func(Checkpoint) error { return nil },
	}
	l := newTestLedger(t, WithMaxEntries(2), WithCheckpointSigner(signer))
	appendN(t, l, 4)

	assert.Equal(t, 4, l.Len())
	assert.Nil(t, l.Checkpoint())
}

func TestLedger_Retention_OldSnapshotUnaffected(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t, WithMaxEntries(3))
	appendN(t, l, 3)
	before := l.snapshot()

	appendN(t, l, 10)

	require.Len(t, before.entries, 3)
	res, err := VerifyEntries(t.Context(), before.entries, "", DigestSHA256)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

// ---------------------------------------------------------------------------
// Restore
// ---------------------------------------------------------------------------

func recordsOf(l *Ledger[testAction]) []Record {
	return l.Records(0, 0)
}

func TestLedger_Restore_RoundTrip(t *testing.T) {
	t.Parallel()

	src := newTestLedger(t)
	appendN(t, src, 10)

	dst := newTestLedger(t)
	require.NoError(t, dst.Restore(recordsOf(src), nil))

	assert.Equal(t, 10, dst.Len())
	srcTip, _ := src.Tip()
	dstTip, _ := dst.Tip()
	assert.Equal(t, srcTip.Hash, dstTip.Hash)

	// New appends continue the restored chain.
	e, err := dst.Append(Fields[testAction]{Action: actLogout, Resource: "session"})
	require.NoError(t, err)
	assert.Equal(t, srcTip.Hash, e.PreviousHash)
	assert.Equal(t, uint64(11), e.Sequence)

	res, err := dst.Verify(t.Context())
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestLedger_Restore_RejectsTampered(t *testing.T) {
	t.Parallel()

	src := newTestLedger(t)
	appendN(t, src, 5)
	records := recordsOf(src)
	records[3].Resource = "tampered"

	dst := newTestLedger(t)
	err := dst.Restore(records, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIntegrity)

	var ie *domain.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 3, ie.Index)
	assert.Equal(t, domain.IntegrityHashMismatch, ie.Kind)
	assert.Zero(t, dst.Len())
}

func TestLedger_Restore_NotEmpty(t *testing.T) {
	t.Parallel()

	src := newTestLedger(t)
	appendN(t, src, 2)

	dst := newTestLedger(t)
	appendN(t, dst, 1)
	err := dst.Restore(recordsOf(src), nil)
	assert.ErrorIs(t, err, domain.ErrLedgerNotEmpty)
}

func TestLedger_Restore_UnknownAction(t *testing.T) {
	t.Parallel()

	src := newTestLedger(t)
	appendN(t, src, 1)
	records := recordsOf(src)
	records[0].Action = "explode"

	err := newTestLedger(t).Restore(records, nil)
	require.ErrorIs(t, err, domain.ErrIntegrity)

	var ie *domain.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 0, ie.Index)
	assert.Equal(t, records[0].ID, ie.EntryID)
	assert.Equal(t, "explode", ie.Actual)
}

func TestLedger_Restore_FromCheckpoint(t *testing.T) {
	t.Parallel()

	src := newTestLedger(t)
	appendN(t, src, 6)
	all := recordsOf(src)
	anchor := &Checkpoint{Sequence: all[1].Sequence, Hash: all[1].Hash}

	signer := stubSigner()
	dst := newTestLedger(t, WithCheckpointSigner(signer))
	require.NoError(t, dst.Restore(all[2:], anchor))

	cp := dst.Checkpoint()
	require.NotNil(t, cp)
	assert.Equal(t, "test", cp.Ledger)
	assert.NotEmpty(t, cp.Signature, "unsigned anchor is signed on restore")

	res, err := dst.Verify(t.Context())
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 4, res.Checked)

	// Without the anchor the tail does not start at genesis.
	err = newTestLedger(t).Restore(all[2:], nil)
	var ie *domain.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, domain.IntegrityLinkMismatch, ie.Kind)
	assert.Equal(t, 0, ie.Index)
}

func TestLedger_Restore_CheckpointOnly(t *testing.T) {
	t.Parallel()

	dst := newTestLedger(t)
	require.NoError(t, dst.Restore(nil, &Checkpoint{Sequence: 7, Hash: "abc"}))

	e, err := dst.Append(Fields[testAction]{Action: actLogin, Resource: "session"})
	require.NoError(t, err)
	assert.Equal(t, "abc", e.PreviousHash)
	assert.Equal(t, uint64(8), e.Sequence)
}
