package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedFilterLedger appends six entries one second apart starting at the fake
// clock epoch: actors alternate u1/u2, actions cycle login/update/logout.
func seedFilterLedger(t *testing.T) *Ledger[testAction] {
	t.Helper()

	l := newTestLedger(t)
	actions := []testAction{actLogin, actUpdate, actLogout}
	for i := 0; i < 6; i++ {
		actor := "u1"
		if i%2 == 1 {
			actor = "u2"
		}
		resource := "session"
		if actions[i%3] == actUpdate {
			resource = "profile"
		}
		_, err := l.Append(Fields[testAction]{
			ActorID:    ptr(actor),
			Action:     actions[i%3],
			Resource:   resource,
			ResourceID: ptr(string(rune('a' + i))),
		})
		require.NoError(t, err)
	}
	return l
}

func sequences(entries []Entry[testAction]) []uint64 {
	out := make([]uint64, len(entries))
	for i, e := range entries {
		out[i] = e.Sequence
	}
	return out
}

func TestLedger_Entries(t *testing.T) {
	t.Parallel()

	epoch := newFakeClock().now

	tests := []struct {
		name   string
		filter Filter[testAction]
		want   []uint64
	}{
		{name: "all newest first", filter: Filter[testAction]{}, want: []uint64{6, 5, 4, 3, 2, 1}},
		{name: "actor", filter: Filter[testAction]{ActorID: ptr("u1")}, want: []uint64{5, 3, 1}},
		{name: "action", filter: Filter[testAction]{Action: ptr(actUpdate)}, want: []uint64{5, 2}},
		{name: "resource", filter: Filter[testAction]{Resource: ptr("session")}, want: []uint64{6, 4, 3, 1}},
		{name: "resource id", filter: Filter[testAction]{ResourceID: ptr("c")}, want: []uint64{3}},
		{name: "actor and action", filter: Filter[testAction]{ActorID: ptr("u2"), Action: ptr(actLogout)}, want: []uint64{6}},
		{
			name:   "inclusive range",
			filter: Filter[testAction]{From: ptr(epoch.Add(time.Second)), To: ptr(epoch.Add(3 * time.Second))},
			want:   []uint64{4, 3, 2},
		},
		{name: "from only", filter: Filter[testAction]{From: ptr(epoch.Add(4 * time.Second))}, want: []uint64{6, 5}},
		{name: "to only", filter: Filter[testAction]{To: ptr(epoch)}, want: []uint64{1}},
		{name: "limit", filter: Filter[testAction]{Limit: 2}, want: []uint64{6, 5}},
		{name: "limit with filter", filter: Filter[testAction]{ActorID: ptr("u1"), Limit: 1}, want: []uint64{5}},
		{
			name:   "match predicate",
			filter: Filter[testAction]{Match: func(e Entry[testAction]) bool { return e.Sequence%2 == 0 }},
			want:   []uint64{6, 4, 2},
		},
		{name: "no match", filter: Filter[testAction]{ActorID: ptr("nobody")}, want: []uint64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := seedFilterLedger(t)
			got := l.Entries(tt.filter)
			assert.Equal(t, tt.want, sequences(got))
		})
	}
}

func TestLedger_Count_IgnoresLimit(t *testing.T) {
	t.Parallel()

	l := seedFilterLedger(t)
	assert.Equal(t, 3, l.Count(Filter[testAction]{ActorID: ptr("u1"), Limit: 1}))
	assert.Equal(t, 6, l.Count(Filter[testAction]{}))
	assert.Zero(t, l.Count(Filter[testAction]{ActorID: ptr("nobody")}))
}

func TestLedger_Entries_ReturnsCopies(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	_, err := l.Append(Fields[testAction]{Action: actLogin, Resource: "session", Details: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)

	got := l.Entries(Filter[testAction]{})
	got[0].Details[2] = 'X'

	res, err := l.Verify(t.Context())
	require.NoError(t, err)
	assert.True(t, res.Valid, "callers cannot corrupt the chain through returned entries")
}

func TestLedger_Entries_SnapshotIsStable(t *testing.T) {
	t.Parallel()

	l := seedFilterLedger(t)
	before := l.Entries(Filter[testAction]{})
	appendN(t, l, 3)

	assert.Len(t, before, 6)
	assert.Len(t, l.Entries(Filter[testAction]{}), 9)
}

func TestLedger_Records(t *testing.T) {
	t.Parallel()

	l := seedFilterLedger(t)

	tests := []struct {
		name  string
		after uint64
		limit int
		want  []uint64
	}{
		{name: "all", after: 0, limit: 0, want: []uint64{1, 2, 3, 4, 5, 6}},
		{name: "after", after: 4, limit: 0, want: []uint64{5, 6}},
		{name: "batch", after: 1, limit: 2, want: []uint64{2, 3}},
		{name: "caught up", after: 6, limit: 10, want: []uint64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			recs := l.Records(tt.after, tt.limit)
			got := make([]uint64, len(recs))
			for i, r := range recs {
				got[i] = r.Sequence
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
