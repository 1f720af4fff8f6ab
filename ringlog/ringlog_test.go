package ringlog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPushAndSnapshotOrder(t *testing.T) {
	l := New(8)
	require.Zero(t, l.Len())
	require.Empty(t, l.Snapshot())

	for i := int64(1); i <= 3; i++ {
		l.Push(Event{Kind: RegisterAttempt, CursorID: i})
	}
	require.Equal(t, 3, l.Len())

	snap := l.Snapshot()
	require.Len(t, snap, 3)
	for i, e := range snap {
		require.Equal(t, int64(i+1), e.CursorID, "snapshot must be oldest first")
	}
}

func TestWrapRetainsLatest(t *testing.T) {
	l := New(4)

	// One slot is a sentinel, so capacity 4 retains the latest 3 events.
	for i := int64(1); i <= 10; i++ {
		l.Push(Event{Kind: CheckoutAttempt, CursorID: i})
	}
	require.Equal(t, 3, l.Len())

	snap := l.Snapshot()
	require.Equal(t, int64(8), snap[0].CursorID)
	require.Equal(t, int64(10), snap[2].CursorID)
}

func TestTinyCapacityRaised(t *testing.T) {
	l := New(0)
	l.Push(Event{Kind: KillCursorAttempt, CursorID: 1})
	l.Push(Event{Kind: KillCursorAttempt, CursorID: 2})
	require.Equal(t, 1, l.Len())
	require.Equal(t, int64(2), l.Snapshot()[0].CursorID)
}

func TestKindStrings(t *testing.T) {
	kinds := []Kind{
		RegisterAttempt,
		RegisterComplete,
		CheckoutAttempt,
		CheckoutComplete,
		CheckInAttempt,
		CheckInCompleteCursorSaved,
		DetachAttempt,
		DetachComplete,
		NamespaceEntryMapErased,
		RemoveCursorsSatisfyingPredicateAttempt,
		RemoveCursorsSatisfyingPredicateComplete,
		KillCursorAttempt,
		CursorMarkedForDeletion,
	}
	seen := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		s := k.String()
		require.NotEqual(t, "unknown", s)
		_, dup := seen[s]
		require.False(t, dup, "duplicate kind name %q", s)
		seen[s] = struct{}{}
	}
	require.Equal(t, "unknown", Kind(-1).String())
}

func TestEventJSON(t *testing.T) {
	e := Event{
		Kind:      DetachComplete,
		CursorID:  7,
		Namespace: "db.c1",
		Time:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	buf, err := json.Marshal(e)
	require.NoError(t, err)
	require.Contains(t, string(buf), `"kind":"detachComplete"`)
	require.Contains(t, string(buf), `"cursorId":7`)

	// Zero timestamps are elided: writers may skip the clock under lock.
	buf, err = json.Marshal(Event{Kind: RegisterAttempt})
	require.NoError(t, err)
	require.NotContains(t, string(buf), "time")
}
