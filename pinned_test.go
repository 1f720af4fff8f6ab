package cursormgr

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPinnedCloseWithoutReturnKills(t *testing.T) {
	mgr := newTestManager(newFakeClock())

	cursor := &fakeCursor{}
	id, err := mgr.RegisterCursor(newOpCtx(), cursor, "db.c1", SingleTarget, LifetimeMortal, nil)
	require.NoError(t, err)

	pinned, err := mgr.CheckOutCursor("db.c1", id, newOpCtx(), nil, SkipSession)
	require.NoError(t, err)

	// Dropping the handle without an explicit return must not leak the
	// cursor: it is returned and destroyed.
	pinned.Close()
	require.True(t, cursor.isKilled())
	require.Equal(t, Stats{}, mgr.Stats())

	_, err = mgr.CheckOutCursor("db.c1", id, newOpCtx(), nil, SkipSession)
	require.ErrorIs(t, err, ErrCursorNotFound)
}

func TestPinnedExplicitReturnThenClose(t *testing.T) {
	mgr := newTestManager(newFakeClock())

	cursor := &fakeCursor{}
	id, err := mgr.RegisterCursor(newOpCtx(), cursor, "db.c1", SingleTarget, LifetimeMortal, nil)
	require.NoError(t, err)

	pinned, err := mgr.CheckOutCursor("db.c1", id, newOpCtx(), nil, SkipSession)
	require.NoError(t, err)

	pinned.ReturnCursor(NotExhausted)

	// Close after an explicit return performs no second check-in.
	pinned.Close()
	pinned.Close()
	require.False(t, cursor.isKilled())
	require.Equal(t, Stats{CursorsSingleTarget: 1}, mgr.Stats())
}

func TestPinnedEmptyHandleAccessors(t *testing.T) {
	mgr := newTestManager(newFakeClock())

	id, err := mgr.RegisterCursor(newOpCtx(), &fakeCursor{}, "db.c1", SingleTarget, LifetimeMortal, nil)
	require.NoError(t, err)

	pinned, err := mgr.CheckOutCursor("db.c1", id, newOpCtx(), nil, SkipSession)
	require.NoError(t, err)
	require.Equal(t, id, pinned.CursorID())

	pinned.ReturnCursor(NotExhausted)
	require.Equal(t, NullCursorID, pinned.CursorID())
	require.Panics(t, func() { pinned.Cursor() })
	require.Panics(t, func() { pinned.ReturnCursor(NotExhausted) })
}

func TestPinnedToGenericCursor(t *testing.T) {
	mgr := newTestManager(newFakeClock())
	lsid := uuid.New()

	op := NewOperationContext(context.Background())
	op.SetSession(lsid)
	opKey := uuid.New()
	op.SetOperationKey(opKey)

	cursor := &fakeCursor{lsid: &lsid, docs: 3}
	id, err := mgr.RegisterCursor(op, cursor, "db.c1", MultiTarget, LifetimeMortal, nil)
	require.NoError(t, err)

	pinned, err := mgr.CheckOutCursor("db.c1", id, op, nil, CheckSession)
	require.NoError(t, err)
	defer pinned.Close()

	gc := pinned.ToGenericCursor()
	require.Equal(t, id, gc.ID)
	require.Equal(t, "db.c1", gc.Namespace)
	require.Equal(t, lsid, *gc.Lsid)
	require.Equal(t, opKey, *gc.OperationKey)
	require.Equal(t, op.ClientUUID(), gc.OriginatingClient)
	require.Equal(t, "FAKE_PLAN", gc.PlanSummary)
	require.Equal(t, int64(3), gc.DocsReturned)
}
