package cursormgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestOperationContextInterrupt(t *testing.T) {
	op := NewOperationContext(context.Background())
	require.NoError(t, op.CheckForInterrupt())
	require.False(t, op.Interrupted())

	cause := errors.New("killed by admin")
	op.Interrupt(cause)
	require.True(t, op.Interrupted())
	require.ErrorIs(t, op.CheckForInterrupt(), cause)

	select {
	case <-op.Context().Done():
	default:
		t.Fatal("interrupt should cancel the derived context")
	}
	require.ErrorIs(t, context.Cause(op.Context()), cause)

	// First cause wins.
	op.Interrupt(errors.New("second"))
	require.ErrorIs(t, op.CheckForInterrupt(), cause)
}

func TestOperationContextParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	op := NewOperationContext(ctx)

	cancel()
	require.Error(t, op.CheckForInterrupt())
	require.False(t, op.Interrupted(), "parent cancellation is not a manager interrupt")
}

func TestOperationContextIdentity(t *testing.T) {
	op := NewOperationContext(context.Background())
	require.NotEqual(t, uuid.Nil, op.ClientUUID())
	require.Nil(t, op.Lsid())
	require.Nil(t, op.OperationKey())

	lsid := uuid.New()
	op.SetSession(lsid)
	require.Equal(t, lsid, *op.Lsid())

	key := uuid.New()
	op.SetOperationKey(key)
	require.Equal(t, key, *op.OperationKey())

	op.SetAuthenticatedUsers([]string{"alice", "bob"})
	require.Equal(t, []string{"alice", "bob"}, op.AuthenticatedUsers())
}

func TestOperationContextTimeBudget(t *testing.T) {
	op := NewOperationContext(context.Background())
	_, ok := op.RemainingTimeBudget(time.Now())
	require.False(t, ok)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(30 * time.Second)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	op = NewOperationContext(ctx)
	budget, ok := op.RemainingTimeBudget(now)
	require.True(t, ok)
	require.Equal(t, 30*time.Second, budget)
}
