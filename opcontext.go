package cursormgr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OperationContext is the request-scoped context a worker runs under. The
// manager records a non-owning reference to it while a cursor is checked out
// so that a killer can interrupt the operation. The worker must check its
// cursor back in before the operation ends; that ownership contract is what
// makes the back-reference safe.
//
// Interrupt takes the per-operation mutex (the "client lock"). Lock ordering
// is registry mutex -> client lock, never the reverse.
type OperationContext struct {
	client uuid.UUID

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelCauseFunc
	interrupted bool
	cause       error

	lsid  *uuid.UUID
	opKey *uuid.UUID
	users []string
}

// NewOperationContext wraps ctx for one client request. Deadlines on ctx are
// observed by RemainingTimeBudget and by anything derived from Context().
func NewOperationContext(ctx context.Context) *OperationContext {
	derived, cancel := context.WithCancelCause(ctx)
	return &OperationContext{
		client: uuid.New(),
		ctx:    derived,
		cancel: cancel,
	}
}

// ClientUUID identifies the client that owns this operation.
func (o *OperationContext) ClientUUID() uuid.UUID { return o.client }

// Context returns the cancelable context workers should pass to blocking
// calls. It is canceled when the operation is interrupted.
func (o *OperationContext) Context() context.Context { return o.ctx }

// SetSession binds the operation to a logical session.
func (o *OperationContext) SetSession(lsid uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lsid = &lsid
}

// Lsid returns the operation's logical session id, or nil.
func (o *OperationContext) Lsid() *uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lsid
}

// SetOperationKey attaches the client-supplied handle administrative
// commands use to match this operation.
func (o *OperationContext) SetOperationKey(key uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opKey = &key
}

// OperationKey returns the operation key, or nil.
func (o *OperationContext) OperationKey() *uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opKey
}

// SetAuthenticatedUsers records the users authenticated on this operation's
// client. Cursors registered by the operation snapshot this list.
func (o *OperationContext) SetAuthenticatedUsers(users []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.users = append([]string(nil), users...)
}

// AuthenticatedUsers returns the users authenticated on this operation.
func (o *OperationContext) AuthenticatedUsers() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.users
}

// Interrupt flags the operation as killed. The worker observes it at its next
// CheckForInterrupt or via Context().Done(). Safe to call while holding the
// registry mutex; idempotent, the first cause wins.
func (o *OperationContext) Interrupt(cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.interrupted {
		return
	}
	o.interrupted = true
	o.cause = cause
	o.cancel(cause)
}

// Interrupted reports whether Interrupt has been called.
func (o *OperationContext) Interrupted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.interrupted
}

// CheckForInterrupt is the worker's suspension-point check. Returns the
// interruption cause, the context error, or nil.
func (o *OperationContext) CheckForInterrupt() error {
	o.mu.Lock()
	if o.interrupted {
		cause := o.cause
		o.mu.Unlock()
		return cause
	}
	o.mu.Unlock()
	if err := o.ctx.Err(); err != nil {
		return context.Cause(o.ctx)
	}
	return nil
}

// RemainingTimeBudget returns how much of the operation's deadline is left at
// now, and whether a deadline is set at all.
func (o *OperationContext) RemainingTimeBudget(now time.Time) (time.Duration, bool) {
	deadline, ok := o.ctx.Deadline()
	if !ok {
		return 0, false
	}
	return deadline.Sub(now), true
}
