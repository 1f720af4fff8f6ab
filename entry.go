package cursormgr

import (
	"time"

	"github.com/google/uuid"
)

// cursorEntry is the registry's record of one live cursor. All fields are
// guarded by the Manager mutex; the cursor's own internals are protected by
// the pinned-ness invariant (exactly one of cursor/operation is set).
type cursorEntry struct {
	// cursor is non-nil iff the entry is idle.
	cursor Cursor

	cursorType CursorType
	lifetime   CursorLifetime
	lastActive time.Time

	// lsid is copied from the cursor at registration.
	lsid *uuid.UUID

	// opKey is the client OperationKey from the operation that registered
	// the cursor.
	opKey *uuid.UUID

	// originatingClient is the UUID of the client that opened the cursor.
	originatingClient uuid.UUID

	// authenticatedUsers is the snapshot taken at registration, handed to
	// auth predicates.
	authenticatedUsers []string

	// operation is the operation currently using the cursor. Non-nil iff the
	// entry is pinned. Non-owning: the worker checks the cursor back in
	// before its request ends.
	operation *OperationContext

	// killPending means "destroy on next check-in". Set when a kill races
	// with a checkout. Entries with killPending appear gone to callers.
	killPending bool
}

func (e *cursorEntry) isPinned() bool { return e.operation != nil }

// releaseCursor hands the cursor to opCtx for exclusive use.
// CALLER MUST HOLD the Manager mutex and have verified the entry is idle.
func (e *cursorEntry) releaseCursor(opCtx *OperationContext) Cursor {
	if e.operation != nil {
		panic("cursormgr: releasing cursor already in use")
	}
	if e.cursor == nil {
		panic("cursormgr: entry holds no cursor")
	}
	if opCtx == nil {
		panic("cursormgr: release requires an operation context")
	}
	e.operation = opCtx
	c := e.cursor
	e.cursor = nil
	return c
}

// returnCursor moves the cursor back into the entry after use.
// CALLER MUST HOLD the Manager mutex.
func (e *cursorEntry) returnCursor(c Cursor) {
	if c == nil {
		panic("cursormgr: returning nil cursor")
	}
	if e.cursor != nil {
		panic("cursormgr: double check-in")
	}
	if e.operation == nil {
		panic("cursormgr: check-in without checkout")
	}
	e.cursor = c
	e.operation = nil
}

// toGenericCursor builds the redacted descriptor for an idle entry. Plan
// fields come from the cursor object, so the entry must hold it.
// CALLER MUST HOLD the Manager mutex.
func (e *cursorEntry) toGenericCursor(id CursorID, namespace string) GenericCursor {
	if e.cursor == nil {
		panic("cursormgr: generic cursor from pinned entry")
	}
	return GenericCursor{
		ID:                id,
		Namespace:         namespace,
		Type:              e.cursorType,
		Lsid:              e.lsid,
		OperationKey:      e.opKey,
		OriginatingClient: e.originatingClient,
		LastActive:        e.lastActive,
		NoTimeout:         e.lifetime == LifetimeImmortal,
		PlanSummary:       e.cursor.PlanSummary(),
		DocsReturned:      e.cursor.DocsReturned(),
	}
}

// EntryView is the read-only projection of an entry handed to kill
// predicates. Predicates run under the registry mutex and must be cheap.
type EntryView struct {
	ID           CursorID
	Namespace    string
	Type         CursorType
	Lifetime     CursorLifetime
	LastActive   time.Time
	Lsid         *uuid.UUID
	OperationKey *uuid.UUID
	Pinned       bool
}

func (e *cursorEntry) view(id CursorID, namespace string) EntryView {
	return EntryView{
		ID:           id,
		Namespace:    namespace,
		Type:         e.cursorType,
		Lifetime:     e.lifetime,
		LastActive:   e.lastActive,
		Lsid:         e.lsid,
		OperationKey: e.opKey,
		Pinned:       e.isPinned(),
	}
}
