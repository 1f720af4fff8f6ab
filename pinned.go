package cursormgr

// PinnedCursor represents exclusive possession of a cursor leased from a
// Manager. It either owns a cursor or is empty (after ReturnCursor or Close).
// Constructed only by Manager.CheckOutCursor.
//
// The worker streams results through Cursor(), using the checkout's
// OperationContext for its blocking calls, then hands ownership back with
// ReturnCursor. Callers should `defer pc.Close()` at checkout: Close on a
// still-owned cursor returns it with a kill, so early exits never leak.
type PinnedCursor struct {
	manager   *Manager
	cursor    Cursor
	opCtx     *OperationContext
	namespace string
	id        CursorID
}

// Cursor returns the owned cursor. Panics if the handle is empty.
func (p *PinnedCursor) Cursor() Cursor {
	if p.cursor == nil {
		panic("cursormgr: pinned cursor is empty")
	}
	return p.cursor
}

// Context returns the operation context the cursor is attached to for the
// duration of the checkout.
func (p *PinnedCursor) Context() *OperationContext { return p.opCtx }

// CursorID returns the id of the owned cursor, or NullCursorID if empty.
func (p *PinnedCursor) CursorID() CursorID {
	if p.cursor == nil {
		return NullCursorID
	}
	return p.id
}

// Namespace returns the namespace the cursor was checked out from.
func (p *PinnedCursor) Namespace() string { return p.namespace }

// ReturnCursor transfers ownership back to the manager and empties the
// handle. With Exhausted the manager de-registers and destroys the cursor.
// Panics if the handle is already empty.
func (p *PinnedCursor) ReturnCursor(state CheckInState) {
	if p.cursor == nil {
		panic("cursormgr: returning empty pinned cursor")
	}
	cursor := p.cursor
	p.cursor = nil
	p.manager.checkInCursor(cursor, p.namespace, p.id, state)
}

// ToGenericCursor renders the owned cursor as a descriptor. Panics if the
// handle is empty.
func (p *PinnedCursor) ToGenericCursor() GenericCursor {
	c := p.Cursor()
	return GenericCursor{
		ID:                p.id,
		Namespace:         p.namespace,
		Lsid:              c.Lsid(),
		OperationKey:      p.opCtx.OperationKey(),
		OriginatingClient: p.opCtx.ClientUUID(),
		PlanSummary:       c.PlanSummary(),
		DocsReturned:      c.DocsReturned(),
	}
}

// Close returns the cursor with a kill if it is still owned, and is a no-op
// otherwise. Ensures no leak on error paths; safe to call more than once.
func (p *PinnedCursor) Close() {
	if p.cursor == nil {
		return
	}
	p.returnAndKillCursor()
}

// returnAndKillCursor checks the cursor in as exhausted so the manager
// destroys it immediately.
func (p *PinnedCursor) returnAndKillCursor() {
	p.ReturnCursor(Exhausted)
}
