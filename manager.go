// Package cursormgr tracks long-lived query cursors on a query-routing node.
//
// A registered cursor is either idle or pinned. Pinning checks the cursor out
// to exactly one operation at a time and transfers ownership to a
// PinnedCursor; ownership moves back on ReturnCursor. The manager supports
// killing registered cursors whether idle or pinned: a pinned cursor is
// marked kill-pending and its operation interrupted, and destruction happens
// when the worker checks it back in.
//
// All public methods are thread-safe. None of them return errors for internal
// invariant violations; those panic.
package cursormgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/routegrid/cursormgr/ringlog"
)

// Manager is the in-process registry of cluster cursors. One mutex guards
// every index and every entry field; cursor internals are protected by their
// own mechanisms and by the pinned-ness invariant. The mutex is held only
// across index manipulation and ring-log writes, never across cursor
// destruction or network I/O.
type Manager struct {
	clock Clock
	rand  func() uint32

	mu sync.Mutex

	// drained is signaled whenever an entry is erased; Shutdown waits on it.
	drained *sync.Cond

	inShutdown bool

	// containers maps namespace -> container of entries sharing one prefix.
	// Entries are added when the first cursor on a namespace is registered
	// and removed when the last cursor on it is destroyed.
	containers map[string]*cursorContainer

	// prefixToNamespace exists only to serve GetNamespaceForCursorID, the
	// legacy close-by-id path that has no namespace argument. Maintained in
	// lockstep with containers.
	prefixToNamespace map[uint32]string

	cursorsTimedOut int64

	ring *ringlog.Log
}

// NewManager constructs an empty manager. Prefer one manager per router
// process, injected where needed; tests instantiate isolated ones.
func NewManager(opts ...Option) *Manager {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	m := &Manager{
		clock:             cfg.Clock,
		rand:              cfg.Rand,
		containers:        make(map[string]*cursorContainer),
		prefixToNamespace: make(map[uint32]string),
		ring:              ringlog.New(cfg.LogCapacity),
	}
	m.drained = sync.NewCond(&m.mu)
	return m
}

// RegisterCursor registers cursor under namespace and returns its new id.
// The authenticated-user list is snapshotted for later auth checks; the
// cursor's session id and the operation's key are recorded alongside it.
//
// If the operation carries a deadline, the remaining budget is stashed on the
// cursor for subsequent consumption phases. Fails with ErrShuttingDown once
// Shutdown has begun; on any failure the cursor is killed before returning.
func (m *Manager) RegisterCursor(opCtx *OperationContext, cursor Cursor, namespace string,
	cursorType CursorType, lifetime CursorLifetime, users []string) (CursorID, error) {
	if cursor == nil {
		panic("cursormgr: registering nil cursor")
	}
	if opCtx == nil {
		panic("cursormgr: registering without operation context")
	}

	now := m.clock.Now()
	if budget, ok := opCtx.RemainingTimeBudget(now); ok {
		cursor.SetMaxTimeBudget(budget)
	}

	m.mu.Lock()
	m.ring.Push(ringlog.Event{Kind: ringlog.RegisterAttempt, Namespace: namespace, Time: now})

	if m.inShutdown {
		m.mu.Unlock()
		cursor.Kill(opCtx.Context())
		return NullCursorID, ErrShuttingDown
	}

	container := m.containerForNamespace(namespace)
	id := container.allocateCursorID(m.rand)
	container.entries[id] = &cursorEntry{
		cursor:             cursor,
		cursorType:         cursorType,
		lifetime:           lifetime,
		lastActive:         now,
		lsid:               cursor.Lsid(),
		opKey:              opCtx.OperationKey(),
		originatingClient:  opCtx.ClientUUID(),
		authenticatedUsers: append([]string(nil), users...),
	}

	m.ring.Push(ringlog.Event{Kind: ringlog.RegisterComplete, CursorID: int64(id), Namespace: namespace, Time: now})
	m.mu.Unlock()
	return id, nil
}

// CheckOutCursor moves the cursor to the pinned state and transfers ownership
// to the returned PinnedCursor, which must later be returned with
// ReturnCursor (or Close).
//
// Only one operation may pin a given cursor at a time: a pinned cursor is
// refused with ErrCursorInUse, never queued. An unregistered cursor is refused
// with ErrCursorNotFound. A kill-pending cursor is still checked out, so it is
// refused with ErrCursorInUse until its check-in erases it, and with
// ErrCursorNotFound after that. authFn, if non-nil, is run
// against the entry's user snapshot and its error propagated verbatim. With
// CheckSession, the operation's logical session must agree with the cursor's.
//
// Updates the cursor's last-active time.
func (m *Manager) CheckOutCursor(namespace string, id CursorID, opCtx *OperationContext,
	authFn AuthFn, authCheck AuthCheck) (*PinnedCursor, error) {
	if opCtx == nil {
		panic("cursormgr: checkout without operation context")
	}

	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring.Push(ringlog.Event{Kind: ringlog.CheckoutAttempt, CursorID: int64(id), Namespace: namespace, Time: now})

	entry := m.getEntryLocked(namespace, id)
	if entry == nil {
		return nil, fmt.Errorf("cursor id %d: %w", id, ErrCursorNotFound)
	}
	if entry.isPinned() {
		return nil, fmt.Errorf("cursor id %d: %w", id, ErrCursorInUse)
	}
	if entry.killPending {
		// Logically gone; destruction is just waiting on a check-in.
		return nil, fmt.Errorf("cursor id %d: %w", id, ErrCursorNotFound)
	}
	if authFn != nil {
		if err := authFn(entry.authenticatedUsers); err != nil {
			return nil, err
		}
	}
	if authCheck == CheckSession {
		if err := checkSessionCompat(opCtx.Lsid(), entry.lsid, id); err != nil {
			return nil, err
		}
	}

	cursor := entry.releaseCursor(opCtx)
	entry.lastActive = now

	m.ring.Push(ringlog.Event{Kind: ringlog.CheckoutComplete, CursorID: int64(id), Namespace: namespace, Time: now})
	return &PinnedCursor{
		manager:   m,
		cursor:    cursor,
		opCtx:     opCtx,
		namespace: namespace,
		id:        id,
	}, nil
}

// checkSessionCompat rejects a checkout whose session identity disagrees with
// the cursor's binding.
func checkSessionCompat(opLsid, cursorLsid *uuid.UUID, id CursorID) error {
	switch {
	case cursorLsid == nil && opLsid == nil:
		return nil
	case cursorLsid != nil && opLsid == nil:
		return fmt.Errorf("cursor id %d was created under session %s but the operation has no session: %w",
			id, *cursorLsid, ErrSessionMismatch)
	case cursorLsid == nil && opLsid != nil:
		return fmt.Errorf("cursor id %d is not bound to a session but the operation runs under session %s: %w",
			id, *opLsid, ErrSessionMismatch)
	case *cursorLsid != *opLsid:
		return fmt.Errorf("cursor id %d belongs to session %s, not the operation's session %s: %w",
			id, *cursorLsid, *opLsid, ErrSessionMismatch)
	}
	return nil
}

// checkInCursor transfers ownership of a pinned cursor back to the manager.
// If state is Exhausted, or a kill arrived while the cursor was out, the
// entry is erased and the cursor destroyed after the mutex is released.
//
// Intentionally unexported: workers check cursors in through PinnedCursor.
func (m *Manager) checkInCursor(cursor Cursor, namespace string, id CursorID, state CheckInState) {
	if cursor == nil {
		panic("cursormgr: checking in nil cursor")
	}

	now := m.clock.Now()
	m.mu.Lock()
	m.ring.Push(ringlog.Event{Kind: ringlog.CheckInAttempt, CursorID: int64(id), Namespace: namespace, Time: now})

	entry := m.getEntryLocked(namespace, id)
	if entry == nil {
		panic("cursormgr: checking in unregistered cursor")
	}
	entry.returnCursor(cursor)
	entry.lastActive = now

	if state != Exhausted && !entry.killPending {
		m.ring.Push(ringlog.Event{Kind: ringlog.CheckInCompleteCursorSaved, CursorID: int64(id), Namespace: namespace, Time: now})
		m.mu.Unlock()
		return
	}

	doomed := m.detachCursorLocked(namespace, id, entry, now)
	m.mu.Unlock()
	doomed.Kill(context.Background())
}

// KillCursor informs the manager that the cursor should be killed, whatever
// its lifetime type. An idle cursor is destroyed before returning. A pinned
// cursor is marked kill-pending and its operation interrupted; destruction
// happens when the worker checks it back in.
//
// A thread currently using a cursor must not call KillCursor on it; it should
// return the cursor Exhausted instead. Returns ErrCursorNotFound when no such
// entry exists, including entries already kill-pending.
func (m *Manager) KillCursor(ctx context.Context, namespace string, id CursorID) error {
	now := m.clock.Now()
	m.mu.Lock()
	m.ring.Push(ringlog.Event{Kind: ringlog.KillCursorAttempt, CursorID: int64(id), Namespace: namespace, Time: now})

	entry := m.getEntryLocked(namespace, id)
	if entry == nil || entry.killPending {
		m.mu.Unlock()
		return fmt.Errorf("cursor id %d: %w", id, ErrCursorNotFound)
	}

	if entry.isPinned() {
		entry.killPending = true
		m.killOperationUsingCursorLocked(entry)
		m.mu.Unlock()
		return nil
	}

	doomed := m.detachCursorLocked(namespace, id, entry, now)
	m.mu.Unlock()
	doomed.Kill(ctx)
	return nil
}

// KillCursorsSatisfying kills every cursor the predicate matches and returns
// how many were affected. Idle matches are detached and destroyed; pinned
// matches are marked kill-pending and their operations interrupted.
//
// The mutex is held across the entire scan: simple global consistency over
// throughput. Predicates must be cheap and non-blocking.
func (m *Manager) KillCursorsSatisfying(ctx context.Context, pred func(EntryView) bool) int {
	now := m.clock.Now()
	m.mu.Lock()
	m.ring.Push(ringlog.Event{Kind: ringlog.RemoveCursorsSatisfyingPredicateAttempt, Time: now})

	var doomed []Cursor
	count := 0
	for namespace, container := range m.containers {
		for id, entry := range container.entries {
			if entry.killPending {
				continue
			}
			if !pred(entry.view(id, namespace)) {
				continue
			}
			count++
			m.ring.Push(ringlog.Event{Kind: ringlog.CursorMarkedForDeletion, CursorID: int64(id), Namespace: namespace, Time: now})
			if entry.isPinned() {
				entry.killPending = true
				m.killOperationUsingCursorLocked(entry)
			} else {
				doomed = append(doomed, m.detachCursorLocked(namespace, id, entry, now))
			}
		}
	}

	m.ring.Push(ringlog.Event{Kind: ringlog.RemoveCursorsSatisfyingPredicateComplete, Time: now})
	m.mu.Unlock()

	for _, c := range doomed {
		c.Kill(ctx)
	}
	return count
}

// KillMortalCursorsInactiveSince kills all mortal cursors whose last-active
// time is at or before cutoff. Pinned cursors are never reaped: an
// in-progress operation defines activity. Returns the number killed.
func (m *Manager) KillMortalCursorsInactiveSince(ctx context.Context, cutoff time.Time) int {
	return m.KillCursorsSatisfying(ctx, func(v EntryView) bool {
		return v.Lifetime == LifetimeMortal && !v.Pinned && !v.LastActive.After(cutoff)
	})
}

// KillCursorsWithMatchingSessions kills every cursor bound to a logical
// session the matcher accepts.
func (m *Manager) KillCursorsWithMatchingSessions(ctx context.Context, matcher func(uuid.UUID) bool) int {
	return m.KillCursorsSatisfying(ctx, func(v EntryView) bool {
		return v.Lsid != nil && matcher(*v.Lsid)
	})
}

// KillAllCursors kills every cursor registered at the time of the call.
// Registrations concurrent with the call may survive; callers needing a hard
// stop use Shutdown.
func (m *Manager) KillAllCursors(ctx context.Context) int {
	return m.KillCursorsSatisfying(ctx, func(EntryView) bool { return true })
}

// Shutdown puts the manager in the shutting-down state, kills every remaining
// cursor, and blocks until concurrently checked-out cursors have been
// returned and destroyed. Further RegisterCursor calls fail with
// ErrShuttingDown.
//
// The wait is cooperative: interrupted workers observe cancellation at their
// next check and return their cursors. Shutdown itself has no deadline;
// cancel ctx to stop waiting early (kill-pending marks stay in place and the
// remaining cursors die on check-in).
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.inShutdown = true
	m.mu.Unlock()

	killed := m.KillAllCursors(ctx)
	log.Info("cursor manager shutting down", "killed", killed)

	// Wake the cond wait below if ctx expires first.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.drained.Broadcast()
			m.mu.Unlock()
		case <-stop:
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	for m.totalEntriesLocked() > 0 {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		m.drained.Wait()
	}
	return nil
}

// CheckAuthForKillCursors finds the cursor and runs the auth predicate
// against its user snapshot, propagating the predicate's result. Does not
// touch checkout state.
func (m *Manager) CheckAuthForKillCursors(namespace string, id CursorID, authFn AuthFn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.getEntryLocked(namespace, id)
	if entry == nil {
		return fmt.Errorf("cursor id %d: %w", id, ErrCursorNotFound)
	}
	if authFn == nil {
		return nil
	}
	return authFn(entry.authenticatedUsers)
}

// Stats counts open cursors by type and pinned-ness. Kill-pending entries are
// logically dead and not counted.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats Stats
	for _, container := range m.containers {
		for _, entry := range container.entries {
			if entry.killPending {
				continue
			}
			switch entry.cursorType {
			case MultiTarget:
				stats.CursorsMultiTarget++
			case SingleTarget:
				stats.CursorsSingleTarget++
			}
			if entry.isPinned() {
				stats.CursorsPinned++
			}
		}
	}
	return stats
}

// AppendActiveSessions adds the logical session of every live cursor to
// lsids.
func (m *Manager) AppendActiveSessions(lsids map[uuid.UUID]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, container := range m.containers {
		for _, entry := range container.entries {
			if entry.killPending || entry.lsid == nil {
				continue
			}
			lsids[*entry.lsid] = struct{}{}
		}
	}
}

// GetIdleCursors snapshots every non-pinned cursor as a GenericCursor. With
// UserModeExcludeOthers, only cursors whose authenticated-user snapshot
// overlaps the calling operation's users are reported.
func (m *Manager) GetIdleCursors(opCtx *OperationContext, userMode CurrentOpUserMode) []GenericCursor {
	var opUsers []string
	if opCtx != nil {
		opUsers = opCtx.AuthenticatedUsers()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []GenericCursor
	for namespace, container := range m.containers {
		for id, entry := range container.entries {
			if entry.killPending || entry.isPinned() {
				continue
			}
			if userMode == UserModeExcludeOthers && !usersOverlap(opUsers, entry.authenticatedUsers) {
				continue
			}
			out = append(out, entry.toGenericCursor(id, namespace))
		}
	}
	return out
}

// usersOverlap reports whether the two user snapshots share a principal.
// Two empty snapshots overlap: with auth disabled everyone owns everything.
func usersOverlap(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	for _, u := range a {
		for _, v := range b {
			if u == v {
				return true
			}
		}
	}
	return false
}

// GetCursorsForSession returns the ids of all open cursors bound to lsid.
func (m *Manager) GetCursorsForSession(lsid uuid.UUID) []CursorID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []CursorID
	for _, container := range m.containers {
		for id, entry := range container.entries {
			if entry.killPending || entry.lsid == nil {
				continue
			}
			if *entry.lsid == lsid {
				out = append(out, id)
			}
		}
	}
	return out
}

// GetCursorsForOpKeys returns the ids of all open cursors registered under
// any of the given operation keys.
func (m *Manager) GetCursorsForOpKeys(keys []uuid.UUID) []CursorID {
	want := make(map[uuid.UUID]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []CursorID
	for _, container := range m.containers {
		for id, entry := range container.entries {
			if entry.killPending || entry.opKey == nil {
				continue
			}
			if _, ok := want[*entry.opKey]; ok {
				out = append(out, id)
			}
		}
	}
	return out
}

// GetNamespaceForCursorID resolves a namespace from the prefix portion of an
// id alone. A cursor with the given id need not exist. Deprecated in spirit:
// kept only for the legacy close-by-id path that lacks namespace context.
func (m *Manager) GetNamespaceForCursorID(id CursorID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	namespace, ok := m.prefixToNamespace[id.Prefix()]
	return namespace, ok
}

// CursorsTimedOut returns the running count of cursors killed by inactivity.
func (m *Manager) CursorsTimedOut() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursorsTimedOut
}

// IncrementCursorsTimedOut adds n to the timed-out counter. Called by the
// reaper after each sweep.
func (m *Manager) IncrementCursorsTimedOut(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursorsTimedOut += n
}

// getEntryLocked returns the entry for (namespace, id), or nil.
// CALLER MUST HOLD m.mu.
func (m *Manager) getEntryLocked(namespace string, id CursorID) *cursorEntry {
	container, ok := m.containers[namespace]
	if !ok {
		return nil
	}
	return container.entries[id]
}

// detachCursorLocked takes the cursor out of an idle entry and erases the
// entry. The caller destroys the returned cursor after releasing the mutex.
// CALLER MUST HOLD m.mu; the entry must be idle and registered.
func (m *Manager) detachCursorLocked(namespace string, id CursorID, entry *cursorEntry, now time.Time) Cursor {
	m.ring.Push(ringlog.Event{Kind: ringlog.DetachAttempt, CursorID: int64(id), Namespace: namespace, Time: now})

	if entry.cursor == nil {
		panic("cursormgr: detaching pinned cursor")
	}
	c := entry.cursor
	entry.cursor = nil

	if m.eraseEntry(namespace, id) {
		m.ring.Push(ringlog.Event{Kind: ringlog.NamespaceEntryMapErased, CursorID: int64(id), Namespace: namespace, Time: now})
	}
	m.ring.Push(ringlog.Event{Kind: ringlog.DetachComplete, CursorID: int64(id), Namespace: namespace, Time: now})
	return c
}

// killOperationUsingCursorLocked interrupts the operation that has the
// entry's cursor checked out. Interrupt acquires that operation's client
// lock; ordering is registry mutex -> client lock, never the reverse.
// CALLER MUST HOLD m.mu; the entry must be pinned.
func (m *Manager) killOperationUsingCursorLocked(entry *cursorEntry) {
	if entry.operation == nil {
		panic("cursormgr: no operation to kill")
	}
	entry.operation.Interrupt(ErrCursorKilled)
}

// totalEntriesLocked counts live entries, kill-pending included.
// CALLER MUST HOLD m.mu.
func (m *Manager) totalEntriesLocked() int {
	n := 0
	for _, container := range m.containers {
		n += len(container.entries)
	}
	return n
}
