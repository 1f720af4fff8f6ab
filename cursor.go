package cursormgr

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Cursor is the partially consumed result stream the manager tracks. How the
// cursor fetches, merges or sorts shard responses is its own business; the
// manager only moves ownership of it between the registry and workers.
//
// Kill is called exactly once, after the cursor has been removed from the
// registry and outside the registry mutex. It is best effort and receives a
// background context when the originating operation is already gone.
type Cursor interface {
	// Kill releases the remote shard resources backing the cursor.
	Kill(ctx context.Context)

	// Lsid returns the logical session the cursor was created under, or nil.
	// The manager snapshots this at registration.
	Lsid() *uuid.UUID

	// SetMaxTimeBudget stashes the remaining operation time limit on the
	// cursor so later consumption phases can honor it.
	SetMaxTimeBudget(d time.Duration)

	// PlanSummary describes the cursor's plan for diagnostics.
	PlanSummary() string

	// DocsReturned reports how many documents the cursor has produced so far.
	DocsReturned() int64
}

// CursorType tells whether a cursor targets one remote shard or several.
// Used for reporting only.
type CursorType int

const (
	// SingleTarget is a cursor retrieving data from a single remote source.
	SingleTarget CursorType = iota

	// MultiTarget is a cursor retrieving data from multiple remote sources.
	MultiTarget
)

func (t CursorType) String() string {
	switch t {
	case SingleTarget:
		return "single-target"
	case MultiTarget:
		return "multi-target"
	default:
		return "single-target"
	}
}

// CursorLifetime tells whether an idle cursor is subject to inactivity
// reaping.
type CursorLifetime int

const (
	// LifetimeMortal cursors are killed automatically after a period of
	// inactivity.
	LifetimeMortal CursorLifetime = iota

	// LifetimeImmortal cursors are never reaped ("no timeout").
	LifetimeImmortal
)

func (l CursorLifetime) String() string {
	switch l {
	case LifetimeMortal:
		return "mortal"
	case LifetimeImmortal:
		return "immortal"
	default:
		return "mortal"
	}
}

// CheckInState is passed when returning a checked-out cursor.
type CheckInState int

const (
	// NotExhausted keeps the cursor registered for further getMores.
	NotExhausted CheckInState = iota

	// Exhausted de-registers and destroys the cursor on check-in.
	Exhausted
)

func (s CheckInState) String() string {
	switch s {
	case NotExhausted:
		return "not-exhausted"
	case Exhausted:
		return "exhausted"
	default:
		return "not-exhausted"
	}
}

// AuthCheck selects whether CheckOutCursor verifies the caller's logical
// session against the cursor's.
type AuthCheck bool

const (
	CheckSession AuthCheck = true
	SkipSession  AuthCheck = false
)

// AuthFn checks whether the current caller is authorized to act on a cursor.
// It is handed the snapshot of users that were authenticated when the cursor
// was registered. Must be cheap and non-blocking: it runs under the registry
// mutex.
type AuthFn func(users []string) error

// CurrentOpUserMode controls which idle cursors GetIdleCursors reports.
type CurrentOpUserMode int

const (
	// UserModeIncludeAll reports every idle cursor.
	UserModeIncludeAll CurrentOpUserMode = iota

	// UserModeExcludeOthers reports only cursors whose authenticated-user
	// snapshot overlaps the calling operation's users.
	UserModeExcludeOthers
)

// Stats is a point-in-time count of open cursors.
type Stats struct {
	// CursorsMultiTarget counts open cursors registered as MultiTarget.
	CursorsMultiTarget int

	// CursorsSingleTarget counts open cursors registered as SingleTarget.
	CursorsSingleTarget int

	// CursorsPinned counts cursors currently checked out.
	CursorsPinned int
}

// GenericCursor is the redacted, enumeration-friendly descriptor of a
// cursor's metadata, suitable for currentOp-style reporting.
type GenericCursor struct {
	ID                CursorID   `json:"id"`
	Namespace         string     `json:"namespace"`
	Type              CursorType `json:"type"`
	Lsid              *uuid.UUID `json:"lsid,omitempty"`
	OperationKey      *uuid.UUID `json:"operationKey,omitempty"`
	OriginatingClient uuid.UUID  `json:"originatingClient"`
	LastActive        time.Time  `json:"lastActive"`
	NoTimeout         bool       `json:"noTimeout"`
	PlanSummary       string     `json:"planSummary,omitempty"`
	DocsReturned      int64      `json:"docsReturned"`
}
