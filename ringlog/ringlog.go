// Package ringlog is a fixed-capacity circular buffer of cursor lifecycle
// events. It exists to debug hard-to-reproduce lifecycle bugs: the cursor
// manager appends an event on every state transition while holding its mutex,
// and dumps the buffer on demand.
//
// The type is deliberately unsynchronized; the owning manager already
// serializes writers. Timestamps are optional so that callers are not forced
// to read the clock while holding a lock.
package ringlog

import (
	"encoding/json"
	"time"
)

// DefaultCapacity is the slot count used by the cursor manager.
const DefaultCapacity = 512

// Kind enumerates the lifecycle events the manager records.
type Kind int

const (
	// RegisterAttempt marks any attempt to create a cursor.
	RegisterAttempt Kind = iota
	// RegisterComplete marks a cursor actually being created.
	RegisterComplete

	CheckoutAttempt
	CheckoutComplete

	// CheckInAttempt may be followed by CheckInCompleteCursorSaved, or by
	// events indicating the cursor is deleted.
	CheckInAttempt
	// CheckInCompleteCursorSaved is logged when check-in keeps the cursor.
	CheckInCompleteCursorSaved

	// Detaching a cursor (and erasing the associated namespace).
	DetachAttempt
	DetachComplete
	NamespaceEntryMapErased

	// RemoveCursorsSatisfyingPredicateAttempt/Complete bracket the period
	// where a predicate kill holds the manager lock.
	RemoveCursorsSatisfyingPredicateAttempt
	RemoveCursorsSatisfyingPredicateComplete

	// KillCursorAttempt marks any call to kill a single cursor.
	KillCursorAttempt

	// CursorMarkedForDeletion is recorded each time a predicate kill detaches
	// or marks a cursor it intends to destroy.
	CursorMarkedForDeletion
)

func (k Kind) String() string {
	switch k {
	case RegisterAttempt:
		return "registerAttempt"
	case RegisterComplete:
		return "registerComplete"
	case CheckoutAttempt:
		return "checkoutAttempt"
	case CheckoutComplete:
		return "checkoutComplete"
	case CheckInAttempt:
		return "checkInAttempt"
	case CheckInCompleteCursorSaved:
		return "checkInCompleteCursorSaved"
	case DetachAttempt:
		return "detachAttempt"
	case DetachComplete:
		return "detachComplete"
	case NamespaceEntryMapErased:
		return "namespaceEntryMapErased"
	case RemoveCursorsSatisfyingPredicateAttempt:
		return "removeCursorsSatisfyingPredicateAttempt"
	case RemoveCursorsSatisfyingPredicateComplete:
		return "removeCursorsSatisfyingPredicateComplete"
	case KillCursorAttempt:
		return "killCursorAttempt"
	case CursorMarkedForDeletion:
		return "cursorMarkedForDeletion"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the kind as its name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Event is one recorded lifecycle transition.
type Event struct {
	Kind Kind `json:"kind"`

	// CursorID is zero for events with no associated cursor.
	CursorID int64 `json:"cursorId,omitempty"`

	Namespace string `json:"namespace,omitempty"`

	// Time is zero when the writer skipped the clock read.
	Time time.Time `json:"time,omitzero"`
}

// Log is the circular buffer. One slot is kept as a sentinel, so a Log built
// with capacity n retains the latest n-1 events.
type Log struct {
	events []Event
	start  int
	end    int
}

// New creates a Log with the given slot count. Capacities below 2 are
// raised to 2 (one usable slot).
func New(capacity int) *Log {
	if capacity < 2 {
		capacity = 2
	}
	return &Log{events: make([]Event, capacity)}
}

// Push appends an event, overwriting the oldest when full.
func (l *Log) Push(e Event) {
	l.events[l.end] = e
	l.end = (l.end + 1) % len(l.events)
	if l.end == l.start {
		l.start = (l.start + 1) % len(l.events)
	}
}

// Len reports how many events are currently retained.
func (l *Log) Len() int {
	return (l.end - l.start + len(l.events)) % len(l.events)
}

// Snapshot returns the retained events, oldest first.
func (l *Log) Snapshot() []Event {
	out := make([]Event, 0, l.Len())
	for i := l.start; i != l.end; i = (i + 1) % len(l.events) {
		out = append(out, l.events[i])
	}
	return out
}
