package cursormgr

import "errors"

// Common errors
var (
	// ErrCursorNotFound is returned when no cursor is registered under the
	// given (namespace, id), or when the matching entry has a pending kill
	// and is therefore logically gone.
	ErrCursorNotFound = errors.New("cursor not found")

	// ErrCursorInUse is returned when the cursor is currently checked out
	// by another operation.
	ErrCursorInUse = errors.New("cursor in use")

	// ErrShuttingDown is returned by RegisterCursor once Shutdown has begun.
	ErrShuttingDown = errors.New("cursor manager shutting down")

	// ErrSessionMismatch is returned when the calling operation's logical
	// session is incompatible with the session the cursor is bound to.
	ErrSessionMismatch = errors.New("cursor session mismatch")

	// ErrCursorKilled is the cancellation cause used when the manager
	// interrupts an operation that has a cursor checked out.
	ErrCursorKilled = errors.New("cursor killed")
)
