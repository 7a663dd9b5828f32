package chat

import "errors"

// Error taxonomy for the subsystem. Every failed operation returns one of
// these, possibly wrapped; callers classify with errors.Is. None of them is
// retried internally — Conflict and CapacityExceeded are recoverable by the
// caller (re-list and pick another session), the rest are terminal.
var (
	// ErrAccessDenied means the customer's tier is not entitled to chat.
	ErrAccessDenied = errors.New("chat access denied")

	// ErrNotFound means the session or agent does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means an assignment race was lost: the session is no
	// longer waiting (already assigned or closed).
	ErrConflict = errors.New("session not waiting")

	// ErrCapacityExceeded means the agent is at max_concurrent_sessions
	// or not accepting chats.
	ErrCapacityExceeded = errors.New("agent capacity exceeded")

	// ErrInvalidInput means an empty body, empty identity, or other caller
	// bug.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionClosed means a write was attempted against a closed
	// session. Closed sessions are frozen.
	ErrSessionClosed = errors.New("session closed")
)
