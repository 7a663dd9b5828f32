// Package store persists chat sessions and messages. Two implementations
// exist: MemoryStore, a mutex-serialized in-process store, and
// PostgresStore, which maps the same contract onto row-locked transactions.
//
// Both guarantee the subsystem's core invariants at the store boundary:
// assignment is a compare-and-set out of the waiting status with the agent's
// live active-session count checked in the same critical section, message
// ids are strictly increasing per session, and closed sessions reject all
// writes.
package store

import (
	"context"

	"github.com/deskline/support-chat/internal/chat"
)

// Store is the durable record of chat sessions and their messages.
type Store interface {
	// CreateSession creates a waiting session for the customer.
	CreateSession(ctx context.Context, customer chat.Identity) (*chat.Session, error)

	// GetSession returns a session or chat.ErrNotFound.
	GetSession(ctx context.Context, sessionID string) (*chat.Session, error)

	// ListSessions returns a snapshot filtered by status ("" for all).
	// Waiting sessions are ordered created_at ascending (longest wait
	// first); active sessions assigned_at descending.
	ListSessions(ctx context.Context, status string) ([]*chat.Session, error)

	// AssignSession atomically transitions a waiting session to active and
	// binds the agent, enforcing maxConcurrent against the agent's live
	// active count inside the same transaction. Returns chat.ErrConflict
	// if the session is not waiting and chat.ErrCapacityExceeded if the
	// agent is at cap.
	AssignSession(ctx context.Context, sessionID, agentID, agentName string, maxConcurrent int) (*chat.Session, error)

	// CloseSession marks a session closed. Closing an already-closed
	// session is a no-op; chat.ErrNotFound only if it never existed.
	CloseSession(ctx context.Context, sessionID, closedBy string) error

	// AppendMessage appends a message with a server-assigned timestamp and
	// a strictly increasing id. Returns chat.ErrSessionClosed when the
	// session is closed.
	AppendMessage(ctx context.Context, sessionID, senderType, senderName, body string) (*chat.Message, error)

	// ListMessages returns messages with id > since in ascending order.
	ListMessages(ctx context.Context, sessionID string, since int64) ([]*chat.Message, error)

	// CountActiveByAgent returns the number of active sessions bound to
	// the agent. This is the only source of truth for agent load.
	CountActiveByAgent(ctx context.Context, agentID string) (int, error)

	// CountWaiting returns the number of waiting sessions.
	CountWaiting(ctx context.Context) (int, error)
}
