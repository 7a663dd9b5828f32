// Package notify fans out side-effect signals from the chat core:
// new-waiting-session when a customer enters the queue, and new-message when
// a message lands in a session. Delivery is at-least-once over either a NATS
// push stream or pure polling — the Tracker synthesizes identical events
// from polled snapshots, so consumers written against one transport work
// unchanged against the other. Consumers must treat duplicates as no-ops.
package notify

import "time"

// Event types.
const (
	TypeWaitingSession = "waiting_session"
	TypeNewMessage     = "new_message"
)

// Event is a single fan-out signal. Events carry identifiers only; the
// consumer re-polls the core for actual state.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	MessageID int64  `json:"message_id,omitempty"` // set for new_message
	Ts        int64  `json:"ts"`                   // unix timestamp
}

// NewWaitingSession builds a waiting-session event.
func NewWaitingSession(sessionID string) Event {
	return Event{Type: TypeWaitingSession, SessionID: sessionID, Ts: time.Now().Unix()}
}

// NewMessage builds a new-message event.
func NewMessage(sessionID string, messageID int64) Event {
	return Event{Type: TypeNewMessage, SessionID: sessionID, MessageID: messageID, Ts: time.Now().Unix()}
}

// Publisher emits events to interested pollers. Publishing is best-effort:
// a lost event only delays a consumer until its next poll, so implementations
// log failures instead of propagating them into the mutation path.
type Publisher interface {
	WaitingSession(sessionID string)
	Message(sessionID string, messageID int64)
}

// NopPublisher discards events. Used when no push transport is configured
// and clients rely on polling alone.
type NopPublisher struct{}

func (NopPublisher) WaitingSession(string) {}
func (NopPublisher) Message(string, int64) {}
