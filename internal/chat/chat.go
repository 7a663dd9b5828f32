// Package chat defines the domain model for support chat sessions: session
// and message records, the session status state machine, caller identities,
// and the error taxonomy shared by every component in the subsystem.
package chat

import "time"

// Session status values. A session is created waiting, becomes active when
// exactly one agent wins the assignment, and ends closed. Closed is terminal.
const (
	StatusWaiting = "waiting"
	StatusActive  = "active"
	StatusClosed  = "closed"
)

// Sender types for messages.
const (
	SenderCustomer = "customer"
	SenderAgent    = "agent"
)

// Caller roles supplied by the upstream auth layer.
const (
	RoleCustomer = "customer"
	RoleAgent    = "agent"
	RoleAdmin    = "admin"
)

// Identity is the verified caller identity attached to every request by the
// external auth collaborator. This subsystem never authenticates; it trusts
// what it is handed.
type Identity struct {
	UserID           string `json:"user_id"`
	DisplayName      string `json:"display_name"`
	Role             string `json:"role"`
	SubscriptionTier string `json:"subscription_tier"`
}

// IsAgent reports whether the identity may act on the agent side of a chat.
func (id Identity) IsAgent() bool {
	return id.Role == RoleAgent || id.Role == RoleAdmin
}

// Session is one customer-support conversation from request to close.
// AssignedAgentID is set exactly when the session left waiting via a
// successful assignment; a waiting session never has an agent.
type Session struct {
	ID               string     `json:"session_id"`
	CustomerID       string     `json:"customer_id"`
	CustomerName     string     `json:"customer_name"`
	SubscriptionTier string     `json:"subscription_tier"`
	Status           string     `json:"status"`
	AssignedAgentID  string     `json:"assigned_agent_id,omitempty"`
	AssignedAgent    string     `json:"assigned_agent_name,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	AssignedAt       *time.Time `json:"assigned_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	MessageCount     int        `json:"message_count"`
}

// IsParticipant checks whether a caller belongs to this session, either as
// the owning customer or as the assigned agent.
func (s *Session) IsParticipant(userID string) bool {
	return userID == s.CustomerID || (s.AssignedAgentID != "" && userID == s.AssignedAgentID)
}

// Message is a single chat message. Messages are immutable once created and
// totally ordered within a session by (Timestamp, ID); ID is strictly
// increasing per session, so ID alone is a valid polling cursor.
type Message struct {
	ID         int64     `json:"message_id"`
	SessionID  string    `json:"session_id"`
	SenderType string    `json:"sender_type"` // customer | agent
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
}

// Availability is an agent's advertised state plus the derived live session
// count. ActiveSessions is always computed from the session store, never
// stored, so it cannot drift from the sessions themselves.
type Availability struct {
	AgentID        string `json:"agent_id"`
	Available      bool   `json:"is_available"`
	StatusMessage  string `json:"status_message"`
	MaxConcurrent  int    `json:"max_concurrent_sessions"`
	ActiveSessions int    `json:"current_session_count"`
}

// HasCapacity reports whether the agent can take one more session.
func (a Availability) HasCapacity() bool {
	return a.Available && a.ActiveSessions < a.MaxConcurrent
}

// Coarse wait estimate buckets returned by the chat-available probe.
const (
	WaitImmediate = "immediate"
	WaitShort     = "under_5_min"
	WaitLong      = "15_plus_min"
)
