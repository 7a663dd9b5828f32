// Package relay orchestrates session lifecycle and message exchange: it
// gates session creation behind the access policy, appends messages through
// the store, and hands fan-out events to the notifier. It owns no state of
// its own — the session store is the single source of truth and the relay
// never retries a mutation, so an unknown outcome is the caller's to
// re-issue with fresh intent.
package relay

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/deskline/support-chat/internal/chat"
	"github.com/deskline/support-chat/internal/metrics"
	"github.com/deskline/support-chat/internal/notify"
	"github.com/deskline/support-chat/internal/policy"
	"github.com/deskline/support-chat/internal/store"
)

// Service carries out session and message operations.
type Service struct {
	sessions  store.Store
	policy    *policy.Policy
	publisher notify.Publisher
}

// NewService creates a relay over the given store, policy, and publisher.
func NewService(sessions store.Store, p *policy.Policy, publisher notify.Publisher) *Service {
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	return &Service{sessions: sessions, policy: p, publisher: publisher}
}

// StartSession authorizes the customer and creates a waiting session. A
// non-empty initial message is appended before the session is announced.
// Access denial is terminal for the request and carries the policy's reason
// verbatim.
func (s *Service) StartSession(ctx context.Context, customer chat.Identity, initialMessage string) (*chat.Session, error) {
	if err := chat.ValidateIdentity(customer); err != nil {
		metrics.SessionsStartedTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if decision := s.policy.CheckAccess(customer); !decision.Allowed {
		metrics.SessionsStartedTotal.WithLabelValues("denied").Inc()
		return nil, fmt.Errorf("relay: %s: %w", decision.Reason, chat.ErrAccessDenied)
	}

	// Validate the initial message up front: a rejected request must leave
	// no waiting session behind for agents to pick up.
	var body string
	if strings.TrimSpace(initialMessage) != "" {
		var err error
		body, err = chat.ValidateBody(initialMessage)
		if err != nil {
			metrics.SessionsStartedTotal.WithLabelValues("invalid").Inc()
			return nil, err
		}
	}

	sess, err := s.sessions.CreateSession(ctx, customer)
	if err != nil {
		metrics.SessionsStartedTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if body != "" {
		msg, err := s.sessions.AppendMessage(ctx, sess.ID, chat.SenderCustomer, customer.DisplayName, body)
		if err != nil {
			return nil, err
		}
		sess.MessageCount = 1
		s.publisher.Message(sess.ID, msg.ID)
	}

	metrics.SessionsStartedTotal.WithLabelValues("created").Inc()
	s.publisher.WaitingSession(sess.ID)
	log.Printf("[relay] session=%s created for customer=%s tier=%s", sess.ID, customer.UserID, customer.SubscriptionTier)
	return sess, nil
}

// Send appends a message from the caller to the session. The caller must be
// a participant; the sender type follows the caller's role. Closed sessions
// are frozen.
func (s *Service) Send(ctx context.Context, sessionID string, sender chat.Identity, body string) (*chat.Message, error) {
	body, err := chat.ValidateBody(body)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsParticipant(sender.UserID) {
		return nil, fmt.Errorf("relay: %s is not a participant of %s: %w", sender.UserID, sessionID, chat.ErrAccessDenied)
	}

	senderType := chat.SenderCustomer
	if sender.IsAgent() {
		senderType = chat.SenderAgent
	}

	msg, err := s.sessions.AppendMessage(ctx, sessionID, senderType, sender.DisplayName, body)
	if err != nil {
		return nil, err
	}

	metrics.MessagesTotal.WithLabelValues(senderType).Inc()
	s.publisher.Message(sessionID, msg.ID)
	return msg, nil
}

// HistoryPage is one poll of a session: the ordered messages past the
// cursor plus the envelope the poller needs to render state transitions.
type HistoryPage struct {
	Session  *chat.Session   `json:"session"`
	Messages []*chat.Message `json:"messages"`
}

// History returns the messages with id > since together with the current
// session snapshot. Safe under arbitrarily frequent polling: it reads a
// snapshot and mutates nothing.
func (s *Service) History(ctx context.Context, sessionID string, caller chat.Identity, since int64) (*HistoryPage, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// Agents may read any session (they triage the waiting list);
	// customers only their own.
	if !caller.IsAgent() && !sess.IsParticipant(caller.UserID) {
		return nil, fmt.Errorf("relay: %s may not read %s: %w", caller.UserID, sessionID, chat.ErrAccessDenied)
	}

	msgs, err := s.sessions.ListMessages(ctx, sessionID, since)
	if err != nil {
		return nil, err
	}
	return &HistoryPage{Session: sess, Messages: msgs}, nil
}

// Get returns a session snapshot under the same visibility rules as
// History.
func (s *Service) Get(ctx context.Context, sessionID string, caller chat.Identity) (*chat.Session, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAgent() && !sess.IsParticipant(caller.UserID) {
		return nil, fmt.Errorf("relay: %s may not read %s: %w", caller.UserID, sessionID, chat.ErrAccessDenied)
	}
	return sess, nil
}

// List returns a session snapshot filtered by status. Agent/admin only;
// enforced at the HTTP boundary, re-checked here.
func (s *Service) List(ctx context.Context, caller chat.Identity, status string) ([]*chat.Session, error) {
	if !caller.IsAgent() {
		return nil, fmt.Errorf("relay: %s may not list sessions: %w", caller.UserID, chat.ErrAccessDenied)
	}
	if status != "" && status != chat.StatusWaiting && status != chat.StatusActive && status != chat.StatusClosed {
		return nil, fmt.Errorf("relay: unknown status %q: %w", status, chat.ErrInvalidInput)
	}
	return s.sessions.ListSessions(ctx, status)
}

// Close marks the session closed. Either party may close; closing an
// already-closed session succeeds without effect.
func (s *Service) Close(ctx context.Context, sessionID string, caller chat.Identity) error {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !caller.IsAgent() && !sess.IsParticipant(caller.UserID) {
		return fmt.Errorf("relay: %s may not close %s: %w", caller.UserID, sessionID, chat.ErrAccessDenied)
	}

	if err := s.sessions.CloseSession(ctx, sessionID, caller.UserID); err != nil {
		return err
	}
	log.Printf("[relay] session=%s closed by %s", sessionID, caller.UserID)
	return nil
}
