package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/deskline/support-chat/internal/chat"
	"github.com/deskline/support-chat/internal/policy"
	"github.com/deskline/support-chat/internal/store"
)

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu       sync.Mutex
	waiting  []string
	messages []int64
}

func (r *recordingPublisher) WaitingSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting = append(r.waiting, sessionID)
}

func (r *recordingPublisher) Message(_ string, messageID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, messageID)
}

func testService() (*Service, *store.MemoryStore, *recordingPublisher) {
	s := store.NewMemoryStore()
	pub := &recordingPublisher{}
	return NewService(s, policy.New([]string{"free"}), pub), s, pub
}

func proCustomer() chat.Identity {
	return chat.Identity{UserID: "cust-1", DisplayName: "Pat", Role: chat.RoleCustomer, SubscriptionTier: "pro"}
}

func agent() chat.Identity {
	return chat.Identity{UserID: "agent-1", DisplayName: "Alex", Role: chat.RoleAgent}
}

func TestStartSession_CreatesWaitingWithInitialMessage(t *testing.T) {
	svc, s, pub := testService()
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, proCustomer(), "my order is stuck")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if sess.Status != chat.StatusWaiting {
		t.Errorf("status = %s, want waiting", sess.Status)
	}

	msgs, _ := s.ListMessages(ctx, sess.ID, 0)
	if len(msgs) != 1 || msgs[0].Body != "my order is stuck" {
		t.Errorf("initial message not appended: %+v", msgs)
	}
	if msgs[0].SenderType != chat.SenderCustomer {
		t.Errorf("initial message sender = %s, want customer", msgs[0].SenderType)
	}

	if len(pub.waiting) != 1 || pub.waiting[0] != sess.ID {
		t.Errorf("waiting event not published: %+v", pub.waiting)
	}
	if len(pub.messages) != 1 {
		t.Errorf("message event not published: %+v", pub.messages)
	}
}

func TestStartSession_EmptyInitialMessageSkipped(t *testing.T) {
	svc, s, _ := testService()
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, proCustomer(), "   ")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	msgs, _ := s.ListMessages(ctx, sess.ID, 0)
	if len(msgs) != 0 {
		t.Errorf("blank initial message should not append, got %d", len(msgs))
	}
}

func TestStartSession_InvalidInitialMessageCreatesNothing(t *testing.T) {
	svc, s, pub := testService()
	ctx := context.Background()

	oversized := strings.Repeat("a", chat.MaxMessageBytes+1)
	_, err := svc.StartSession(ctx, proCustomer(), oversized)
	if !errors.Is(err, chat.ErrInvalidInput) {
		t.Fatalf("oversized initial message should fail InvalidInput, got %v", err)
	}

	// The failed request must not leave a waiting session for agents to
	// see and assign.
	waiting, err := s.CountWaiting(ctx)
	if err != nil {
		t.Fatalf("CountWaiting: %v", err)
	}
	if waiting != 0 {
		t.Errorf("got %d waiting sessions after failed start, want 0", waiting)
	}
	if sessions, _ := s.ListSessions(ctx, ""); len(sessions) != 0 {
		t.Errorf("got %d sessions after failed start, want 0", len(sessions))
	}
	if len(pub.waiting) != 0 || len(pub.messages) != 0 {
		t.Errorf("failed start must publish nothing: waiting=%v messages=%v", pub.waiting, pub.messages)
	}
}

func TestStartSession_AccessDenied(t *testing.T) {
	svc, _, pub := testService()

	denied := proCustomer()
	denied.SubscriptionTier = "free"

	// Retrying does not help: the gate holds every time.
	for i := 0; i < 3; i++ {
		_, err := svc.StartSession(context.Background(), denied, "help")
		if !errors.Is(err, chat.ErrAccessDenied) {
			t.Fatalf("attempt %d: expected AccessDenied, got %v", i+1, err)
		}
	}
	if len(pub.waiting) != 0 {
		t.Errorf("denied customer must never produce a session")
	}
}

func TestStartSession_EmptyIdentity(t *testing.T) {
	svc, _, _ := testService()
	_, err := svc.StartSession(context.Background(), chat.Identity{}, "hi")
	if !errors.Is(err, chat.ErrInvalidInput) {
		t.Errorf("expected InvalidInput, got %v", err)
	}
}

func TestSend_ParticipantsOnly(t *testing.T) {
	svc, s, _ := testService()
	ctx := context.Background()

	sess, _ := svc.StartSession(ctx, proCustomer(), "")

	if _, err := svc.Send(ctx, sess.ID, proCustomer(), "hello?"); err != nil {
		t.Errorf("customer send: %v", err)
	}

	stranger := chat.Identity{UserID: "lurker", Role: chat.RoleCustomer, SubscriptionTier: "pro"}
	if _, err := svc.Send(ctx, sess.ID, stranger, "hi"); !errors.Is(err, chat.ErrAccessDenied) {
		t.Errorf("stranger send should be denied, got %v", err)
	}

	// The assigned agent becomes a participant.
	if _, err := s.AssignSession(ctx, sess.ID, "agent-1", "Alex", 5); err != nil {
		t.Fatalf("assign: %v", err)
	}
	msg, err := svc.Send(ctx, sess.ID, agent(), "how can I help?")
	if err != nil {
		t.Fatalf("agent send: %v", err)
	}
	if msg.SenderType != chat.SenderAgent {
		t.Errorf("agent message sender = %s, want agent", msg.SenderType)
	}
}

func TestSend_ClosedSessionFrozen(t *testing.T) {
	svc, _, _ := testService()
	ctx := context.Background()

	sess, _ := svc.StartSession(ctx, proCustomer(), "")
	if err := svc.Close(ctx, sess.ID, proCustomer()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := svc.Send(ctx, sess.ID, proCustomer(), "still there?")
	if !errors.Is(err, chat.ErrSessionClosed) {
		t.Errorf("send to closed session should fail, got %v", err)
	}
}

func TestSend_EmptyBody(t *testing.T) {
	svc, _, _ := testService()
	sess, _ := svc.StartSession(context.Background(), proCustomer(), "")

	_, err := svc.Send(context.Background(), sess.ID, proCustomer(), "  \n ")
	if !errors.Is(err, chat.ErrInvalidInput) {
		t.Errorf("empty body should fail InvalidInput, got %v", err)
	}
}

func TestHistory_CursorAndEnvelope(t *testing.T) {
	svc, s, _ := testService()
	ctx := context.Background()

	sess, _ := svc.StartSession(ctx, proCustomer(), "")
	s.AssignSession(ctx, sess.ID, "agent-1", "Alex", 5)

	var ids []int64
	for _, body := range []string{"one", "two", "three"} {
		msg, err := svc.Send(ctx, sess.ID, agent(), body)
		if err != nil {
			t.Fatalf("send %q: %v", body, err)
		}
		ids = append(ids, msg.ID)
	}

	page, err := svc.History(ctx, sess.ID, proCustomer(), 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(page.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(page.Messages))
	}
	if page.Session.Status != chat.StatusActive || page.Session.AssignedAgent != "Alex" {
		t.Errorf("envelope missing status/agent: %+v", page.Session)
	}

	// Poll past the second message: only the third returns.
	page, _ = svc.History(ctx, sess.ID, proCustomer(), ids[1])
	if len(page.Messages) != 1 || page.Messages[0].Body != "three" {
		t.Errorf("cursor poll wrong: %+v", page.Messages)
	}
}

func TestHistory_CustomerCannotReadOthers(t *testing.T) {
	svc, _, _ := testService()
	ctx := context.Background()

	sess, _ := svc.StartSession(ctx, proCustomer(), "")

	other := chat.Identity{UserID: "cust-2", Role: chat.RoleCustomer, SubscriptionTier: "pro"}
	if _, err := svc.History(ctx, sess.ID, other, 0); !errors.Is(err, chat.ErrAccessDenied) {
		t.Errorf("other customer should be denied, got %v", err)
	}

	// Any agent may read, even before assignment (waiting-list triage).
	if _, err := svc.History(ctx, sess.ID, agent(), 0); err != nil {
		t.Errorf("agent read: %v", err)
	}
}

func TestList_AgentOnlyAndStatusFilter(t *testing.T) {
	svc, _, _ := testService()
	ctx := context.Background()

	svc.StartSession(ctx, proCustomer(), "")

	if _, err := svc.List(ctx, proCustomer(), ""); !errors.Is(err, chat.ErrAccessDenied) {
		t.Errorf("customer list should be denied, got %v", err)
	}

	list, err := svc.List(ctx, agent(), chat.StatusWaiting)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d sessions, want 1", len(list))
	}

	if _, err := svc.List(ctx, agent(), "bogus"); !errors.Is(err, chat.ErrInvalidInput) {
		t.Errorf("bogus status should fail InvalidInput, got %v", err)
	}
}

func TestClose_IdempotentForBothParties(t *testing.T) {
	svc, _, _ := testService()
	ctx := context.Background()

	sess, _ := svc.StartSession(ctx, proCustomer(), "")
	if err := svc.Close(ctx, sess.ID, agent()); err != nil {
		t.Fatalf("agent close: %v", err)
	}
	if err := svc.Close(ctx, sess.ID, proCustomer()); err != nil {
		t.Errorf("re-close should be a no-op, got %v", err)
	}

	if err := svc.Close(ctx, "never-existed", agent()); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("closing unknown session should NotFound, got %v", err)
	}
}
