package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskline/support-chat/internal/chat"
)

// MemoryStore is an in-process Store. A single mutex serializes all
// mutations, which makes the assign compare-and-set and the capacity count
// one critical section. Reads copy out snapshots so callers never observe a
// record mid-mutation.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*chat.Session
	messages map[string][]*chat.Message
	seq      map[string]int64 // per-session message id counter
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*chat.Session),
		messages: make(map[string][]*chat.Message),
		seq:      make(map[string]int64),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, customer chat.Identity) (*chat.Session, error) {
	if err := chat.ValidateIdentity(customer); err != nil {
		return nil, err
	}

	s := &chat.Session{
		ID:               uuid.New().String(),
		CustomerID:       customer.UserID,
		CustomerName:     customer.DisplayName,
		SubscriptionTier: customer.SubscriptionTier,
		Status:           chat.StatusWaiting,
		CreatedAt:        time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	out := *s
	return &out, nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*chat.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("store: session %s: %w", sessionID, chat.ErrNotFound)
	}
	out := *s
	out.MessageCount = len(m.messages[sessionID])
	return &out, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, status string) ([]*chat.Session, error) {
	m.mu.RLock()
	result := make([]*chat.Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		if status != "" && s.Status != status {
			continue
		}
		out := *s
		out.MessageCount = len(m.messages[id])
		result = append(result, &out)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Status != b.Status {
			return sessionStatusRank(a.Status) < sessionStatusRank(b.Status)
		}
		switch a.Status {
		case chat.StatusActive:
			// Most recently engaged first.
			return assignedAtOf(a).After(assignedAtOf(b))
		default:
			// Longest-waiting customers first.
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
	return result, nil
}

func sessionStatusRank(status string) int {
	switch status {
	case chat.StatusWaiting:
		return 0
	case chat.StatusActive:
		return 1
	default:
		return 2
	}
}

func assignedAtOf(s *chat.Session) time.Time {
	if s.AssignedAt != nil {
		return *s.AssignedAt
	}
	return time.Time{}
}

func (m *MemoryStore) AssignSession(_ context.Context, sessionID, agentID, agentName string, maxConcurrent int) (*chat.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("store: session %s: %w", sessionID, chat.ErrNotFound)
	}
	if s.Status != chat.StatusWaiting {
		return nil, fmt.Errorf("store: session %s is %s: %w", sessionID, s.Status, chat.ErrConflict)
	}

	active := m.countActiveLocked(agentID)
	if active >= maxConcurrent {
		return nil, fmt.Errorf("store: agent %s has %d/%d active: %w", agentID, active, maxConcurrent, chat.ErrCapacityExceeded)
	}

	now := time.Now().UTC()
	s.Status = chat.StatusActive
	s.AssignedAgentID = agentID
	s.AssignedAgent = agentName
	s.AssignedAt = &now

	out := *s
	out.MessageCount = len(m.messages[sessionID])
	return &out, nil
}

func (m *MemoryStore) CloseSession(_ context.Context, sessionID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("store: session %s: %w", sessionID, chat.ErrNotFound)
	}
	if s.Status == chat.StatusClosed {
		return nil // idempotent
	}

	now := time.Now().UTC()
	s.Status = chat.StatusClosed
	s.ClosedAt = &now
	return nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, sessionID, senderType, senderName, body string) (*chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("store: session %s: %w", sessionID, chat.ErrNotFound)
	}
	if s.Status == chat.StatusClosed {
		return nil, fmt.Errorf("store: session %s: %w", sessionID, chat.ErrSessionClosed)
	}

	m.seq[sessionID]++
	msg := &chat.Message{
		ID:         m.seq[sessionID],
		SessionID:  sessionID,
		SenderType: senderType,
		SenderName: senderName,
		Body:       body,
		Timestamp:  time.Now().UTC(),
	}
	m.messages[sessionID] = append(m.messages[sessionID], msg)

	out := *msg
	return &out, nil
}

func (m *MemoryStore) ListMessages(_ context.Context, sessionID string, since int64) ([]*chat.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("store: session %s: %w", sessionID, chat.ErrNotFound)
	}

	msgs := m.messages[sessionID]
	// Messages are appended in id order, so find the cursor and copy the
	// tail.
	start := sort.Search(len(msgs), func(i int) bool { return msgs[i].ID > since })
	result := make([]*chat.Message, 0, len(msgs)-start)
	for _, msg := range msgs[start:] {
		out := *msg
		result = append(result, &out)
	}
	return result, nil
}

func (m *MemoryStore) CountActiveByAgent(_ context.Context, agentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countActiveLocked(agentID), nil
}

func (m *MemoryStore) countActiveLocked(agentID string) int {
	count := 0
	for _, s := range m.sessions {
		if s.Status == chat.StatusActive && s.AssignedAgentID == agentID {
			count++
		}
	}
	return count
}

func (m *MemoryStore) CountWaiting(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range m.sessions {
		if s.Status == chat.StatusWaiting {
			count++
		}
	}
	return count, nil
}
