package notify

import "sync"

// Tracker is the polling degradation of the fan-out: a consumer feeds it
// the snapshots it polls (waiting-session list, latest message id per
// session) and gets back the same events the push stream would have
// delivered. Feeding the same snapshot twice yields nothing, so repeated
// idempotent polls are safe; a missed poll yields one event per newly
// observed item on the next poll, preserving at-least-once semantics.
//
// Tracker is consumer-side: poll-only clients of the HTTP API (agent
// dashboards without a NATS connection) embed one to drive notifications.
// The server never constructs a Tracker itself.
type Tracker struct {
	mu          sync.Mutex
	seenWaiting map[string]bool  // waiting session ids already announced
	lastMessage map[string]int64 // session id -> highest announced message id
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		seenWaiting: make(map[string]bool),
		lastMessage: make(map[string]int64),
	}
}

// ObserveWaiting diffs a polled snapshot of waiting session ids against the
// previous one and returns a waiting_session event per session not seen
// before. Sessions that left the waiting list are forgotten, so a session
// that somehow re-enters waiting announces again (duplicate delivery is
// within contract).
func (t *Tracker) ObserveWaiting(sessionIDs []string) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := make(map[string]bool, len(sessionIDs))
	var events []Event
	for _, id := range sessionIDs {
		current[id] = true
		if !t.seenWaiting[id] {
			events = append(events, NewWaitingSession(id))
		}
	}
	t.seenWaiting = current
	return events
}

// ObserveMessages diffs a session's latest polled message id against the
// previous one and returns a new_message event if it advanced. The cursor
// never moves backwards, so replaying an older snapshot yields nothing.
func (t *Tracker) ObserveMessages(sessionID string, latestID int64) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	if latestID <= t.lastMessage[sessionID] {
		return nil
	}
	t.lastMessage[sessionID] = latestID
	return []Event{NewMessage(sessionID, latestID)}
}

// Forget drops all state for a session, typically after it closes.
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seenWaiting, sessionID)
	delete(t.lastMessage, sessionID)
}
