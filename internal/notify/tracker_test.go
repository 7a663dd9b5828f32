package notify

import (
	"sync"
	"testing"
)

func TestObserveWaiting_NewSessions(t *testing.T) {
	tr := NewTracker()

	events := tr.ObserveWaiting([]string{"s1", "s2"})
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for _, e := range events {
		if e.Type != TypeWaitingSession {
			t.Errorf("event type = %s, want %s", e.Type, TypeWaitingSession)
		}
	}
}

func TestObserveWaiting_RepeatedPollIsSilent(t *testing.T) {
	tr := NewTracker()

	tr.ObserveWaiting([]string{"s1", "s2"})
	if events := tr.ObserveWaiting([]string{"s1", "s2"}); len(events) != 0 {
		t.Errorf("identical snapshot produced %d events, want 0", len(events))
	}

	// One new arrival among known ones announces only itself.
	events := tr.ObserveWaiting([]string{"s1", "s2", "s3"})
	if len(events) != 1 || events[0].SessionID != "s3" {
		t.Errorf("got %+v, want single event for s3", events)
	}
}

func TestObserveWaiting_DepartedSessionForgotten(t *testing.T) {
	tr := NewTracker()

	tr.ObserveWaiting([]string{"s1"})
	tr.ObserveWaiting([]string{}) // s1 assigned or closed

	// Re-entering waiting re-announces; consumers tolerate the duplicate.
	if events := tr.ObserveWaiting([]string{"s1"}); len(events) != 1 {
		t.Errorf("re-entered session should announce again, got %d events", len(events))
	}
}

func TestObserveMessages_AdvancingCursor(t *testing.T) {
	tr := NewTracker()

	if events := tr.ObserveMessages("s1", 3); len(events) != 1 || events[0].MessageID != 3 {
		t.Fatalf("first observation should announce, got %+v", events)
	}
	if events := tr.ObserveMessages("s1", 3); len(events) != 0 {
		t.Errorf("same snapshot should be silent, got %+v", events)
	}
	if events := tr.ObserveMessages("s1", 7); len(events) != 1 || events[0].MessageID != 7 {
		t.Errorf("advanced cursor should announce, got %+v", events)
	}
}

func TestObserveMessages_NeverMovesBackwards(t *testing.T) {
	tr := NewTracker()

	tr.ObserveMessages("s1", 5)
	if events := tr.ObserveMessages("s1", 2); len(events) != 0 {
		t.Errorf("stale snapshot should be silent, got %+v", events)
	}
	// The cursor stayed at 5.
	if events := tr.ObserveMessages("s1", 5); len(events) != 0 {
		t.Errorf("cursor regressed: %+v", events)
	}
}

func TestObserveMessages_ZeroIDIgnored(t *testing.T) {
	tr := NewTracker()
	if events := tr.ObserveMessages("s1", 0); len(events) != 0 {
		t.Errorf("empty session snapshot should be silent, got %+v", events)
	}
}

func TestForget(t *testing.T) {
	tr := NewTracker()
	tr.ObserveMessages("s1", 9)
	tr.Forget("s1")

	if events := tr.ObserveMessages("s1", 9); len(events) != 1 {
		t.Errorf("forgotten session should announce afresh, got %d events", len(events))
	}
}

func TestTracker_ConcurrentObservers(t *testing.T) {
	tr := NewTracker()

	// Many pollers hammering the same tracker must never panic or lose
	// the monotonic cursor property.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := int64(1); id <= 100; id++ {
				tr.ObserveMessages("s1", id)
				tr.ObserveWaiting([]string{"s1", "s2"})
			}
		}()
	}
	wg.Wait()

	if events := tr.ObserveMessages("s1", 100); len(events) != 0 {
		t.Errorf("cursor should already be at 100, got %+v", events)
	}
}
