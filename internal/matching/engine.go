// Package matching assigns waiting sessions to agents. Assignment is
// request-driven: an agent picks a session from the waiting list and calls
// Assign. The engine gates on the agent's advertised availability, then the
// session store performs the waiting→active compare-and-set and the capacity
// count in a single critical section, so two agents racing for the same
// session always produce exactly one winner.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/deskline/support-chat/internal/chat"
	"github.com/deskline/support-chat/internal/metrics"
	"github.com/deskline/support-chat/internal/store"
)

// AvailabilityResolver yields an agent's advertised state with the derived
// live session count. *availability.Probe satisfies it.
type AvailabilityResolver interface {
	Resolve(ctx context.Context, agentID string) (chat.Availability, error)
}

// Engine binds agents to waiting sessions.
type Engine struct {
	sessions store.Store
	avail    AvailabilityResolver
}

// NewEngine creates a matching engine over the given store and resolver.
func NewEngine(sessions store.Store, avail AvailabilityResolver) *Engine {
	return &Engine{sessions: sessions, avail: avail}
}

// Assign transitions a waiting session to active and binds the agent.
//
// Failure modes, all fail-fast:
//   - chat.ErrNotFound: unknown session
//   - chat.ErrConflict: session is no longer waiting (lost the race or
//     closed) — the caller should re-list and pick another
//   - chat.ErrCapacityExceeded: agent offline, never advertised, or at
//     max_concurrent_sessions
//
// There is no automatic reassignment: once active, the session stays bound
// to the agent until someone closes it, even if the agent goes silent.
func (e *Engine) Assign(ctx context.Context, sessionID string, agent chat.Identity) (*chat.Session, error) {
	start := time.Now()

	avail, err := e.avail.Resolve(ctx, agent.UserID)
	if errors.Is(err, chat.ErrNotFound) {
		// Never advertised availability: not accepting chats.
		metrics.AssignmentsTotal.WithLabelValues("capacity").Inc()
		return nil, fmt.Errorf("matching: agent %s not accepting chats: %w", agent.UserID, chat.ErrCapacityExceeded)
	}
	if err != nil {
		metrics.AssignmentsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("matching: resolve agent %s: %w", agent.UserID, err)
	}
	if !avail.Available {
		metrics.AssignmentsTotal.WithLabelValues("capacity").Inc()
		return nil, fmt.Errorf("matching: agent %s unavailable: %w", agent.UserID, chat.ErrCapacityExceeded)
	}

	// The advertised cap is re-checked against the live active count
	// inside the store's assignment transaction; the Resolve above is
	// only the cheap gate.
	sess, err := e.sessions.AssignSession(ctx, sessionID, agent.UserID, agent.DisplayName, avail.MaxConcurrent)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrConflict):
			metrics.AssignmentsTotal.WithLabelValues("conflict").Inc()
		case errors.Is(err, chat.ErrCapacityExceeded):
			metrics.AssignmentsTotal.WithLabelValues("capacity").Inc()
		default:
			metrics.AssignmentsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.AssignmentsTotal.WithLabelValues("assigned").Inc()
	metrics.AssignmentDuration.Observe(time.Since(start).Seconds())
	log.Printf("[matching] session=%s assigned to agent=%s (%d/%d active)",
		sess.ID, agent.UserID, avail.ActiveSessions+1, avail.MaxConcurrent)
	return sess, nil
}
