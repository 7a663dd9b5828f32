package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/deskline/support-chat/internal/chat"
)

// AgentSource is the slice of the registry the prober needs. *Registry
// satisfies it; tests supply an in-memory fake.
type AgentSource interface {
	Agents(ctx context.Context) ([]string, error)
	Get(ctx context.Context, agentID string) (*Record, error)
}

// SessionCounts is the slice of the session store the prober needs: live
// per-agent active counts and the waiting backlog.
type SessionCounts interface {
	CountActiveByAgent(ctx context.Context, agentID string) (int, error)
	CountWaiting(ctx context.Context) (int, error)
}

// Probe answers the anonymous "is chat available" question.
type Probe struct {
	agents   AgentSource
	sessions SessionCounts
}

// NewProbe creates a probe over the given registry and session counts.
func NewProbe(agents AgentSource, sessions SessionCounts) *Probe {
	return &Probe{agents: agents, sessions: sessions}
}

// Status is the probe result. EstimatedWait is a coarse bucket, not a
// prediction.
type Status struct {
	Available     bool   `json:"available"`
	EstimatedWait string `json:"estimated_wait"`
}

// Check reports whether at least one agent has free capacity right now.
// Fails closed: if the registry or the store is unreachable the error is
// returned as-is, never a fabricated "available".
func (p *Probe) Check(ctx context.Context) (Status, error) {
	ids, err := p.agents.Agents(ctx)
	if err != nil {
		return Status{}, err
	}

	free := 0
	for _, id := range ids {
		rec, err := p.agents.Get(ctx, id)
		if errors.Is(err, chat.ErrNotFound) {
			continue // record expired since indexing
		}
		if err != nil {
			return Status{}, err
		}
		if !rec.Available {
			continue
		}
		active, err := p.sessions.CountActiveByAgent(ctx, id)
		if err != nil {
			return Status{}, err
		}
		if slots := rec.MaxConcurrent - active; slots > 0 {
			free += slots
		}
	}

	waiting, err := p.sessions.CountWaiting(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("availability: count waiting: %w", err)
	}

	return Status{
		Available:     free > 0,
		EstimatedWait: EstimateWait(waiting, free),
	}, nil
}

// Resolve returns an agent's advertised state combined with the derived
// live session count. Used by the matching gate and the agent's own
// availability view.
func (p *Probe) Resolve(ctx context.Context, agentID string) (chat.Availability, error) {
	rec, err := p.agents.Get(ctx, agentID)
	if err != nil {
		return chat.Availability{}, err
	}
	active, err := p.sessions.CountActiveByAgent(ctx, agentID)
	if err != nil {
		return chat.Availability{}, err
	}
	return chat.Availability{
		AgentID:        rec.AgentID,
		Available:      rec.Available,
		StatusMessage:  rec.StatusMessage,
		MaxConcurrent:  rec.MaxConcurrent,
		ActiveSessions: active,
	}, nil
}

// EstimateWait buckets the waiting backlog against free agent capacity.
func EstimateWait(waiting, freeCapacity int) string {
	switch {
	case freeCapacity > waiting:
		return chat.WaitImmediate
	case freeCapacity > 0:
		return chat.WaitShort
	default:
		return chat.WaitLong
	}
}
