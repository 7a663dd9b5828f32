// Package availability tracks which support agents are online and how much
// chat capacity they advertise. Advertised state lives in Redis hashes keyed
// per agent; the live session count is never stored here — it is always
// derived from the session store, so the two cannot drift.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deskline/support-chat/internal/chat"
)

const (
	// AgentPrefix is the Redis key prefix for agent availability hashes.
	AgentPrefix = "agent:avail:"

	// AgentIndexKey is the Redis set of all agent ids that ever
	// advertised availability.
	AgentIndexKey = "agent:avail:index"

	// AgentTTL expires availability records for agents that stop
	// refreshing their state. An expired record reads as unavailable.
	AgentTTL = 24 * time.Hour
)

// Record is an agent's advertised availability as stored in Redis.
type Record struct {
	AgentID       string `redis:"agent_id"`
	AgentName     string `redis:"agent_name"`
	Available     bool   `redis:"available"`
	StatusMessage string `redis:"status_message"`
	MaxConcurrent int    `redis:"max_concurrent"`
	UpdatedAt     int64  `redis:"updated_at"` // unix timestamp
}

// Registry stores agent availability in Redis.
type Registry struct {
	client *redis.Client
}

// NewRegistry creates a registry backed by the given Redis client.
func NewRegistry(client *redis.Client) *Registry {
	return &Registry{client: client}
}

// Set overwrites an agent's advertised state. The only validation is
// maxConcurrent >= 0; everything else is the agent's to advertise.
func (r *Registry) Set(ctx context.Context, agentID, agentName string, available bool, statusMessage string, maxConcurrent int) error {
	if agentID == "" {
		return fmt.Errorf("%w: empty agent id", chat.ErrInvalidInput)
	}
	if maxConcurrent < 0 {
		return fmt.Errorf("%w: negative max_concurrent_sessions", chat.ErrInvalidInput)
	}

	key := AgentPrefix + agentID
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"agent_id":       agentID,
		"agent_name":     agentName,
		"available":      available,
		"status_message": statusMessage,
		"max_concurrent": maxConcurrent,
		"updated_at":     time.Now().Unix(),
	})
	pipe.Expire(ctx, key, AgentTTL)
	pipe.SAdd(ctx, AgentIndexKey, agentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("availability: set %s: %w", agentID, err)
	}
	return nil
}

// Get retrieves an agent's advertised state. Returns chat.ErrNotFound for
// an agent that never advertised (or whose record expired).
func (r *Registry) Get(ctx context.Context, agentID string) (*Record, error) {
	key := AgentPrefix + agentID
	var rec Record
	if err := r.client.HGetAll(ctx, key).Scan(&rec); err != nil {
		return nil, fmt.Errorf("availability: get %s: %w", agentID, err)
	}
	if rec.AgentID == "" {
		return nil, fmt.Errorf("availability: agent %s: %w", agentID, chat.ErrNotFound)
	}
	return &rec, nil
}

// Agents returns all known agent ids.
func (r *Registry) Agents(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, AgentIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("availability: list agents: %w", err)
	}
	return ids, nil
}

// Ping checks Redis connectivity for health probes.
func (r *Registry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
