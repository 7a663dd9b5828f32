// Package httpapi exposes the chat subsystem over a synchronous JSON API.
// All reads are served by polling; the server supports arbitrarily frequent
// polls because every read is a side-effect-free snapshot. A WebSocket
// events endpoint is offered as an optional push channel carrying the same
// at-least-once notify events.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deskline/support-chat/internal/availability"
	"github.com/deskline/support-chat/internal/chat"
	"github.com/deskline/support-chat/internal/matching"
	"github.com/deskline/support-chat/internal/metrics"
	"github.com/deskline/support-chat/internal/notify"
	"github.com/deskline/support-chat/internal/ratelimit"
	"github.com/deskline/support-chat/internal/relay"
)

// Pinger is anything that can answer a health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AvailabilityStore accepts agent availability updates. Satisfied by
// *availability.Registry.
type AvailabilityStore interface {
	Set(ctx context.Context, agentID, agentName string, available bool, statusMessage string, maxConcurrent int) error
}

// AvailabilityProbe answers capacity questions. Satisfied by
// *availability.Probe.
type AvailabilityProbe interface {
	Check(ctx context.Context) (availability.Status, error)
	Resolve(ctx context.Context, agentID string) (chat.Availability, error)
}

// Server wires the chat components into HTTP handlers.
type Server struct {
	relay    *relay.Service
	engine   *matching.Engine
	registry AvailabilityStore
	probe    AvailabilityProbe
	limiter  *ratelimit.Limiter // nil disables rate limiting
	broker   *notify.NATSBroker // nil disables the push endpoint
	health   []Pinger
}

// Config collects the server's collaborators. Relay, Engine, Registry, and
// Probe are required; the rest are optional.
type Config struct {
	Relay    *relay.Service
	Engine   *matching.Engine
	Registry AvailabilityStore
	Probe    AvailabilityProbe
	Limiter  *ratelimit.Limiter
	Broker   *notify.NATSBroker
	Health   []Pinger
}

// NewServer creates a Server from the config.
func NewServer(cfg Config) *Server {
	return &Server{
		relay:    cfg.Relay,
		engine:   cfg.Engine,
		registry: cfg.Registry,
		probe:    cfg.Probe,
		limiter:  cfg.Limiter,
		broker:   cfg.Broker,
		health:   cfg.Health,
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")

	// The probe is the one anonymous endpoint: pre-chat widgets call it
	// before the customer signs in.
	api.GET("/chat/available", s.handleChatAvailable)

	authed := api.Group("")
	authed.Use(RequireIdentity())
	{
		authed.POST("/chat/sessions", s.handleStartSession)
		authed.GET("/chat/sessions", s.handleListSessions)
		authed.GET("/chat/sessions/:id", s.handleGetSession)
		authed.POST("/chat/sessions/:id/assign", s.handleAssignSession)
		authed.POST("/chat/sessions/:id/close", s.handleCloseSession)
		authed.POST("/chat/sessions/:id/messages", s.handleSendMessage)
		authed.GET("/chat/sessions/:id/messages", s.handlePollMessages)

		authed.PUT("/agents/availability", s.handleSetAvailability)
		authed.GET("/agents/availability", s.handleGetAvailability)

		authed.GET("/chat/events", s.handleEvents)
	}

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*healthTimeout)
	defer cancel()
	for _, p := range s.health {
		if err := p.Ping(ctx); err != nil {
			// Fail closed and explicit: the UI degrades to its
			// "support unavailable" state.
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
