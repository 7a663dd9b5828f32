package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/deskline/support-chat/internal/chat"
	"github.com/deskline/support-chat/internal/ratelimit"
)

type startSessionRequest struct {
	Message string `json:"message"`
}

type startSessionResponse struct {
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	EstimatedWait string `json:"estimated_wait"`
}

func (s *Server) handleStartSession(c *gin.Context) {
	caller := callerIdentity(c)

	if !s.allow(c, caller.UserID, ratelimit.RuleStartSession) {
		return
	}

	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		respondError(c, chat.ErrInvalidInput)
		return
	}

	sess, err := s.relay.StartSession(c.Request.Context(), caller, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}

	wait := chat.WaitLong
	if status, err := s.probe.Check(c.Request.Context()); err == nil {
		wait = status.EstimatedWait
	}

	c.JSON(http.StatusCreated, startSessionResponse{
		SessionID:     sess.ID,
		Status:        sess.Status,
		EstimatedWait: wait,
	})
}

func (s *Server) handleListSessions(c *gin.Context) {
	caller := callerIdentity(c)

	list, err := s.relay.List(c.Request.Context(), caller, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

func (s *Server) handleGetSession(c *gin.Context) {
	caller := callerIdentity(c)

	sess, err := s.relay.Get(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleAssignSession(c *gin.Context) {
	caller := callerIdentity(c)
	if !caller.IsAgent() {
		respondError(c, chat.ErrAccessDenied)
		return
	}

	sess, err := s.engine.Assign(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleCloseSession(c *gin.Context) {
	caller := callerIdentity(c)

	if err := s.relay.Close(c.Request.Context(), c.Param("id"), caller); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	caller := callerIdentity(c)

	if !s.allow(c, caller.UserID, ratelimit.RuleMessage) {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, chat.ErrInvalidInput)
		return
	}

	msg, err := s.relay.Send(c.Request.Context(), c.Param("id"), caller, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

type pollMessagesResponse struct {
	SessionID     string      `json:"session_id"`
	Status        string      `json:"status"`
	AssignedAgent string      `json:"assigned_agent_name,omitempty"`
	Messages      interface{} `json:"messages"`
}

func (s *Server) handlePollMessages(c *gin.Context) {
	caller := callerIdentity(c)

	var since int64
	if raw := c.Query("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			respondError(c, chat.ErrInvalidInput)
			return
		}
		since = parsed
	}

	page, err := s.relay.History(c.Request.Context(), c.Param("id"), caller, since)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, pollMessagesResponse{
		SessionID:     page.Session.ID,
		Status:        page.Session.Status,
		AssignedAgent: page.Session.AssignedAgent,
		Messages:      page.Messages,
	})
}

type setAvailabilityRequest struct {
	Available     bool   `json:"is_available"`
	StatusMessage string `json:"status_message"`
	MaxConcurrent int    `json:"max_concurrent_sessions"`
}

func (s *Server) handleSetAvailability(c *gin.Context) {
	caller := callerIdentity(c)
	if !caller.IsAgent() {
		respondError(c, chat.ErrAccessDenied)
		return
	}

	var req setAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, chat.ErrInvalidInput)
		return
	}

	err := s.registry.Set(c.Request.Context(), caller.UserID, caller.DisplayName,
		req.Available, req.StatusMessage, req.MaxConcurrent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (s *Server) handleGetAvailability(c *gin.Context) {
	caller := callerIdentity(c)
	if !caller.IsAgent() {
		respondError(c, chat.ErrAccessDenied)
		return
	}

	avail, err := s.probe.Resolve(c.Request.Context(), caller.UserID)
	if errors.Is(err, chat.ErrNotFound) {
		// Never advertised: report the default offline state instead of
		// erroring, so agent dashboards render something sensible.
		c.JSON(http.StatusOK, chat.Availability{AgentID: caller.UserID})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, avail)
}

func (s *Server) handleChatAvailable(c *gin.Context) {
	status, err := s.probe.Check(c.Request.Context())
	if err != nil {
		// Fail closed: an unreachable registry or store reads as
		// "support unavailable", never as a fabricated yes.
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// allow applies a rate limit rule when a limiter is configured. It writes
// the 429 response itself and reports whether the request may proceed.
func (s *Server) allow(c *gin.Context, identifier string, rule ratelimit.Rule) bool {
	if s.limiter == nil {
		return true
	}
	ok, _ := s.limiter.Allow(c.Request.Context(), identifier, rule)
	if !ok {
		respondRateLimited(c)
	}
	return ok
}
