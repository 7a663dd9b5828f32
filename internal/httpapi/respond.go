package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deskline/support-chat/internal/chat"
)

// Machine-readable error codes surfaced to clients. Conflict and
// capacity_exceeded share a 409 status but stay distinct codes so an agent
// UI can react differently (re-list vs back off).
const (
	codeInvalidInput     = "invalid_input"
	codeAccessDenied     = "access_denied"
	codeNotFound         = "not_found"
	codeConflict         = "conflict"
	codeCapacityExceeded = "capacity_exceeded"
	codeSessionClosed    = "session_closed"
	codeRateLimited      = "rate_limited"
	codeInternal         = "internal_error"
)

// respondError maps a taxonomy error onto an HTTP status and serializes it.
// Unclassified errors are logged and hidden behind a generic 500: the
// contract is to fail explicit, never to leak store internals.
func respondError(c *gin.Context, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		status, code = http.StatusBadRequest, codeInvalidInput
	case errors.Is(err, chat.ErrAccessDenied):
		status, code = http.StatusForbidden, codeAccessDenied
	case errors.Is(err, chat.ErrNotFound):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, chat.ErrConflict):
		status, code = http.StatusConflict, codeConflict
	case errors.Is(err, chat.ErrCapacityExceeded):
		status, code = http.StatusConflict, codeCapacityExceeded
	case errors.Is(err, chat.ErrSessionClosed):
		status, code = http.StatusGone, codeSessionClosed
	default:
		log.Printf("[httpapi] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": codeInternal, "message": "internal error"})
		return
	}

	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func respondRateLimited(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":   codeRateLimited,
		"message": "too many requests, slow down",
	})
}
