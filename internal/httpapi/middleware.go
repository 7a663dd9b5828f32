package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deskline/support-chat/internal/chat"
)

const identityKey = "caller_identity"

const healthTimeout = 1 * time.Second

// Identity headers set by the upstream auth layer. The gateway strips these
// from inbound traffic and re-adds them after verifying the caller, so
// their presence is proof of authentication.
const (
	HeaderUserID = "X-User-ID"
	HeaderName   = "X-User-Name"
	HeaderRole   = "X-User-Role"
	HeaderTier   = "X-Subscription-Tier"
)

// RequireIdentity extracts the verified caller identity from the trusted
// headers and rejects requests without one.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := chat.Identity{
			UserID:           strings.TrimSpace(c.GetHeader(HeaderUserID)),
			DisplayName:      c.GetHeader(HeaderName),
			Role:             strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderRole))),
			SubscriptionTier: c.GetHeader(HeaderTier),
		}
		if id.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "missing caller identity",
			})
			return
		}
		if id.Role == "" {
			id.Role = chat.RoleCustomer
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// callerIdentity returns the identity attached by RequireIdentity.
func callerIdentity(c *gin.Context) chat.Identity {
	return c.MustGet(identityKey).(chat.Identity)
}
