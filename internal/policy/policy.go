// Package policy decides whether a customer identity is entitled to start a
// support chat. Entitlement is derived from the subscription tier and is
// side-effect free; the decision is made once per request and never retried.
package policy

import (
	"strings"

	"github.com/deskline/support-chat/internal/chat"
)

// DefaultDeniedTiers is used when no explicit tier list is configured.
var DefaultDeniedTiers = []string{"free"}

// Decision is the result of an access check. Reason is set only on denial
// and is safe to surface to the caller verbatim.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Policy gates chat access by subscription tier.
type Policy struct {
	denied map[string]bool
}

// New creates a policy denying the given tiers. Tier comparison is
// case-insensitive.
func New(deniedTiers []string) *Policy {
	denied := make(map[string]bool, len(deniedTiers))
	for _, t := range deniedTiers {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			denied[t] = true
		}
	}
	return &Policy{denied: denied}
}

// CheckAccess reports whether the identity may start a chat session. An
// empty tier is treated as the lowest tier and denied whenever any tier is.
func (p *Policy) CheckAccess(id chat.Identity) Decision {
	tier := strings.ToLower(strings.TrimSpace(id.SubscriptionTier))
	if tier == "" && len(p.denied) > 0 {
		return Decision{Allowed: false, Reason: "subscription tier does not include chat support"}
	}
	if p.denied[tier] {
		return Decision{Allowed: false, Reason: "subscription tier does not include chat support"}
	}
	return Decision{Allowed: true}
}
