package policy

import (
	"testing"

	"github.com/deskline/support-chat/internal/chat"
)

func TestCheckAccess_DeniedTier(t *testing.T) {
	p := New([]string{"free"})

	d := p.CheckAccess(chat.Identity{UserID: "u1", SubscriptionTier: "free"})
	if d.Allowed {
		t.Error("free tier should be denied")
	}
	if d.Reason == "" {
		t.Error("denial should carry a reason")
	}
}

func TestCheckAccess_AllowedTier(t *testing.T) {
	p := New([]string{"free"})

	for _, tier := range []string{"pro", "enterprise", "PRO"} {
		if d := p.CheckAccess(chat.Identity{UserID: "u1", SubscriptionTier: tier}); !d.Allowed {
			t.Errorf("tier %q should be allowed: %+v", tier, d)
		}
	}
}

func TestCheckAccess_CaseInsensitive(t *testing.T) {
	p := New([]string{"Free", " TRIAL "})

	for _, tier := range []string{"free", "FREE", "trial"} {
		if d := p.CheckAccess(chat.Identity{SubscriptionTier: tier}); d.Allowed {
			t.Errorf("tier %q should be denied", tier)
		}
	}
}

func TestCheckAccess_EmptyTier(t *testing.T) {
	p := New([]string{"free"})
	if d := p.CheckAccess(chat.Identity{UserID: "u1"}); d.Allowed {
		t.Error("empty tier should be denied when any tier is denied")
	}

	open := New(nil)
	if d := open.CheckAccess(chat.Identity{UserID: "u1"}); !d.Allowed {
		t.Error("empty tier should pass when nothing is denied")
	}
}
