package dispatch

import (
	"testing"

	"github.com/tagclaw/tagclaw/internal/settings"
)

func TestAccessFor(t *testing.T) {
	snap := settings.Settings{
		Owner:  "owner@s.whatsapp.net",
		Admins: []string{"admin@s.whatsapp.net"},
	}

	tests := []struct {
		name       string
		identity   string
		owner      bool
		admin      bool
		authorized bool
	}{
		{"owner", "owner@s.whatsapp.net", true, false, true},
		{"admin", "admin@s.whatsapp.net", false, true, true},
		{"stranger", "someone@s.whatsapp.net", false, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := AccessFor(tc.identity, snap)
			if a.IsOwner != tc.owner || a.IsAdmin != tc.admin || a.IsAuthorized() != tc.authorized {
				t.Errorf("AccessFor(%q) = %+v (authorized=%v); want owner=%v admin=%v authorized=%v",
					tc.identity, a, a.IsAuthorized(), tc.owner, tc.admin, tc.authorized)
			}
		})
	}
}

// With no owner claimed, an empty sender identity must not be treated
// as the owner.
func TestAccessForNoOwner(t *testing.T) {
	a := AccessFor("", settings.Settings{})
	if a.IsOwner || a.IsAuthorized() {
		t.Errorf("empty identity granted access against empty settings: %+v", a)
	}
}
