package dispatch

import (
	"github.com/samber/lo"

	"github.com/tagclaw/tagclaw/internal/settings"
)

// Access is the authorization derived for one sender from a settings
// snapshot. It is recomputed for every message because settings can
// change between messages.
type Access struct {
	IsOwner bool
	IsAdmin bool
}

// IsAuthorized reports whether the sender may run privileged commands.
func (a Access) IsAuthorized() bool {
	return a.IsOwner || a.IsAdmin
}

// AccessFor derives the access of identity from a settings snapshot.
func AccessFor(identity string, snap settings.Settings) Access {
	return Access{
		IsOwner: snap.Owner != "" && identity == snap.Owner,
		IsAdmin: lo.Contains(snap.Admins, identity),
	}
}
