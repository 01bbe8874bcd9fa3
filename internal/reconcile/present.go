package reconcile

import (
	"strconv"
	"strings"

	"github.com/kernel/remote-override/internal/bridge"
	"github.com/kernel/remote-override/internal/settings"
	"github.com/samber/lo"
)

// DefaultTitle is the badge title when no current app override is known.
const DefaultTitle = "Remote Override Manager"

const maxBadgeText = 4

// Badge is the toolbar badge for a tab.
type Badge struct {
	HasOverride bool   `json:"hasOverride"`
	Text        string `json:"badgeText,omitempty"`
	Title       string `json:"title,omitempty"`
}

// ClampBadgeText cuts s to the width a badge can show.
func ClampBadgeText(s string) string {
	r := []rune(s)
	if len(r) > maxBadgeText {
		return string(r[:maxBadgeText])
	}
	return s
}

// MatchCurrentApp returns the first app, in the given order, whose path is a
// substring of pathname.
func MatchCurrentApp(apps []settings.AppDescriptor, pathname string) (settings.AppDescriptor, bool) {
	return lo.Find(apps, func(a settings.AppDescriptor) bool {
		return a.Path != "" && strings.Contains(pathname, a.Path)
	})
}

// Derive computes the badge and the page banner for snap. apps should be in
// display order. The banner names the current app only when it has an
// override on the page; the count always covers every entry.
func Derive(snap bridge.Snapshot, apps []settings.AppDescriptor) (Badge, bridge.Banner) {
	count := 0
	if snap.Entries != nil {
		count = snap.Entries.Len()
	}
	banner := bridge.Banner{Count: count}
	if count == 0 {
		return Badge{Title: DefaultTitle}, banner
	}

	badge := Badge{
		HasOverride: true,
		Text:        ClampBadgeText(strconv.Itoa(count)),
		Title:       DefaultTitle,
	}
	if app, ok := MatchCurrentApp(apps, snap.Page.Pathname); ok {
		if v, found := snap.Entries.Get(app.Key); found {
			banner.CurrentApp = app.Key
			banner.CurrentValue = v
			badge.Title = "Override: " + app.Key + "@" + v
		}
	}
	return badge, banner
}
