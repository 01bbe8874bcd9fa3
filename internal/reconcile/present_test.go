package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kernel/remote-override/internal/bridge"
	"github.com/kernel/remote-override/internal/overrides"
	"github.com/kernel/remote-override/internal/settings"
	"github.com/stretchr/testify/assert"
)

func TestMatchCurrentApp(t *testing.T) {
	apps := []settings.AppDescriptor{
		{Key: "blank", Path: ""},
		{Key: "planner", Path: "/planning"},
		{Key: "ride-plan", Path: "/planning/ride-planner"},
	}

	app, ok := MatchCurrentApp(apps, "/planning/ride-planner/42")
	assert.True(t, ok)
	assert.Equal(t, "planner", app.Key, "first match in order wins")

	_, ok = MatchCurrentApp(apps, "/reports")
	assert.False(t, ok)
}

func snapshot(path, raw string) bridge.Snapshot {
	return bridge.Snapshot{
		Page:    bridge.PageInfo{Pathname: path},
		Raw:     raw,
		Present: raw != "",
		Entries: overrides.Decode(raw),
	}
}

func TestDerive(t *testing.T) {
	apps := settings.DefaultApps()

	tests := []struct {
		name   string
		snap   bridge.Snapshot
		badge  Badge
		banner bridge.Banner
	}{
		{
			name:  "no overrides",
			snap:  snapshot("/planning/ride-planner", ""),
			badge: Badge{Title: DefaultTitle},
		},
		{
			name:   "current app overridden",
			snap:   snapshot("/planning/ride-planner", "shift-manager@v2,ride-plan@main"),
			badge:  Badge{HasOverride: true, Text: "2", Title: "Override: ride-plan@main"},
			banner: bridge.Banner{CurrentApp: "ride-plan", CurrentValue: "main", Count: 2},
		},
		{
			name:   "current app without override",
			snap:   snapshot("/network-optimizer", "ride-plan@main"),
			badge:  Badge{HasOverride: true, Text: "1", Title: DefaultTitle},
			banner: bridge.Banner{Count: 1},
		},
		{
			name:   "unknown page still counts",
			snap:   snapshot("/elsewhere", "a@1,b@2,c@3"),
			badge:  Badge{HasOverride: true, Text: "3", Title: DefaultTitle},
			banner: bridge.Banner{Count: 3},
		},
		{
			name:   "malformed entries are not counted",
			snap:   snapshot("/elsewhere", "a@1,,broken,@x"),
			badge:  Badge{HasOverride: true, Text: "1", Title: DefaultTitle},
			banner: bridge.Banner{Count: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			badge, banner := Derive(tt.snap, apps)
			assert.Equal(t, tt.badge, badge)
			assert.Equal(t, tt.banner, banner)
		})
	}
}

func TestClampBadgeText(t *testing.T) {
	assert.Equal(t, "12", ClampBadgeText("12"))
	assert.Equal(t, "1234", ClampBadgeText("123456"))
}

type fakeBannerPage struct {
	mu       sync.Mutex
	calls    int
	readyAt  int
	err      error
	rendered []bridge.Banner
}

func (f *fakeBannerPage) ShowBanner(ctx context.Context, b bridge.Banner) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.readyAt == 0 || f.calls < f.readyAt {
		return false, nil
	}
	f.rendered = append(f.rendered, b)
	return true, nil
}

func (f *fakeBannerPage) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastInjector(page BannerPage) *BannerInjector {
	bi := NewBannerInjector(page, nil)
	bi.interval = time.Millisecond
	return bi
}

func TestBannerInjector_RetriesUntilAnchorAppears(t *testing.T) {
	page := &fakeBannerPage{readyAt: 4}
	ok := fastInjector(page).Inject(context.Background(), bridge.Banner{Count: 1})

	assert.True(t, ok)
	assert.Equal(t, 4, page.Calls())
	assert.Equal(t, []bridge.Banner{{Count: 1}}, page.rendered)
}

func TestBannerInjector_GivesUpAfterTenAttempts(t *testing.T) {
	page := &fakeBannerPage{}
	ok := fastInjector(page).Inject(context.Background(), bridge.Banner{})

	assert.False(t, ok)
	assert.Equal(t, 10, page.Calls())
}

func TestBannerInjector_ErrorsAreRetriedSilently(t *testing.T) {
	page := &fakeBannerPage{err: errors.New("navigating")}
	assert.False(t, fastInjector(page).Inject(context.Background(), bridge.Banner{}))
	assert.Equal(t, 10, page.Calls())
}

func TestBannerInjector_StopsOnCancel(t *testing.T) {
	page := &fakeBannerPage{}
	bi := NewBannerInjector(page, nil)
	bi.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() { done <- bi.Inject(ctx, bridge.Banner{}) }()

	assert.Eventually(t, func() bool { return page.Calls() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("injector did not stop after cancel")
	}
	assert.Equal(t, 1, page.Calls())
}
