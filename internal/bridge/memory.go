package bridge

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
)

// MemoryBrowser is an in-process stand-in for a browser. It backs local
// development when no Chrome is reachable and doubles as the test browser.
type MemoryBrowser struct {
	mu     sync.Mutex
	tabs   []*MemoryTab
	active *MemoryTab
}

// NewMemoryBrowser returns a browser with no tabs.
func NewMemoryBrowser() *MemoryBrowser {
	return &MemoryBrowser{}
}

// Open creates a tab at rawURL and makes it active.
func (m *MemoryBrowser) Open(rawURL string) *MemoryTab {
	tab := &MemoryTab{
		id:      uuid.NewString(),
		storage: make(map[string]string),
		anchor:  true,
	}
	tab.Navigate(rawURL)

	m.mu.Lock()
	m.tabs = append(m.tabs, tab)
	m.active = tab
	m.mu.Unlock()
	return tab
}

// Activate makes tab the active tab. A nil tab leaves the browser without one.
func (m *MemoryBrowser) Activate(tab *MemoryTab) {
	m.mu.Lock()
	m.active = tab
	m.mu.Unlock()
}

// ActiveTab implements Browser.
func (m *MemoryBrowser) ActiveTab(ctx context.Context) (Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoActiveTab
	}
	return m.active, nil
}

// MemoryTab is a tab of a MemoryBrowser.
type MemoryTab struct {
	mu      sync.Mutex
	id      string
	page    PageInfo
	storage map[string]string
	anchor  bool
	banner  *Banner
	reloads int
	fail    error
}

// Navigate changes the tab location.
func (t *MemoryTab) Navigate(rawURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.page = PageInfo{Href: rawURL}
	if u, err := url.Parse(rawURL); err == nil {
		t.page.Pathname = u.Path
		t.page.Hostname = u.Hostname()
	}
}

// SetAnchor controls whether the banner header anchor exists.
func (t *MemoryTab) SetAnchor(present bool) {
	t.mu.Lock()
	t.anchor = present
	t.mu.Unlock()
}

// FailWith makes every page function fail with err until cleared with nil.
func (t *MemoryTab) FailWith(err error) {
	t.mu.Lock()
	t.fail = err
	t.mu.Unlock()
}

// Item returns a raw storage value.
func (t *MemoryTab) Item(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.storage[key]
	return v, ok
}

// Banner returns the banner currently rendered, if any.
func (t *MemoryTab) Banner() (Banner, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.banner == nil {
		return Banner{}, false
	}
	return *t.banner, true
}

// Reloads returns how many times the tab was reloaded.
func (t *MemoryTab) Reloads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reloads
}

func (t *MemoryTab) ID() string { return t.id }

func (t *MemoryTab) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.fail != nil {
		return fmt.Errorf("page function threw: %w", t.fail)
	}
	return nil
}

func (t *MemoryTab) Location(ctx context.Context) (PageInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(ctx); err != nil {
		return PageInfo{}, err
	}
	return t.page, nil
}

func (t *MemoryTab) GetItem(ctx context.Context, key string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(ctx); err != nil {
		return "", false, err
	}
	v, ok := t.storage[key]
	return v, ok, nil
}

func (t *MemoryTab) SetItems(ctx context.Context, items map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(ctx); err != nil {
		return err
	}
	for k, v := range items {
		t.storage[k] = v
	}
	return nil
}

func (t *MemoryTab) RemoveItems(ctx context.Context, keys ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(ctx); err != nil {
		return err
	}
	for _, k := range keys {
		delete(t.storage, k)
	}
	return nil
}

func (t *MemoryTab) ShowBanner(ctx context.Context, b Banner) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(ctx); err != nil {
		return false, err
	}
	if !t.anchor {
		return false, nil
	}
	t.banner = &b
	return true, nil
}

func (t *MemoryTab) Reload(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(ctx); err != nil {
		return err
	}
	t.reloads++
	t.banner = nil
	return nil
}
