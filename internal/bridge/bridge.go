// Package bridge runs small functions inside the active browser tab to read
// and rewrite the remote override list kept in the page's localStorage.
//
// Every operation resolves to a value. Failures (no active tab, a script the
// host refused or that threw) are carried in the result's Err field so
// callers can tell "unknown" apart from "empty".
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kernel/remote-override/internal/overrides"
)

var (
	// ErrNoActiveTab is returned when no active tab can be resolved.
	ErrNoActiveTab = errors.New("no active tab found")

	// ErrInjectionFailed is returned when the host refused to run a page
	// function or the function threw.
	ErrInjectionFailed = errors.New("script injection failed")
)

// PageInfo describes the location of a tab.
type PageInfo struct {
	Href     string `json:"href"`
	Pathname string `json:"pathname"`
	Hostname string `json:"hostname"`
}

// Banner is the notice rendered into the page header by ShowBanner.
type Banner struct {
	CurrentApp   string `json:"currentApp"`
	CurrentValue string `json:"currentValue"`
	Count        int    `json:"count"`
}

// Browser resolves the tab the user is currently looking at.
type Browser interface {
	ActiveTab(ctx context.Context) (Tab, error)
}

// Tab runs page functions in the context of one tab.
type Tab interface {
	ID() string
	Location(ctx context.Context) (PageInfo, error)
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItems(ctx context.Context, items map[string]string) error
	RemoveItems(ctx context.Context, keys ...string) error
	// ShowBanner replaces any previous banner. It reports false when the
	// header anchor is not in the DOM yet.
	ShowBanner(ctx context.Context, b Banner) (bool, error)
	Reload(ctx context.Context) error
}

// Lookup is the result of reading one app's override from the page.
type Lookup struct {
	App   string
	Value string
	Found bool
	Err   error
}

// Unknown reports whether the read failed and the page state is not known.
func (l Lookup) Unknown() bool { return l.Err != nil }

// Mutation is the result of a write to the page.
type Mutation struct {
	// Encoded is the override list written back to the page. Empty after a
	// remove-all.
	Encoded string
	Err     error
}

// OK reports whether the write reached the page.
func (m Mutation) OK() bool { return m.Err == nil }

// Snapshot is the full decoded override list of the active tab.
type Snapshot struct {
	Page    PageInfo
	Raw     string
	Present bool
	Entries *overrides.Entries
	Err     error
}

// Bridge performs override operations against the active tab.
type Bridge struct {
	browser       Browser
	logger        *slog.Logger
	autorefresh   func() bool
	reloadTimeout time.Duration
	pending       sync.WaitGroup
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(b *Bridge) { b.logger = l } }

// WithAutorefresh sets the function consulted after every successful write.
// When it returns true the active tab is reloaded.
func WithAutorefresh(fn func() bool) Option { return func(b *Bridge) { b.autorefresh = fn } }

// WithReloadTimeout bounds the background reload. Default: 15s.
func WithReloadTimeout(d time.Duration) Option { return func(b *Bridge) { b.reloadTimeout = d } }

// New creates a Bridge on top of browser.
func New(browser Browser, opts ...Option) *Bridge {
	b := &Bridge{
		browser:       browser,
		reloadTimeout: 15 * time.Second,
	}
	for _, o := range opts {
		o(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// ReadOverride returns the value stored for appKey in the active tab.
func (b *Bridge) ReadOverride(ctx context.Context, appKey string) Lookup {
	tab, err := b.browser.ActiveTab(ctx)
	if err != nil {
		return Lookup{App: appKey, Err: classify("read", err)}
	}
	raw, _, err := tab.GetItem(ctx, overrides.StorageKey)
	if err != nil {
		return Lookup{App: appKey, Err: classify("read", err)}
	}
	v, ok := overrides.Decode(raw).Get(appKey)
	return Lookup{App: appKey, Value: v, Found: ok}
}

// ReadAll returns the decoded override list and the location of the active
// tab.
func (b *Bridge) ReadAll(ctx context.Context) Snapshot {
	tab, err := b.browser.ActiveTab(ctx)
	if err != nil {
		return Snapshot{Entries: overrides.NewEntries(), Err: classify("read", err)}
	}
	page, err := tab.Location(ctx)
	if err != nil {
		return Snapshot{Entries: overrides.NewEntries(), Err: classify("read", err)}
	}
	raw, present, err := tab.GetItem(ctx, overrides.StorageKey)
	if err != nil {
		return Snapshot{Page: page, Entries: overrides.NewEntries(), Err: classify("read", err)}
	}
	return Snapshot{Page: page, Raw: raw, Present: present, Entries: overrides.Decode(raw)}
}

// ApplyOverride sets appKey to the normalized value in the active tab and
// raises the debug flag the host page needs to honour overrides.
func (b *Bridge) ApplyOverride(ctx context.Context, appKey, value string) Mutation {
	normalized := overrides.Normalize(value)
	return b.rewrite(ctx, "apply", func(e *overrides.Entries) {
		e.Set(appKey, normalized)
	}, map[string]string{overrides.DebugFlagKey: overrides.DebugFlagValue})
}

// ResetOverride removes appKey from the override list in the active tab.
func (b *Bridge) ResetOverride(ctx context.Context, appKey string) Mutation {
	return b.rewrite(ctx, "reset", func(e *overrides.Entries) {
		e.Delete(appKey)
	}, nil)
}

// RemoveAllOverrides deletes the override list key from the active tab so the
// page sees it as absent rather than empty.
func (b *Bridge) RemoveAllOverrides(ctx context.Context) Mutation {
	tab, err := b.browser.ActiveTab(ctx)
	if err != nil {
		return Mutation{Err: classify("remove-all", err)}
	}
	if err := tab.RemoveItems(ctx, overrides.StorageKey); err != nil {
		return Mutation{Err: classify("remove-all", err)}
	}
	b.afterWrite(ctx, tab)
	return Mutation{}
}

// Location returns the location of the active tab.
func (b *Bridge) Location(ctx context.Context) (PageInfo, error) {
	tab, err := b.browser.ActiveTab(ctx)
	if err != nil {
		return PageInfo{}, classify("location", err)
	}
	page, err := tab.Location(ctx)
	if err != nil {
		return PageInfo{}, classify("location", err)
	}
	return page, nil
}

// ShowBanner renders banner into the active tab. It reports false when the
// page header is not ready yet.
func (b *Bridge) ShowBanner(ctx context.Context, banner Banner) (bool, error) {
	tab, err := b.browser.ActiveTab(ctx)
	if err != nil {
		return false, classify("banner", err)
	}
	ok, err := tab.ShowBanner(ctx, banner)
	if err != nil {
		return false, classify("banner", err)
	}
	return ok, nil
}

// Wait blocks until background reloads triggered by autorefresh finish.
func (b *Bridge) Wait() {
	b.pending.Wait()
}

func (b *Bridge) rewrite(ctx context.Context, op string, edit func(*overrides.Entries), extra map[string]string) Mutation {
	tab, err := b.browser.ActiveTab(ctx)
	if err != nil {
		return Mutation{Err: classify(op, err)}
	}
	raw, _, err := tab.GetItem(ctx, overrides.StorageKey)
	if err != nil {
		return Mutation{Err: classify(op, err)}
	}

	entries := overrides.Decode(raw)
	edit(entries)
	encoded := overrides.Encode(entries)

	items := map[string]string{overrides.StorageKey: encoded}
	for k, v := range extra {
		items[k] = v
	}
	if err := tab.SetItems(ctx, items); err != nil {
		return Mutation{Err: classify(op, err)}
	}

	b.afterWrite(ctx, tab)
	return Mutation{Encoded: encoded}
}

// afterWrite reloads the tab in the background when autorefresh is on. The
// caller's result never waits for the reload.
func (b *Bridge) afterWrite(ctx context.Context, tab Tab) {
	if b.autorefresh == nil || !b.autorefresh() {
		return
	}
	b.pending.Add(1)
	go func() {
		defer b.pending.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.reloadTimeout)
		defer cancel()
		if err := tab.Reload(rctx); err != nil {
			b.logger.Warn("bridge: autorefresh reload failed", "tab", tab.ID(), "error", err)
		}
	}()
}

// classify wraps err with the operation name, mapping anything that is not a
// missing tab to ErrInjectionFailed.
func classify(op string, err error) error {
	if errors.Is(err, ErrNoActiveTab) || errors.Is(err, ErrInjectionFailed) {
		return fmt.Errorf("bridge: %s: %w", op, err)
	}
	return fmt.Errorf("bridge: %s: %w: %w", op, ErrInjectionFailed, err)
}
