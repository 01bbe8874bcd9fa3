package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// RodConfig configures a Chrome DevTools connection.
type RodConfig struct {
	// ControlURL is the WebSocket debugger URL of a running Chrome. Empty
	// launches a local Chrome through the rod launcher.
	ControlURL string

	// UserDataDir and Profile point the launched Chrome at an existing
	// profile so the page storage is the user's real one.
	UserDataDir string
	Profile     string

	// Headless only applies to a launched Chrome.
	Headless bool

	Logger *slog.Logger
}

// RodBrowser resolves tabs of a Chrome instance driven over CDP.
type RodBrowser struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	logger  *slog.Logger
}

// ConnectRod connects to (or launches) Chrome.
func ConnectRod(ctx context.Context, cfg RodConfig) (*RodBrowser, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	wsURL := cfg.ControlURL
	var lnch *launcher.Launcher
	if wsURL == "" {
		lnch = launcher.New().Headless(cfg.Headless)
		if cfg.UserDataDir != "" {
			lnch = lnch.UserDataDir(cfg.UserDataDir)
		}
		if cfg.Profile != "" {
			lnch = lnch.ProfileDir(cfg.Profile)
		}
		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("bridge: launch chrome: %w", err)
		}
		wsURL = u
		logger.Info("bridge: launched local chrome", "url", wsURL)
	} else {
		logger.Info("bridge: connecting to chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("bridge: connect: %w", err)
	}

	return &RodBrowser{browser: b, lnch: lnch, logger: logger}, nil
}

// ActiveTab returns the first page whose document is visible.
func (r *RodBrowser) ActiveTab(ctx context.Context) (Tab, error) {
	pages, err := r.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoActiveTab, err)
	}
	for _, p := range pages {
		res, err := p.Context(ctx).Evaluate(&rod.EvalOptions{
			JS:      `() => document.visibilityState`,
			ByValue: true,
		})
		if err != nil {
			r.logger.Debug("bridge: skipping page", "target", p.TargetID, "error", err)
			continue
		}
		if res.Value.Str() == "visible" {
			return &rodTab{page: p}, nil
		}
	}
	return nil, ErrNoActiveTab
}

// Close disconnects and stops a launched Chrome.
func (r *RodBrowser) Close() error {
	err := r.browser.Close()
	if r.lnch != nil {
		r.lnch.Cleanup()
	}
	return err
}

type rodTab struct {
	page *rod.Page
}

func (t *rodTab) ID() string { return string(t.page.TargetID) }

func (t *rodTab) eval(ctx context.Context, script string, args map[string]any, out any) error {
	res, err := t.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           script,
		JSArgs:       []interface{}{args},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return err
	}
	if res == nil || res.Value.Nil() {
		return fmt.Errorf("page function returned nothing")
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(res.Value.Str()), out)
}

func (t *rodTab) Location(ctx context.Context) (PageInfo, error) {
	var info PageInfo
	err := t.eval(ctx, locationScript, map[string]any{}, &info)
	return info, err
}

func (t *rodTab) GetItem(ctx context.Context, key string) (string, bool, error) {
	var res getItemResult
	if err := t.eval(ctx, storageGetScript, map[string]any{"key": key}, &res); err != nil {
		return "", false, err
	}
	return res.Value, res.Found, nil
}

func (t *rodTab) SetItems(ctx context.Context, items map[string]string) error {
	return t.eval(ctx, storageSetScript, map[string]any{"items": items}, nil)
}

func (t *rodTab) RemoveItems(ctx context.Context, keys ...string) error {
	return t.eval(ctx, storageRemoveScript, map[string]any{"keys": keys}, nil)
}

func (t *rodTab) ShowBanner(ctx context.Context, b Banner) (bool, error) {
	var res bannerResult
	args := map[string]any{
		"currentApp":   b.CurrentApp,
		"currentValue": b.CurrentValue,
		"count":        b.Count,
	}
	if err := t.eval(ctx, bannerScript, args, &res); err != nil {
		return false, err
	}
	return res.Injected, nil
}

func (t *rodTab) Reload(ctx context.Context) error {
	return t.page.Context(ctx).Reload()
}
