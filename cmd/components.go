package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kernel/kernel-go-sdk"
	"github.com/kernel/kernel-go-sdk/option"
	"github.com/kernel/remote-override/internal/bridge"
	"github.com/kernel/remote-override/internal/chrome"
	"github.com/kernel/remote-override/internal/config"
	"github.com/kernel/remote-override/internal/messaging"
	"github.com/kernel/remote-override/internal/reconcile"
	"github.com/kernel/remote-override/internal/settings"
	"github.com/kernel/remote-override/internal/storage"
	"github.com/spf13/cobra"
)

// components are the collaborators a command works with. In relay mode the
// store and page both go through a running relay and bridge is nil.
type components struct {
	logger *slog.Logger
	store  *settings.Store
	page   reconcile.PageBridge
	bridge *bridge.Bridge
	relay  *messaging.Client

	closers []func() error
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// pageMode says whether and how a command reaches the active tab.
type pageMode int

const (
	pageNone pageMode = iota
	// pageAny goes through the relay when one is configured.
	pageAny
	// pageLocal always drives a browser from this process.
	pageLocal
)

// openComponents builds the settings store and, unless mode is pageNone, a
// connection to the active tab.
func openComponents(cmd *cobra.Command, mode pageMode) (*components, error) {
	s, err := getSession(cmd)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	c := &components{logger: s.logger}

	if s.cfg.Relay != "" {
		c.relay = messaging.NewClient(s.cfg.Relay)
		c.store = settings.New(messaging.NewRemoteArea(c.relay), settings.DefaultApps(), settings.WithLogger(s.logger))
		if err := c.store.Reload(ctx); err != nil {
			return nil, err
		}
		switch mode {
		case pageAny:
			c.page = c.relay
		case pageLocal:
			if err := c.attachBrowser(ctx, s); err != nil {
				return nil, err
			}
		}
		return c, nil
	}

	area, err := openArea(s.cfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, area.Close)
	c.store = settings.New(area, settings.DefaultApps(), settings.WithLogger(s.logger))
	if err := c.store.Reload(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	if mode != pageNone {
		if err := c.attachBrowser(ctx, s); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

// openSeeded is openComponents followed by seeding the built-in apps when the
// storage is empty.
func openSeeded(cmd *cobra.Command, mode pageMode) (*components, error) {
	c, err := openComponents(cmd, mode)
	if err != nil {
		return nil, err
	}
	if c.store.EnsureDefaults(cmd.Context()) {
		c.logger.Debug("settings storage initialized")
	}
	return c, nil
}

func (c *components) attachBrowser(ctx context.Context, s *session) error {
	browser, err := openBrowser(ctx, s.cfg, s.logger, c)
	if err != nil {
		return err
	}
	c.bridge = bridge.New(browser,
		bridge.WithLogger(s.logger),
		bridge.WithAutorefresh(c.store.Autorefresh),
	)
	c.page = c.bridge
	c.closers = append(c.closers, func() error {
		c.bridge.Wait()
		return nil
	})
	return nil
}

func openArea(cfg config.Config) (storage.Area, error) {
	path := cfg.StoragePath
	if path == "" && cfg.Storage != string(storage.KindMemory) {
		p, err := config.DefaultStoragePath(cfg.Storage)
		if err != nil {
			return nil, err
		}
		path = p
	}
	return storage.Open(storage.Kind(cfg.Storage), path)
}

func openBrowser(ctx context.Context, cfg config.Config, logger *slog.Logger, c *components) (bridge.Browser, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		mb := bridge.NewMemoryBrowser()
		mb.Open("about:blank")
		return mb, nil
	case config.BackendKernel:
		key, err := cfg.ResolveKernelAPIKey()
		if err != nil {
			return nil, err
		}
		opts := []option.RequestOption{option.WithAPIKey(key)}
		if cfg.KernelBaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.KernelBaseURL))
		}
		client := kernel.NewClient(opts...)
		pw := client.Browsers.Playwright
		return bridge.NewKernelBrowser(&pw, cfg.BrowserID), nil
	default:
		rc := bridge.RodConfig{
			ControlURL: cfg.CDPURL,
			Headless:   cfg.Headless,
			Logger:     logger,
		}
		if rc.ControlURL == "" && cfg.ChromeProfile != "" {
			dir := cfg.UserDataDir
			if dir == "" {
				d, err := chrome.UserDataDir()
				if err != nil {
					return nil, err
				}
				dir = d
			}
			profile, err := chrome.ResolveProfile(dir, cfg.ChromeProfile)
			if err != nil {
				return nil, err
			}
			rc.UserDataDir = dir
			rc.Profile = profile
		}
		rb, err := bridge.ConnectRod(ctx, rc)
		if err != nil {
			return nil, fmt.Errorf("failed to reach chrome: %w", err)
		}
		c.closers = append(c.closers, rb.Close)
		return rb, nil
	}
}
