package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/kernel/remote-override/internal/bridge"
)

// BannerPage renders a banner into the active tab.
type BannerPage interface {
	ShowBanner(ctx context.Context, b bridge.Banner) (bool, error)
}

// BannerInjector retries banner injection until the page header exists.
type BannerInjector struct {
	page     BannerPage
	attempts int
	interval time.Duration
	logger   *slog.Logger
}

// NewBannerInjector returns an injector making 10 attempts 500ms apart.
func NewBannerInjector(page BannerPage, logger *slog.Logger) *BannerInjector {
	if logger == nil {
		logger = slog.Default()
	}
	return &BannerInjector{
		page:     page,
		attempts: 10,
		interval: 500 * time.Millisecond,
		logger:   logger,
	}
}

// Inject renders b, retrying while the anchor element is missing or the page
// function fails. It gives up silently after the last attempt and reports
// whether the banner was rendered.
func (bi *BannerInjector) Inject(ctx context.Context, b bridge.Banner) bool {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}

		ok, err := bi.page.ShowBanner(ctx, b)
		if err == nil && ok {
			return true
		}
		if err != nil {
			bi.logger.Debug("reconcile: banner attempt failed", "attempt", attempt, "error", err)
		}
		if attempt >= bi.attempts {
			bi.logger.Debug("reconcile: banner anchor never appeared", "attempts", attempt)
			return false
		}
		timer.Reset(bi.interval)
	}
}
