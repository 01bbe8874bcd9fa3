package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kernel/remote-override/internal/bridge"
)

// Page is what the watcher reads from the active tab.
type Page interface {
	Location(ctx context.Context) (bridge.PageInfo, error)
	ReadAll(ctx context.Context) bridge.Snapshot
	BannerPage
}

// BadgeSink receives the badge after every refresh.
type BadgeSink interface {
	SetBadge(ctx context.Context, b Badge) error
}

// WatcherConfig configures a Watcher. Zero durations take the defaults.
type WatcherConfig struct {
	// PollInterval is how often the tab URL is checked. Default: 1s.
	PollInterval time.Duration
	// SyncInterval is how often local values are pushed back to the page.
	// Default: 5s.
	SyncInterval time.Duration
	Logger       *slog.Logger
}

// Watcher keeps the badge and the page banner current while the user
// navigates, and periodically re-applies local overrides to the page.
type Watcher struct {
	rec      *Reconciler
	page     Page
	store    Settings
	badges   BadgeSink
	injector *BannerInjector
	poll     time.Duration
	sync     time.Duration
	logger   *slog.Logger

	bannerWG     sync.WaitGroup
	cancelBanner context.CancelFunc
}

// NewWatcher returns a Watcher. badges may be nil.
func NewWatcher(rec *Reconciler, page Page, store Settings, badges BadgeSink, cfg WatcherConfig) *Watcher {
	w := &Watcher{
		rec:    rec,
		page:   page,
		store:  store,
		badges: badges,
		poll:   cfg.PollInterval,
		sync:   cfg.SyncInterval,
		logger: cfg.Logger,
	}
	if w.poll <= 0 {
		w.poll = time.Second
	}
	if w.sync <= 0 {
		w.sync = 5 * time.Second
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.injector = NewBannerInjector(page, w.logger)
	return w
}

// Run resolves the current page once, then watches for URL changes and sync
// ticks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopBanner()

	last := ""
	if page, err := w.page.Location(ctx); err == nil {
		last = page.Href
	}
	w.Refresh(ctx, EventPageLoad)

	poll := time.NewTicker(w.poll)
	defer poll.Stop()
	tick := time.NewTicker(w.sync)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			page, err := w.page.Location(ctx)
			if err != nil || page.Href == last {
				continue
			}
			w.logger.Info("reconcile: url changed", "href", page.Href)
			last = page.Href
			w.Refresh(ctx, EventPageLoad)
		case <-tick.C:
			if _, err := w.rec.Sync(ctx); err != nil {
				w.logger.Debug("reconcile: sync failed", "error", err)
			}
			w.Refresh(ctx, EventTick)
		}
	}
}

// Refresh reloads the settings, resolves every displayed app, publishes the badge and re-injects
// the banner. A banner injection still retrying from an earlier refresh is
// abandoned. Refresh is not safe for concurrent use.
func (w *Watcher) Refresh(ctx context.Context, kind EventKind) Badge {
	if err := w.store.Reload(ctx); err != nil {
		w.logger.Warn("reconcile: reload settings", "error", err)
	}
	w.rec.Handle(ctx, Event{Kind: kind})

	snap := w.page.ReadAll(ctx)
	if snap.Err != nil {
		w.logger.Debug("reconcile: page read failed", "error", snap.Err)
		return Badge{}
	}
	badge, banner := Derive(snap, w.store.AllApps())

	if w.badges != nil {
		if err := w.badges.SetBadge(ctx, badge); err != nil {
			w.logger.Warn("reconcile: publish badge", "error", err)
		}
	}

	w.stopBanner()
	bctx, cancel := context.WithCancel(ctx)
	w.cancelBanner = cancel
	w.bannerWG.Add(1)
	go func() {
		defer w.bannerWG.Done()
		w.injector.Inject(bctx, banner)
	}()
	return badge
}

func (w *Watcher) stopBanner() {
	if w.cancelBanner != nil {
		w.cancelBanner()
		w.cancelBanner = nil
	}
	w.bannerWG.Wait()
}
