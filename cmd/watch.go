package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/kernel/remote-override/internal/reconcile"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// WatchPage is the subset of the page bridge used by the watch command.
type WatchPage interface {
	reconcile.PageBridge
	reconcile.Page
}

// WatchCmd keeps the page banner and the badge current while the user
// navigates the active tab.
type WatchCmd struct {
	store  reconcile.Settings
	page   WatchPage
	badges reconcile.BadgeSink
	logger *slog.Logger
}

type WatchInput struct {
	PollInterval time.Duration
	SyncInterval time.Duration
}

// logBadges prints badge changes when no relay receives them.
type logBadges struct {
	last reconcile.Badge
	seen bool
}

func (l *logBadges) SetBadge(ctx context.Context, b reconcile.Badge) error {
	if l.seen && l.last == b {
		return nil
	}
	l.last, l.seen = b, true
	if !b.HasOverride {
		pterm.Info.Println("No overrides on this page")
		return nil
	}
	pterm.Info.Printf("[%s] %s\n", b.Text, b.Title)
	return nil
}

func (c WatchCmd) Run(ctx context.Context, in WatchInput) error {
	badges := c.badges
	if badges == nil {
		badges = &logBadges{}
	}
	var opts []reconcile.Option
	if c.logger != nil {
		opts = append(opts, reconcile.WithLogger(c.logger))
	}
	rec := reconcile.New(c.page, c.store, opts...)
	defer rec.Wait()

	w := reconcile.NewWatcher(rec, c.page, c.store, badges, reconcile.WatcherConfig{
		PollInterval: in.PollInterval,
		SyncInterval: in.SyncInterval,
		Logger:       c.logger,
	})
	pterm.Info.Println("Watching the active tab. Press Ctrl+C to stop.")
	return w.Run(ctx)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the page banner and badge in sync with the active tab",
	Long: `Keep the page banner and badge in sync with the active tab.

The active tab is checked for navigation every --poll interval. Every --sync
interval the overrides you applied are written back to the page if it lost
them. With --relay, badges are published to the relay.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("poll", time.Second, "How often to check the tab URL")
	watchCmd.Flags().Duration("sync", 5*time.Second, "How often to restore applied overrides")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	poll, _ := cmd.Flags().GetDuration("poll")
	sync, _ := cmd.Flags().GetDuration("sync")

	comps, err := openSeeded(cmd, pageLocal)
	if err != nil {
		return err
	}
	defer comps.Close()

	c := WatchCmd{store: comps.store, page: comps.bridge, logger: comps.logger}
	if comps.relay != nil {
		c.badges = comps.relay
	}
	return c.Run(cmd.Context(), WatchInput{PollInterval: poll, SyncInterval: sync})
}
