package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kernel/remote-override/internal/messaging"
	"github.com/kernel/remote-override/internal/settings"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// ServeCmd runs the relay that other processes reach with --relay.
type ServeCmd struct {
	store  *settings.Store
	page   WatchPage
	logger *slog.Logger
}

type ServeInput struct {
	Addr string
	// Watch also runs the tab watcher in-process, publishing to the relay.
	Watch        bool
	PollInterval time.Duration
	SyncInterval time.Duration
}

func (c ServeCmd) Serve(ctx context.Context, in ServeInput) error {
	relay := messaging.NewRelay(c.store, c.page, c.logger)
	srv := messaging.NewServer(relay, c.logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pterm.Success.Printf("Relay listening on http://%s\n", in.Addr)

	watchErr := make(chan error, 1)
	if in.Watch {
		go func() {
			w := WatchCmd{store: c.store, page: c.page, badges: relay, logger: c.logger}
			watchErr <- w.Run(ctx, WatchInput{PollInterval: in.PollInterval, SyncInterval: in.SyncInterval})
		}()
	} else {
		close(watchErr)
	}

	err := srv.ListenAndServe(ctx, in.Addr)
	cancel()
	if werr := <-watchErr; werr != nil {
		err = errors.Join(err, werr)
	}
	return err
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay other commands reach with --relay",
	Long: `Run the relay other commands reach with --relay.

The relay owns the settings storage and the browser connection and answers
the extension message set over HTTP:

  POST /v1/messages   one message, one response
  GET  /v1/badge      the current badge
  GET  /v1/events     badge updates over a websocket`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:7788)")
	serveCmd.Flags().Bool("watch", false, "Also watch the active tab and publish badges")
	serveCmd.Flags().Duration("poll", time.Second, "How often to check the tab URL when watching")
	serveCmd.Flags().Duration("sync", 5*time.Second, "How often to restore applied overrides when watching")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := getSession(cmd)
	if err != nil {
		return err
	}
	if s.cfg.Relay != "" {
		return errors.New("serve runs the relay itself; drop --relay")
	}
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = s.cfg.ListenAddr
	}
	watch, _ := cmd.Flags().GetBool("watch")
	poll, _ := cmd.Flags().GetDuration("poll")
	sync, _ := cmd.Flags().GetDuration("sync")

	comps, err := openSeeded(cmd, pageLocal)
	if err != nil {
		return err
	}
	defer comps.Close()

	c := ServeCmd{store: comps.store, page: comps.bridge, logger: comps.logger}
	return c.Serve(cmd.Context(), ServeInput{Addr: addr, Watch: watch, PollInterval: poll, SyncInterval: sync})
}
