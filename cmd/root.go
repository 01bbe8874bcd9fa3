package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kernel/remote-override/internal/config"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// version is set at build time.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "overrides",
	Short: "Manage remote app overrides in the active browser tab",
	Long: `Manage remote app overrides in the active browser tab.

Overrides are kept in the page's localStorage as a comma separated
"key@value" list. The tool remembers the value you chose for every app,
keeps a short history of values you typed, and can watch the active tab
to keep a banner and a badge in sync with the page.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadSession,
}

// Root returns the root command.
func Root() *cobra.Command { return rootCmd }

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())
}

func addGlobalFlags(pf *pflag.FlagSet) {
	pf.String("config", "", "Path to the config file (default $XDG_CONFIG_HOME/remote-override/config.yaml)")
	pf.String("backend", "", "How to reach the active tab: rod, kernel or memory")
	pf.String("cdp-url", "", "WebSocket debugger URL of a running Chrome (rod backend)")
	pf.String("chrome-profile", "", "Chrome profile directory to launch with (rod backend)")
	pf.Bool("headless", false, "Launch Chrome headless (rod backend)")
	pf.String("browser-id", "", "Kernel browser session id (kernel backend)")
	pf.String("storage", "", "Settings storage: file, sqlite or memory")
	pf.String("storage-path", "", "Settings storage location")
	pf.String("relay", "", "Base URL of a running relay (see 'overrides serve')")
	pf.String("log-level", "", "Log level: debug, info, warn or error")
}

// session is the resolved configuration of one invocation.
type session struct {
	cfg        config.Config
	configPath string
	logger     *slog.Logger
}

type sessionKey struct{}

func loadSession(cmd *cobra.Command, args []string) error {
	fs := cmd.Flags()
	path, _ := fs.GetString("config")
	if path == "" {
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}

	cfg, err := config.Load(path, ".env")
	if err != nil {
		return err
	}
	if err := applyFlags(fs, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, sessionKey{}, &session{cfg: cfg, configPath: path, logger: logger}))
	return nil
}

// applyFlags copies every explicitly set flag over cfg.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	strs := map[string]*string{
		"backend":        &cfg.Backend,
		"cdp-url":        &cfg.CDPURL,
		"chrome-profile": &cfg.ChromeProfile,
		"browser-id":     &cfg.BrowserID,
		"storage":        &cfg.Storage,
		"storage-path":   &cfg.StoragePath,
		"relay":          &cfg.Relay,
		"log-level":      &cfg.LogLevel,
	}
	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(v)
	}
	if fs.Changed("headless") {
		v, err := fs.GetBool("headless")
		if err != nil {
			return err
		}
		cfg.Headless = v
	}
	return nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl pterm.LogLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = pterm.LogLevelDebug
	case "", "info":
		lvl = pterm.LogLevelInfo
	case "warn", "warning":
		lvl = pterm.LogLevelWarn
	case "error":
		lvl = pterm.LogLevelError
	default:
		return nil, fmt.Errorf("unsupported --log-level %q: use debug, info, warn or error", level)
	}
	return slog.New(pterm.NewSlogHandler(pterm.DefaultLogger.WithLevel(lvl))), nil
}

func getSession(cmd *cobra.Command) (*session, error) {
	if ctx := cmd.Context(); ctx != nil {
		if s, ok := ctx.Value(sessionKey{}).(*session); ok {
			return s, nil
		}
	}
	return nil, errors.New("configuration not loaded")
}
