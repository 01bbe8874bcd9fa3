package cmd

import (
	"context"
	"log/slog"
	"testing"

	"github.com/kernel/remote-override/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet(t *testing.T) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addGlobalFlags(fs)
	return fs
}

func TestApplyFlags_OnlyChangedFlagsWin(t *testing.T) {
	fs := newFlagSet(t)
	require.NoError(t, fs.Parse([]string{"--backend", "memory", "--storage", " sqlite ", "--headless"}))

	cfg := config.Default()
	cfg.CDPURL = "ws://127.0.0.1:9222/devtools/browser/abc"
	require.NoError(t, applyFlags(fs, &cfg))

	assert.Equal(t, config.BackendMemory, cfg.Backend)
	assert.Equal(t, "sqlite", cfg.Storage)
	assert.True(t, cfg.Headless)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", cfg.CDPURL)
	assert.Equal(t, "127.0.0.1:7788", cfg.ListenAddr)
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "WARN", "error"} {
		logger, err := newLogger(level)
		require.NoError(t, err, level)
		assert.NotNil(t, logger)
	}

	logger, err := newLogger("error")
	require.NoError(t, err)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))

	_, err = newLogger("verbose")
	assert.ErrorContains(t, err, "unsupported --log-level")
}

func TestLoadSession(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("OVERRIDES_BACKEND", "")

	cmd := &cobra.Command{Use: "probe", RunE: func(*cobra.Command, []string) error { return nil }}
	addGlobalFlags(cmd.Flags())
	require.NoError(t, cmd.Flags().Parse([]string{"--backend", "memory", "--storage", "memory"}))
	cmd.SetContext(context.Background())

	require.NoError(t, loadSession(cmd, nil))
	s, err := getSession(cmd)
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, s.cfg.Backend)
	assert.Equal(t, "memory", s.cfg.Storage)
	assert.Contains(t, s.configPath, "remote-override")
}

func TestLoadSession_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cmd := &cobra.Command{Use: "probe"}
	addGlobalFlags(cmd.Flags())
	require.NoError(t, cmd.Flags().Parse([]string{"--backend", "firefox"}))

	assert.ErrorContains(t, loadSession(cmd, nil), "unknown backend")
}

func TestOpenComponents_MemoryBackend(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cmd := &cobra.Command{Use: "probe"}
	addGlobalFlags(cmd.Flags())
	require.NoError(t, cmd.Flags().Parse([]string{"--backend", "memory", "--storage", "memory"}))
	cmd.SetContext(context.Background())
	require.NoError(t, loadSession(cmd, nil))

	comps, err := openSeeded(cmd, pageAny)
	require.NoError(t, err)
	defer comps.Close()

	assert.Len(t, comps.store.AllApps(), 4)
	require.NotNil(t, comps.bridge)
	snap := comps.page.ReadAll(context.Background())
	require.NoError(t, snap.Err)
	assert.Equal(t, "about:blank", snap.Page.Href)
}
