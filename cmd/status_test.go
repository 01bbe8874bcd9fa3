package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kernel/remote-override/internal/bridge"
	"github.com/kernel/remote-override/internal/overrides"
	"github.com/kernel/remote-override/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBannerLines(t *testing.T) {
	tests := []struct {
		name   string
		banner bridge.Banner
		want   string
	}{
		{"current", bridge.Banner{CurrentApp: "ride-plan", CurrentValue: "main", Count: 2}, "Current override: ride-plan@main"},
		{"known app without value", bridge.Banner{CurrentApp: "ride-plan", Count: 1}, "Current override: none"},
		{"unknown app", bridge.Banner{Count: 3}, "Unknown app: create new app in the extension settings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := bannerLines(tt.banner)
			require.Len(t, lines, 2)
			assert.Equal(t, tt.want, lines[0])
			assert.Contains(t, lines[1], "All overrides count: ")
		})
	}
}

func TestStatus_JSON(t *testing.T) {
	setupStdoutCapture(t)
	env := newTestEnv(t, "https://ops.example.com/network-optimizer/plans")
	require.NoError(t, env.tab.SetItems(context.Background(), map[string]string{
		overrides.StorageKey: "via-hub-dev@pr-7,ride-plan@main",
	}))

	c := StatusCmd{store: env.store, page: env.bridge}
	out := captureStdout(t, func() {
		require.NoError(t, c.Status(context.Background(), StatusInput{Output: "json"}))
	})

	var resp statusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, reconcile.Badge{HasOverride: true, Text: "2", Title: "Override: via-hub-dev@pr-7"}, resp.Badge)
	assert.Equal(t, bridge.Banner{CurrentApp: "via-hub-dev", CurrentValue: "pr-7", Count: 2}, resp.Banner)
	assert.Equal(t, "/network-optimizer/plans", resp.Page.Pathname)
	assert.Equal(t, []statusEntry{
		{Key: "via-hub-dev", Value: "pr-7", Current: true},
		{Key: "ride-plan", Value: "main"},
	}, resp.Overrides)
}

func TestStatus_NoOverrides(t *testing.T) {
	setupStdoutCapture(t)
	env := newTestEnv(t, "https://ops.example.com/")

	c := StatusCmd{store: env.store, page: env.bridge}
	require.NoError(t, c.Status(context.Background(), StatusInput{}))

	out := outBuf.String()
	assert.Contains(t, out, "No overrides on this page")
	assert.Contains(t, out, reconcile.DefaultTitle)
	assert.Contains(t, out, "All overrides count: 0")
}

func TestStatus_PageUnreachable(t *testing.T) {
	setupStdoutCapture(t)
	env := newTestEnv(t, "https://ops.example.com/")
	env.tab.FailWith(errors.New("detached"))

	c := StatusCmd{store: env.store, page: env.bridge}
	err := c.Status(context.Background(), StatusInput{})
	assert.ErrorIs(t, err, bridge.ErrInjectionFailed)
	assert.Contains(t, outBuf.String(), "Could not read overrides from the active tab.")
}
