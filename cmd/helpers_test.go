package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/kernel/remote-override/internal/bridge"
	"github.com/kernel/remote-override/internal/settings"
	"github.com/kernel/remote-override/internal/storage"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/require"
)

var outBuf bytes.Buffer

// setupStdoutCapture sends pterm output to outBuf for the duration of the test.
// The prefix printers and the table printer carry their own writers, so they
// are redirected one by one.
func setupStdoutCapture(t *testing.T) {
	t.Helper()
	outBuf.Reset()

	printers := []*pterm.PrefixPrinter{&pterm.Info, &pterm.Success, &pterm.Warning, &pterm.Error}
	saved := make([]io.Writer, len(printers))
	for i, p := range printers {
		saved[i] = p.Writer
		p.Writer = &outBuf
	}
	savedTable := pterm.DefaultTable.Writer
	pterm.DefaultTable.Writer = &outBuf

	pterm.SetDefaultOutput(&outBuf)
	pterm.DisableStyling()
	t.Cleanup(func() {
		for i, p := range printers {
			p.Writer = saved[i]
		}
		pterm.DefaultTable.Writer = savedTable
		pterm.SetDefaultOutput(os.Stdout)
		pterm.EnableStyling()
	})
}

// captureStdout returns what fn wrote to os.Stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	oldStdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

type testEnv struct {
	store  *settings.Store
	tab    *bridge.MemoryTab
	bridge *bridge.Bridge
}

func newTestEnv(t *testing.T, href string) *testEnv {
	t.Helper()
	store := settings.New(storage.NewMemory(), settings.DefaultApps())
	store.EnsureDefaults(context.Background())
	browser := bridge.NewMemoryBrowser()
	tab := browser.Open(href)
	return &testEnv{store: store, tab: tab, bridge: bridge.New(browser)}
}

func (e *testEnv) overrides() OverridesCmd {
	return OverridesCmd{store: e.store, page: e.bridge}
}
