package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/kernel/remote-override/internal/settings"
	"github.com/kernel/remote-override/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDraftCmd(t *testing.T) (DraftCmd, *settings.Store) {
	t.Helper()
	store := settings.New(storage.NewMemory(), settings.DefaultApps())
	store.EnsureDefaults(context.Background())
	return DraftCmd{store: store}, store
}

func TestDraftSetAndShow(t *testing.T) {
	setupStdoutCapture(t)
	c, _ := newDraftCmd(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, DraftSetInput{App: "ride-plan", Slot: 0, Value: "main"}))
	require.NoError(t, c.Set(ctx, DraftSetInput{App: "ride-plan", Slot: 1, Value: "pr-3"}))
	require.NoError(t, c.Set(ctx, DraftSetInput{App: "ride-plan", Slot: 1, Value: "scratch", NoCommit: true}))
	require.NoError(t, c.Select(ctx, DraftSelectInput{App: "ride-plan", Slot: 1}))

	out := captureStdout(t, func() {
		require.NoError(t, c.Show(ctx, DraftShowInput{App: "ride-plan", Output: "json"}))
	})

	var view draftView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, []string{"main", "scratch"}, view.Inputs)
	assert.Equal(t, 1, view.Selection)
	assert.Equal(t, []string{"main", "pr-3"}, view.History)
}

func TestDraftSet_HistoryIsBounded(t *testing.T) {
	setupStdoutCapture(t)
	c, store := newDraftCmd(t)
	ctx := context.Background()

	for i := 1; i <= settings.MaxHistory+2; i++ {
		require.NoError(t, c.Set(ctx, DraftSetInput{App: "via-hub-dev", Slot: 0, Value: fmt.Sprintf("v%d", i)}))
	}
	rec, _ := store.Record("via-hub-dev")
	require.Len(t, rec.Values, settings.MaxHistory)
	assert.Equal(t, "v3", rec.Values[0])
	assert.Equal(t, "v12", rec.Values[settings.MaxHistory-1])
}

func TestDraft_Errors(t *testing.T) {
	setupStdoutCapture(t)
	c, _ := newDraftCmd(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, DraftSetInput{App: "ghost", Value: "x"}), settings.ErrUnknownApp)
	assert.ErrorIs(t, c.Set(ctx, DraftSetInput{App: "ride-plan", Slot: 5, Value: "x"}), settings.ErrInvalidSlot)
	assert.ErrorIs(t, c.Select(ctx, DraftSelectInput{App: "ride-plan", Slot: -1}), settings.ErrInvalidSlot)
}

func TestDraftShow_Table(t *testing.T) {
	setupStdoutCapture(t)
	c, _ := newDraftCmd(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, DraftSetInput{App: "shift-manager", Slot: 0, Value: "release-2"}))

	outBuf.Reset()
	require.NoError(t, c.Show(ctx, DraftShowInput{App: "shift-manager"}))
	out := outBuf.String()
	assert.Contains(t, out, "release-2")
	assert.Contains(t, out, "History:")
}

func TestSlotArg(t *testing.T) {
	n, err := slotArg("1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, s := range []string{"2", "-1", "one"} {
		_, err := slotArg(s)
		assert.ErrorIs(t, err, settings.ErrInvalidSlot, s)
	}
}
