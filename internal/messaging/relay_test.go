package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kernel/remote-override/internal/bridge"
	"github.com/kernel/remote-override/internal/overrides"
	"github.com/kernel/remote-override/internal/reconcile"
	"github.com/kernel/remote-override/internal/settings"
	"github.com/kernel/remote-override/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relayFixture struct {
	relay   *Relay
	store   *settings.Store
	browser *bridge.MemoryBrowser
	tab     *bridge.MemoryTab
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	store := settings.New(storage.NewMemory(), settings.DefaultApps())
	browser := bridge.NewMemoryBrowser()
	tab := browser.Open("https://ops.example.com/planning/ride-planner")
	return &relayFixture{
		relay:   NewRelay(store, bridge.New(browser), nil),
		store:   store,
		browser: browser,
		tab:     tab,
	}
}

func TestDispatch_InitializeStorage(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	resp, err := f.relay.Dispatch(ctx, Request{Type: InitializeStorage})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "storage initialized with default apps", resp.Message)

	resp, err = f.relay.Dispatch(ctx, Request{Type: InitializeStorage})
	require.NoError(t, err)
	assert.Equal(t, "storage already initialized", resp.Message)
}

func TestDispatch_OverrideDataRoundTrip(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	f.store.EnsureDefaults(ctx)

	data, err := json.Marshal(settings.Envelope[settings.OverrideState]{State: settings.OverrideState{
		Overrides:   map[string]settings.OverrideRecord{"ride-plan": {Override: "main", Values: []string{"main"}}},
		Autorefresh: true,
	}})
	require.NoError(t, err)

	resp, err := f.relay.Dispatch(ctx, Request{Type: SetOverrideData, Data: data})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "main", f.store.OverrideValue("ride-plan"))
	assert.True(t, f.store.Autorefresh())

	resp, err = f.relay.Dispatch(ctx, Request{Type: GetOverrideData})
	require.NoError(t, err)
	var got settings.Envelope[settings.OverrideState]
	require.NoError(t, json.Unmarshal(resp.OverrideData, &got))
	assert.Equal(t, "main", got.State.Overrides["ride-plan"].Override)

	var sel settings.Envelope[settings.SelectionState]
	require.NoError(t, json.Unmarshal(resp.AppSelectionData, &sel))
	assert.Len(t, sel.State.Apps, 4)
}

func TestDispatch_SetAppSelectionData(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	f.store.EnsureDefaults(ctx)

	env := f.store.SelectionData()
	env.State.SelectedApps = []string{"shift-manager"}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	resp, err := f.relay.Dispatch(ctx, Request{Type: SetAppSelectionData, Data: data})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.True(t, f.store.IsSelected("shift-manager"))
	assert.False(t, f.store.IsSelected("ride-plan"))

	_, err = f.relay.Dispatch(ctx, Request{Type: SetAppSelectionData, Data: json.RawMessage(`[1,2]`)})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDispatch_PageOverride(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	resp, err := f.relay.Dispatch(ctx, Request{Type: GetPageOverride, App: "ride-plan"})
	require.NoError(t, err)
	assert.Nil(t, resp.OverrideValue)
	assert.NoError(t, resp.Err())

	resp, err = f.relay.Dispatch(ctx, Request{Type: UpdatePageOverride, App: "ride-plan", Action: ActionApply, Value: "feature/x"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "ride-plan@feature_x", resp.Result)

	resp, err = f.relay.Dispatch(ctx, Request{Type: GetPageOverride, App: "ride-plan"})
	require.NoError(t, err)
	require.NotNil(t, resp.OverrideValue)
	assert.Equal(t, "feature_x", *resp.OverrideValue)

	resp, err = f.relay.Dispatch(ctx, Request{Type: UpdatePageOverride, App: "ride-plan", Action: ActionReset})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "", resp.Result)
}

func TestDispatch_PageOverrideSendsNull(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	resp, err := f.relay.Dispatch(ctx, Request{Type: GetPageOverride, App: "ride-plan"})
	require.NoError(t, err)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"overrideValue":null}`, string(data))

	resp, err = f.relay.Dispatch(ctx, Request{Type: RemoveAllOverrides})
	require.NoError(t, err)
	data, err = json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "overrideValue")
}

func TestDispatch_PageFailuresAreValues(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	f.browser.Activate(nil)

	resp, err := f.relay.Dispatch(ctx, Request{Type: GetPageOverride, App: "ride-plan"})
	require.NoError(t, err)
	assert.Nil(t, resp.OverrideValue)
	assert.Equal(t, CodeNoActiveTab, resp.ErrorCode)
	assert.ErrorIs(t, resp.Err(), bridge.ErrNoActiveTab)

	resp, err = f.relay.Dispatch(ctx, Request{Type: RemoveAllOverrides})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.ErrorIs(t, resp.Err(), bridge.ErrNoActiveTab)
}

func TestDispatch_RemoveAll(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tab.SetItems(ctx, map[string]string{overrides.StorageKey: "a@1"}))

	resp, err := f.relay.Dispatch(ctx, Request{Type: RemoveAllOverrides})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	_, ok := f.tab.Item(overrides.StorageKey)
	assert.False(t, ok)
}

func TestDispatch_PageState(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tab.SetItems(ctx, map[string]string{overrides.StorageKey: "ride-plan@main"}))

	resp, err := f.relay.Dispatch(ctx, Request{Type: GetPageState})
	require.NoError(t, err)
	require.NotNil(t, resp.Page)
	assert.Equal(t, "/planning/ride-planner", resp.Page.Pathname)
	assert.Equal(t, "ride-plan@main", resp.Raw)
	assert.True(t, resp.Present)
}

func TestDispatch_InvalidRequests(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	_, err := f.relay.Dispatch(ctx, Request{Type: "PAGE_INFO"})
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = f.relay.Dispatch(ctx, Request{Type: UpdatePageOverride, App: "ride-plan", Action: "toggle"})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = f.relay.Dispatch(ctx, Request{Type: GetPageOverride})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDispatch_SetBadge(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	_, err := f.relay.Dispatch(ctx, Request{Type: SetBadge, HasOverride: true, BadgeText: "12345", Title: "Override: ride-plan@main"})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Badge{HasOverride: true, Text: "1234", Title: "Override: ride-plan@main"}, f.relay.Badge())

	_, err = f.relay.Dispatch(ctx, Request{Type: SetBadge, HasOverride: false, BadgeText: "3"})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Badge{Title: reconcile.DefaultTitle}, f.relay.Badge())
}

func TestSubscribe(t *testing.T) {
	f := newRelayFixture(t)
	_, updates, cancel := f.relay.Subscribe()

	assert.Equal(t, reconcile.Badge{Title: reconcile.DefaultTitle}, <-updates)
	require.NoError(t, f.relay.SetBadge(context.Background(), reconcile.Badge{HasOverride: true, Text: "2", Title: "t"}))
	assert.Equal(t, reconcile.Badge{HasOverride: true, Text: "2", Title: "t"}, <-updates)

	cancel()
	cancel()
	_, open := <-updates
	assert.False(t, open)
}
