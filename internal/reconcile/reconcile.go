// Package reconcile decides the override value of every displayed app by
// combining the settings store with reads from the active tab, and pushes
// the local value back to the page when the two disagree.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kernel/remote-override/internal/bridge"
	"github.com/kernel/remote-override/internal/overrides"
	"github.com/kernel/remote-override/internal/settings"
	"github.com/samber/lo"
)

// PageBridge is the subset of *bridge.Bridge used by the reconciler.
type PageBridge interface {
	ReadOverride(ctx context.Context, appKey string) bridge.Lookup
	ReadAll(ctx context.Context) bridge.Snapshot
	ApplyOverride(ctx context.Context, appKey, value string) bridge.Mutation
	ResetOverride(ctx context.Context, appKey string) bridge.Mutation
	RemoveAllOverrides(ctx context.Context) bridge.Mutation
}

// Settings is the subset of *settings.Store used by the reconciler.
type Settings interface {
	AllApps() []settings.AppDescriptor
	SelectedApps() []settings.AppDescriptor
	OverrideValue(key string) string
	TrackedKeys() []string
	SetOverrideValue(ctx context.Context, key, value string)
	ClearOverrideValues(ctx context.Context, keys []string)
	// Reload picks up values committed by other processes.
	Reload(ctx context.Context) error
}

// Phase is the resolution phase of one app's override.
type Phase int

const (
	// PhaseUnknown means nothing was fetched yet or the last read failed.
	PhaseUnknown Phase = iota
	// PhaseLoading means a page read is in flight.
	PhaseLoading
	// PhaseResolved means Value and Found are authoritative.
	PhaseResolved
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// State is what the UI shows for one app.
type State struct {
	Phase Phase
	Value string
	Found bool
	// Local is set when Value came from the settings store rather than the page.
	Local bool
	Err   error
}

// EventKind identifies a reconciliation trigger.
type EventKind int

const (
	EventPageLoad EventKind = iota
	EventTick
	EventApply
	EventReset
	EventRemoveAll
)

func (k EventKind) String() string {
	switch k {
	case EventPageLoad:
		return "page-load"
	case EventTick:
		return "tick"
	case EventApply:
		return "apply"
	case EventReset:
		return "reset"
	case EventRemoveAll:
		return "remove-all"
	default:
		return "unknown"
	}
}

// Event is one reconciliation trigger. App is ignored by EventRemoveAll;
// PageLoad and Tick with an empty App resolve every displayed app.
type Event struct {
	Kind  EventKind
	App   string
	Value string
}

// Write is the outcome of a background page write.
type Write struct {
	Kind   EventKind
	App    string
	Result bridge.Mutation
}

// Reconciler owns the per-app State and serializes page writes.
type Reconciler struct {
	page         PageBridge
	store        Settings
	logger       *slog.Logger
	observe      func(Write)
	writeTimeout time.Duration

	mu     sync.Mutex
	states map[string]State
	tail   chan struct{}

	// writeMu keeps page read-modify-write cycles from interleaving.
	writeMu sync.Mutex
	pending sync.WaitGroup
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(r *Reconciler) { r.logger = l } }

// WithWriteObserver registers fn to be called after every background page
// write completes.
func WithWriteObserver(fn func(Write)) Option { return func(r *Reconciler) { r.observe = fn } }

// WithWriteTimeout bounds each background page write. Default: 30s.
func WithWriteTimeout(d time.Duration) Option { return func(r *Reconciler) { r.writeTimeout = d } }

// New returns a Reconciler.
func New(page PageBridge, store Settings, opts ...Option) *Reconciler {
	r := &Reconciler{
		page:         page,
		store:        store,
		writeTimeout: 30 * time.Second,
		states:       make(map[string]State),
	}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// State returns the current state of app.
func (r *Reconciler) State(app string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[app]
}

// States returns a copy of every known state.
func (r *Reconciler) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.states))
	for k, v := range r.states {
		out[k] = v
	}
	return out
}

func (r *Reconciler) setState(app string, s State) {
	r.mu.Lock()
	r.states[app] = s
	r.mu.Unlock()
}

// Handle processes ev and returns the resulting state of ev.App. Apply, Reset
// and RemoveAll commit locally before returning; their page writes run in the
// background, in arrival order. Use Wait to drain them.
func (r *Reconciler) Handle(ctx context.Context, ev Event) State {
	switch ev.Kind {
	case EventPageLoad, EventTick:
		if ev.App == "" {
			r.resolveAll(ctx)
			return State{}
		}
		return r.resolve(ctx, ev.App)
	case EventApply:
		if strings.TrimSpace(ev.Value) == "" {
			return r.reset(ctx, ev.App)
		}
		return r.apply(ctx, ev.App, ev.Value)
	case EventReset:
		return r.reset(ctx, ev.App)
	case EventRemoveAll:
		r.removeAll(ctx)
		return r.State(ev.App)
	default:
		r.logger.Warn("reconcile: unknown event", "kind", ev.Kind)
		return r.State(ev.App)
	}
}

// resolve answers from the settings store when it holds a committed value and
// reads the page otherwise.
func (r *Reconciler) resolve(ctx context.Context, app string) State {
	if v := r.store.OverrideValue(app); v != "" {
		s := State{Phase: PhaseResolved, Value: v, Found: true, Local: true}
		r.setState(app, s)
		return s
	}

	r.setState(app, State{Phase: PhaseLoading})
	l := r.page.ReadOverride(ctx, app)
	s := fromLookup(l)
	r.setState(app, s)
	return s
}

// resolveAll resolves every displayed app with at most one page read.
func (r *Reconciler) resolveAll(ctx context.Context) {
	var remote []string
	for _, app := range r.store.SelectedApps() {
		if v := r.store.OverrideValue(app.Key); v != "" {
			r.setState(app.Key, State{Phase: PhaseResolved, Value: v, Found: true, Local: true})
			continue
		}
		remote = append(remote, app.Key)
		r.setState(app.Key, State{Phase: PhaseLoading})
	}
	if len(remote) == 0 {
		return
	}

	snap := r.page.ReadAll(ctx)
	for _, key := range remote {
		if snap.Err != nil {
			r.setState(key, State{Phase: PhaseUnknown, Err: snap.Err})
			continue
		}
		v, ok := snap.Entries.Get(key)
		r.setState(key, State{Phase: PhaseResolved, Value: v, Found: ok})
	}
}

func fromLookup(l bridge.Lookup) State {
	if l.Unknown() {
		return State{Phase: PhaseUnknown, Err: l.Err}
	}
	return State{Phase: PhaseResolved, Value: l.Value, Found: l.Found}
}

func (r *Reconciler) apply(ctx context.Context, app, value string) State {
	normalized := overrides.Normalize(strings.TrimSpace(value))
	r.store.SetOverrideValue(ctx, app, normalized)
	s := State{Phase: PhaseResolved, Value: normalized, Found: true, Local: true}
	r.setState(app, s)

	r.enqueue(ctx, EventApply, app, func(ctx context.Context) bridge.Mutation {
		return r.page.ApplyOverride(ctx, app, normalized)
	})
	return s
}

func (r *Reconciler) reset(ctx context.Context, app string) State {
	r.store.SetOverrideValue(ctx, app, "")
	s := State{Phase: PhaseResolved, Local: true}
	r.setState(app, s)

	r.enqueue(ctx, EventReset, app, func(ctx context.Context) bridge.Mutation {
		return r.page.ResetOverride(ctx, app)
	})
	return s
}

// removeAll clears the committed value of every tracked or displayed app,
// then removes the whole list from the page with a single write.
func (r *Reconciler) removeAll(ctx context.Context) {
	keys := lo.Uniq(append(
		r.store.TrackedKeys(),
		lo.Map(r.store.SelectedApps(), func(a settings.AppDescriptor, _ int) string { return a.Key })...,
	))
	r.store.ClearOverrideValues(ctx, keys)
	for _, k := range keys {
		r.setState(k, State{Phase: PhaseResolved, Local: true})
	}

	r.enqueue(ctx, EventRemoveAll, "", func(ctx context.Context) bridge.Mutation {
		return r.page.RemoveAllOverrides(ctx)
	})
}

// enqueue runs write in the background after every previously queued write.
// Failures are logged and never rolled back against the local commit.
func (r *Reconciler) enqueue(ctx context.Context, kind EventKind, app string, write func(context.Context) bridge.Mutation) {
	r.mu.Lock()
	prev := r.tail
	done := make(chan struct{})
	r.tail = done
	r.mu.Unlock()

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
		defer cancel()

		r.writeMu.Lock()
		m := write(wctx)
		r.writeMu.Unlock()

		if m.Err != nil {
			r.logger.Warn("reconcile: page write failed", "event", kind, "app", app, "error", m.Err)
		} else {
			r.logger.Debug("reconcile: page write", "event", kind, "app", app, "encoded", m.Encoded)
		}
		if r.observe != nil {
			r.observe(Write{Kind: kind, App: app, Result: m})
		}
	}()
}

// Wait blocks until every queued page write has finished.
func (r *Reconciler) Wait() {
	r.pending.Wait()
}

// Sync reloads the settings, then pushes every committed local value the
// page disagrees with. Local values win. It returns the apps it corrected.
func (r *Reconciler) Sync(ctx context.Context) ([]string, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	// A reset committed elsewhere must not be undone from a stale copy.
	if err := r.store.Reload(ctx); err != nil {
		return nil, fmt.Errorf("reload settings: %w", err)
	}

	snap := r.page.ReadAll(ctx)
	if snap.Err != nil {
		return nil, snap.Err
	}

	keys := r.store.TrackedKeys()
	slices.Sort(keys)

	var fixed []string
	var errs []error
	for _, key := range keys {
		want := r.store.OverrideValue(key)
		if want == "" {
			continue
		}
		if got, ok := snap.Entries.Get(key); ok && got == overrides.Normalize(want) {
			continue
		}
		if m := r.page.ApplyOverride(ctx, key, want); m.Err != nil {
			errs = append(errs, m.Err)
			continue
		}
		r.logger.Info("reconcile: restored local override", "app", key, "value", want)
		r.setState(key, State{Phase: PhaseResolved, Value: want, Found: true, Local: true})
		fixed = append(fixed, key)
	}
	return fixed, errors.Join(errs...)
}
