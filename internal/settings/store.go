package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/kernel/remote-override/internal/storage"
	"github.com/samber/lo"
)

const (
	// SelectionStorageKey holds the app list, selection and order.
	SelectionStorageKey = "app-selection-storage"

	// OverrideStorageKey holds the per-app override records and autorefresh.
	OverrideStorageKey = "override-storage"

	stateVersion = 0
)

// Envelope is the persisted form of a record: {state, version}.
type Envelope[T any] struct {
	State   T   `json:"state"`
	Version int `json:"version"`
}

// SelectionState is the app-selection-storage record.
type SelectionState struct {
	SelectedApps []string        `json:"selectedApps"`
	Apps         []AppDescriptor `json:"apps"`
	AppOrder     []string        `json:"appOrder"`
}

// OverrideState is the override-storage record.
type OverrideState struct {
	Overrides   map[string]OverrideRecord `json:"overrides"`
	Autorefresh bool                      `json:"autorefresh"`
}

// Store holds the settings in memory and writes the whole snapshot back to
// the storage area after every mutation. Reads never touch storage.
//
// Mutations always succeed locally. Persistence failures are logged.
type Store struct {
	mu      sync.RWMutex
	area    storage.Area
	builtin []AppDescriptor
	logger  *slog.Logger

	sel SelectionState
	ovr OverrideState
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// New returns a Store backed by area. builtin is the immutable seed table,
// usually DefaultApps().
func New(area storage.Area, builtin []AppDescriptor, opts ...Option) *Store {
	s := &Store{
		area:    area,
		builtin: append([]AppDescriptor(nil), builtin...),
		ovr:     OverrideState{Overrides: map[string]OverrideRecord{}},
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// EnsureDefaults loads the persisted state and seeds the built-in apps, a full
// selection and identity ordering when nothing was persisted yet. It also
// restores built-in apps missing from an older snapshot. Safe to call on every
// startup. It reports whether anything had to be written.
func (s *Store) EnsureDefaults(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.loadLocked(ctx)
	if err != nil {
		s.logger.Warn("settings: load failed, using defaults", "error", err)
	}

	changed := true
	if found {
		changed = s.repairLocked()
	} else {
		s.sel = SelectionState{
			Apps:         append([]AppDescriptor(nil), s.builtin...),
			SelectedApps: lo.Map(s.builtin, func(a AppDescriptor, _ int) string { return a.Key }),
			AppOrder:     lo.Map(s.builtin, func(a AppDescriptor, _ int) string { return a.Key }),
		}
	}

	if changed {
		s.persistLocked(ctx)
	}
	return changed
}

// repairLocked restores missing built-in apps and makes appOrder a
// permutation of the known keys. It reports whether anything changed.
func (s *Store) repairLocked() bool {
	changed := false
	for _, b := range s.builtin {
		if s.knownLocked(b.Key) {
			continue
		}
		s.sel.Apps = append(s.sel.Apps, b)
		s.sel.SelectedApps = append(s.sel.SelectedApps, b.Key)
		changed = true
	}

	keys := lo.Map(s.sel.Apps, func(a AppDescriptor, _ int) string { return a.Key })
	order := lo.Uniq(lo.Filter(s.sel.AppOrder, func(k string, _ int) bool { return lo.Contains(keys, k) }))
	order = append(order, lo.Without(keys, order...)...)
	if !slices.Equal(order, s.sel.AppOrder) {
		s.sel.AppOrder = order
		changed = true
	}

	selected := lo.Uniq(lo.Filter(s.sel.SelectedApps, func(k string, _ int) bool { return lo.Contains(keys, k) }))
	if !slices.Equal(selected, s.sel.SelectedApps) {
		s.sel.SelectedApps = selected
		changed = true
	}
	return changed
}

// Reload re-reads persisted state written by another process.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.loadLocked(ctx)
	return err
}

// loadLocked reads both records. It reports whether the selection record
// existed.
func (s *Store) loadLocked(ctx context.Context) (bool, error) {
	docs, err := s.area.Get(ctx, SelectionStorageKey, OverrideStorageKey)
	if err != nil {
		return false, fmt.Errorf("settings: load: %w", err)
	}

	found := false
	if raw, ok := docs[SelectionStorageKey]; ok {
		var env Envelope[SelectionState]
		if err := json.Unmarshal(raw, &env); err != nil {
			return false, fmt.Errorf("settings: decode %s: %w", SelectionStorageKey, err)
		}
		s.sel = env.State
		found = true
	}
	if raw, ok := docs[OverrideStorageKey]; ok {
		var env Envelope[OverrideState]
		if err := json.Unmarshal(raw, &env); err != nil {
			return found, fmt.Errorf("settings: decode %s: %w", OverrideStorageKey, err)
		}
		s.ovr = env.State
	}
	if s.ovr.Overrides == nil {
		s.ovr.Overrides = map[string]OverrideRecord{}
	}
	return found, nil
}

func (s *Store) persistLocked(ctx context.Context) {
	sel, err := json.Marshal(Envelope[SelectionState]{State: s.sel, Version: stateVersion})
	if err != nil {
		s.logger.Error("settings: encode selection", "error", err)
		return
	}
	ovr, err := json.Marshal(Envelope[OverrideState]{State: s.ovr, Version: stateVersion})
	if err != nil {
		s.logger.Error("settings: encode overrides", "error", err)
		return
	}
	if err := s.area.Set(ctx, map[string]json.RawMessage{
		SelectionStorageKey: sel,
		OverrideStorageKey:  ovr,
	}); err != nil {
		s.logger.Warn("settings: persist failed", "error", err)
	}
}

// --- Apps and selection ---

// AllApps returns every known app ordered by appOrder.
func (s *Store) AllApps() []AppDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allAppsLocked()
}

func (s *Store) allAppsLocked() []AppDescriptor {
	byKey := lo.KeyBy(s.sel.Apps, func(a AppDescriptor) string { return a.Key })
	out := make([]AppDescriptor, 0, len(s.sel.Apps))
	for _, k := range s.sel.AppOrder {
		if a, ok := byKey[k]; ok {
			out = append(out, a)
			delete(byKey, k)
		}
	}
	// Apps missing from the order are still listed, after the ordered ones.
	for _, a := range s.sel.Apps {
		if _, ok := byKey[a.Key]; ok {
			out = append(out, a)
		}
	}
	return out
}

// SelectedApps returns the visible apps in display order.
func (s *Store) SelectedApps() []AppDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Filter(s.allAppsLocked(), func(a AppDescriptor, _ int) bool {
		return lo.Contains(s.sel.SelectedApps, a.Key)
	})
}

// App returns the app with key.
func (s *Store) App(key string) (AppDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Find(s.sel.Apps, func(a AppDescriptor) bool { return a.Key == key })
}

// IsSelected reports whether key is visible.
func (s *Store) IsSelected(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Contains(s.sel.SelectedApps, key)
}

// IsCustomApp reports whether key is not one of the built-in apps.
func (s *Store) IsCustomApp(key string) bool {
	return !lo.ContainsBy(s.builtin, func(a AppDescriptor) bool { return a.Key == key })
}

// AddApp validates app, assigns the next id and appends it to the app list,
// the order and the selection. Nothing changes when validation fails.
func (s *Store) AddApp(ctx context.Context, app NewApp) (AppDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if problems := ValidateApp(app, s.sel.Apps); len(problems) > 0 {
		verr := &ValidationError{Problems: problems}
		if isDuplicate(app, s.sel.Apps) {
			verr.err = ErrDuplicateKey
		}
		return AppDescriptor{}, verr
	}

	added := AppDescriptor{
		ID:    nextID(s.sel.Apps),
		App:   app.App,
		Label: app.Label,
		Key:   app.Key,
		Path:  app.Path,
	}
	next := s.selectionCopyLocked()
	next.Apps = append(next.Apps, added)
	next.AppOrder = append(next.AppOrder, added.Key)
	next.SelectedApps = append(next.SelectedApps, added.Key)
	s.sel = next
	s.persistLocked(ctx)
	return added, nil
}

// DeleteApp removes a custom app together with its override record.
func (s *Store) DeleteApp(ctx context.Context, key string) error {
	if !s.IsCustomApp(key) {
		return fmt.Errorf("%w: %s", ErrBuiltinApp, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !lo.ContainsBy(s.sel.Apps, func(a AppDescriptor) bool { return a.Key == key }) {
		return fmt.Errorf("%w: %s", ErrUnknownApp, key)
	}
	next := s.selectionCopyLocked()
	next.Apps = lo.Reject(next.Apps, func(a AppDescriptor, _ int) bool { return a.Key == key })
	next.AppOrder = lo.Without(next.AppOrder, key)
	next.SelectedApps = lo.Without(next.SelectedApps, key)
	s.sel = next

	ovr := s.overrideCopyLocked()
	delete(ovr.Overrides, key)
	s.ovr = ovr

	s.persistLocked(ctx)
	return nil
}

// ToggleApp flips the visibility of key. Unknown keys are ignored.
func (s *Store) ToggleApp(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.knownLocked(key) {
		return
	}
	next := s.selectionCopyLocked()
	if lo.Contains(next.SelectedApps, key) {
		next.SelectedApps = lo.Without(next.SelectedApps, key)
	} else {
		next.SelectedApps = append(next.SelectedApps, key)
	}
	s.sel = next
	s.persistLocked(ctx)
}

// SetSelectedApps replaces the visible set. Unknown keys are dropped.
func (s *Store) SetSelectedApps(ctx context.Context, keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.selectionCopyLocked()
	next.SelectedApps = lo.Uniq(lo.Filter(keys, func(k string, _ int) bool { return s.knownLocked(k) }))
	s.sel = next
	s.persistLocked(ctx)
}

// Reorder moves dragged to target's current position. It is a no-op when
// either key is missing from the order or they are equal.
func (s *Store) Reorder(ctx context.Context, dragged, target string) {
	if dragged == target {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from := lo.IndexOf(s.sel.AppOrder, dragged)
	to := lo.IndexOf(s.sel.AppOrder, target)
	if from == -1 || to == -1 {
		return
	}

	next := s.selectionCopyLocked()
	order := append(next.AppOrder[:from:from], next.AppOrder[from+1:]...)
	order = append(order[:to], append([]string{dragged}, order[to:]...)...)
	next.AppOrder = order
	s.sel = next
	s.persistLocked(ctx)
}

func (s *Store) knownLocked(key string) bool {
	return lo.ContainsBy(s.sel.Apps, func(a AppDescriptor) bool { return a.Key == key })
}

func (s *Store) selectionCopyLocked() SelectionState {
	return SelectionState{
		SelectedApps: append([]string(nil), s.sel.SelectedApps...),
		Apps:         append([]AppDescriptor(nil), s.sel.Apps...),
		AppOrder:     append([]string(nil), s.sel.AppOrder...),
	}
}

// --- Override records ---

// Record returns the override record of key.
func (s *Store) Record(key string) (OverrideRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.ovr.Overrides[key]
	return r.clone(), ok
}

// OverrideValue returns the committed override of key, empty when none.
func (s *Store) OverrideValue(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ovr.Overrides[key].Override
}

// TrackedKeys returns the keys that have an override record.
func (s *Store) TrackedKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Keys(s.ovr.Overrides)
}

// RecordDraftEdit stores value in the draft slot of key. The record is
// created on first use.
func (s *Store) RecordDraftEdit(ctx context.Context, key string, slot int, value string) error {
	if slot < 0 || slot >= DraftSlots {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	s.updateRecord(ctx, key, func(r OverrideRecord) OverrideRecord {
		return r.withDraft(slot, value)
	})
	return nil
}

// CommitDrafts adds the current draft inputs of key to its value history.
func (s *Store) CommitDrafts(ctx context.Context, key string) {
	s.updateRecord(ctx, key, OverrideRecord.withCommittedDrafts)
}

// SelectDraft picks which draft slot Apply uses.
func (s *Store) SelectDraft(ctx context.Context, key string, slot int) error {
	if slot < 0 || slot >= DraftSlots {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	s.updateRecord(ctx, key, func(r OverrideRecord) OverrideRecord {
		r.Selection = slot
		return r
	})
	return nil
}

// SetOverrideValue commits value as the override of key. An empty value
// clears it.
func (s *Store) SetOverrideValue(ctx context.Context, key, value string) {
	s.updateRecord(ctx, key, func(r OverrideRecord) OverrideRecord {
		r.Override = value
		return r
	})
}

// ClearOverrideValues empties the committed override of every key that has a
// record. Keys without a record are skipped.
func (s *Store) ClearOverrideValues(ctx context.Context, keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.overrideCopyLocked()
	for _, k := range keys {
		r, ok := next.Overrides[k]
		if !ok {
			continue
		}
		r.Override = ""
		next.Overrides[k] = r
	}
	s.ovr = next
	s.persistLocked(ctx)
}

func (s *Store) updateRecord(ctx context.Context, key string, fn func(OverrideRecord) OverrideRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.overrideCopyLocked()
	next.Overrides[key] = fn(next.Overrides[key].clone())
	s.ovr = next
	s.persistLocked(ctx)
}

func (s *Store) overrideCopyLocked() OverrideState {
	out := OverrideState{
		Overrides:   make(map[string]OverrideRecord, len(s.ovr.Overrides)),
		Autorefresh: s.ovr.Autorefresh,
	}
	for k, v := range s.ovr.Overrides {
		out.Overrides[k] = v.clone()
	}
	return out
}

// Autorefresh reports whether the active tab reloads after committed edits.
func (s *Store) Autorefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ovr.Autorefresh
}

// SetAutorefresh toggles autorefresh.
func (s *Store) SetAutorefresh(ctx context.Context, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.overrideCopyLocked()
	next.Autorefresh = on
	s.ovr = next
	s.persistLocked(ctx)
}

// --- Raw records ---

// SelectionData returns the app-selection-storage record.
func (s *Store) SelectionData() Envelope[SelectionState] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Envelope[SelectionState]{State: s.selectionCopyLocked(), Version: stateVersion}
}

// OverrideData returns the override-storage record.
func (s *Store) OverrideData() Envelope[OverrideState] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Envelope[OverrideState]{State: s.overrideCopyLocked(), Version: stateVersion}
}

// ReplaceSelectionData overwrites the app-selection-storage record. Built-in
// apps are always kept.
func (s *Store) ReplaceSelectionData(ctx context.Context, env Envelope[SelectionState]) {
	s.mu.Lock()
	s.sel = SelectionState{
		SelectedApps: append([]string(nil), env.State.SelectedApps...),
		Apps:         append([]AppDescriptor(nil), env.State.Apps...),
		AppOrder:     append([]string(nil), env.State.AppOrder...),
	}
	s.repairLocked()
	s.persistLocked(ctx)
	s.mu.Unlock()
}

// ReplaceOverrideData overwrites the override-storage record.
func (s *Store) ReplaceOverrideData(ctx context.Context, env Envelope[OverrideState]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := OverrideState{
		Overrides:   make(map[string]OverrideRecord, len(env.State.Overrides)),
		Autorefresh: env.State.Autorefresh,
	}
	for k, v := range env.State.Overrides {
		next.Overrides[k] = v.clone()
	}
	s.ovr = next
	s.persistLocked(ctx)
}
