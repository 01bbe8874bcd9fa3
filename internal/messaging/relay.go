package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kernel/remote-override/internal/bridge"
	"github.com/kernel/remote-override/internal/reconcile"
	"github.com/kernel/remote-override/internal/settings"
	"github.com/samber/lo"
)

var (
	// ErrUnknownMessage is returned for an unrecognised request type.
	ErrUnknownMessage = errors.New("unknown message type")

	// ErrInvalidPayload is returned when a request's fields do not fit its type.
	ErrInvalidPayload = errors.New("invalid message payload")
)

// Store is the subset of *settings.Store the relay serves.
type Store interface {
	EnsureDefaults(ctx context.Context) bool
	SelectionData() settings.Envelope[settings.SelectionState]
	OverrideData() settings.Envelope[settings.OverrideState]
	ReplaceSelectionData(ctx context.Context, env settings.Envelope[settings.SelectionState])
	ReplaceOverrideData(ctx context.Context, env settings.Envelope[settings.OverrideState])
}

// Relay answers messages on behalf of the settings store and the active tab.
// It also keeps the last badge and fans it out to subscribers.
type Relay struct {
	store  Store
	page   reconcile.PageBridge
	logger *slog.Logger

	mu    sync.Mutex
	badge reconcile.Badge
	subs  map[string]chan reconcile.Badge
}

// NewRelay returns a Relay. logger may be nil.
func NewRelay(store Store, page reconcile.PageBridge, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		store:  store,
		page:   page,
		logger: logger,
		badge:  reconcile.Badge{Title: reconcile.DefaultTitle},
		subs:   make(map[string]chan reconcile.Badge),
	}
}

// Dispatch handles one request. Page failures are reported in the response;
// the returned error is reserved for malformed requests.
func (r *Relay) Dispatch(ctx context.Context, req Request) (Response, error) {
	r.logger.Debug("messaging: dispatch", "type", req.Type, "app", req.App)

	switch req.Type {
	case GetOverrideData:
		ovr, err := json.Marshal(r.store.OverrideData())
		if err != nil {
			return Response{}, err
		}
		sel, err := json.Marshal(r.store.SelectionData())
		if err != nil {
			return Response{}, err
		}
		return Response{OverrideData: ovr, AppSelectionData: sel}, nil

	case SetOverrideData:
		var env settings.Envelope[settings.OverrideState]
		if err := json.Unmarshal(req.Data, &env); err != nil {
			return Response{}, fmt.Errorf("%w: %s: %w", ErrInvalidPayload, req.Type, err)
		}
		r.store.ReplaceOverrideData(ctx, env)
		return Response{Success: lo.ToPtr(true)}, nil

	case SetAppSelectionData:
		var env settings.Envelope[settings.SelectionState]
		if err := json.Unmarshal(req.Data, &env); err != nil {
			return Response{}, fmt.Errorf("%w: %s: %w", ErrInvalidPayload, req.Type, err)
		}
		r.store.ReplaceSelectionData(ctx, env)
		return Response{Success: lo.ToPtr(true)}, nil

	case GetPageOverride:
		if req.App == "" {
			return Response{}, fmt.Errorf("%w: %s: app is required", ErrInvalidPayload, req.Type)
		}
		l := r.page.ReadOverride(ctx, req.App)
		resp := withError(Response{pageOverride: true}, l.Err)
		if l.Found {
			resp.OverrideValue = lo.ToPtr(l.Value)
		}
		return resp, nil

	case GetPageState:
		snap := r.page.ReadAll(ctx)
		if snap.Err != nil {
			return withError(Response{}, snap.Err), nil
		}
		return Response{Page: &snap.Page, Raw: snap.Raw, Present: snap.Present}, nil

	case UpdatePageOverride:
		if req.App == "" {
			return Response{}, fmt.Errorf("%w: %s: app is required", ErrInvalidPayload, req.Type)
		}
		var m bridge.Mutation
		switch req.Action {
		case ActionApply:
			m = r.page.ApplyOverride(ctx, req.App, req.Value)
		case ActionReset:
			m = r.page.ResetOverride(ctx, req.App)
		default:
			return Response{}, fmt.Errorf("%w: %s: action %q", ErrInvalidPayload, req.Type, req.Action)
		}
		return withError(Response{Success: lo.ToPtr(m.OK()), Result: m.Encoded}, m.Err), nil

	case RemoveAllOverrides:
		m := r.page.RemoveAllOverrides(ctx)
		return withError(Response{Success: lo.ToPtr(m.OK())}, m.Err), nil

	case SetBadge:
		r.publish(reconcile.Badge{HasOverride: req.HasOverride, Text: req.BadgeText, Title: req.Title})
		return Response{}, nil

	case InitializeStorage:
		if r.store.EnsureDefaults(ctx) {
			return Response{Success: lo.ToPtr(true), Message: "storage initialized with default apps"}, nil
		}
		return Response{Success: lo.ToPtr(true), Message: "storage already initialized"}, nil

	default:
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownMessage, req.Type)
	}
}

// SetBadge records b as if a SET_BADGE message had been received.
func (r *Relay) SetBadge(ctx context.Context, b reconcile.Badge) error {
	r.publish(b)
	return nil
}

// Badge returns the last published badge.
func (r *Relay) Badge() reconcile.Badge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.badge
}

// publish stores b and hands it to every subscriber. A subscriber that is
// not keeping up misses the update.
func (r *Relay) publish(b reconcile.Badge) {
	if b.HasOverride && b.Text != "" {
		b.Text = reconcile.ClampBadgeText(b.Text)
		if b.Title == "" {
			b.Title = reconcile.DefaultTitle
		}
	} else {
		b = reconcile.Badge{Title: reconcile.DefaultTitle}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.badge = b
	for id, ch := range r.subs {
		select {
		case ch <- b:
		default:
			r.logger.Debug("messaging: subscriber lagging, dropped badge", "subscriber", id)
		}
	}
}

// Subscribe registers for badge updates. The current badge is delivered
// first. cancel unregisters and closes the channel.
func (r *Relay) Subscribe() (id string, updates <-chan reconcile.Badge, cancel func()) {
	id = uuid.NewString()
	ch := make(chan reconcile.Badge, 8)

	r.mu.Lock()
	ch <- r.badge
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	return id, ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			close(ch)
			r.mu.Unlock()
		})
	}
}
