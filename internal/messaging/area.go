package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kernel/remote-override/internal/settings"
)

// ErrReadOnlyKey is returned when removing a record through the relay.
var ErrReadOnlyKey = errors.New("relay records cannot be removed")

// RemoteArea is a storage.Area backed by the relay's settings records, so a
// settings.Store in another process reads and writes the relay's state.
type RemoteArea struct {
	client *Client
}

// NewRemoteArea returns an area that persists through client.
func NewRemoteArea(client *Client) *RemoteArea {
	return &RemoteArea{client: client}
}

func (a *RemoteArea) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	resp, err := a.client.Dispatch(ctx, Request{Type: GetOverrideData})
	if err != nil {
		return nil, err
	}
	all := map[string]json.RawMessage{}
	if len(resp.AppSelectionData) > 0 && string(resp.AppSelectionData) != "{}" {
		all[settings.SelectionStorageKey] = resp.AppSelectionData
	}
	if len(resp.OverrideData) > 0 && string(resp.OverrideData) != "{}" {
		all[settings.OverrideStorageKey] = resp.OverrideData
	}

	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (a *RemoteArea) Set(ctx context.Context, items map[string]json.RawMessage) error {
	for k, v := range items {
		var t Type
		switch k {
		case settings.SelectionStorageKey:
			t = SetAppSelectionData
		case settings.OverrideStorageKey:
			t = SetOverrideData
		default:
			return fmt.Errorf("messaging: no message stores %q", k)
		}
		resp, err := a.client.Dispatch(ctx, Request{Type: t, Data: v})
		if err != nil {
			return err
		}
		if !resp.OK() {
			return fmt.Errorf("messaging: %s rejected", t)
		}
	}
	return nil
}

func (a *RemoteArea) Remove(ctx context.Context, keys ...string) error {
	return ErrReadOnlyKey
}

func (a *RemoteArea) Close() error { return nil }
