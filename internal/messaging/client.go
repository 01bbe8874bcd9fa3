package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kernel/remote-override/internal/bridge"
	"github.com/kernel/remote-override/internal/overrides"
	"github.com/kernel/remote-override/internal/reconcile"
)

// ErrRelayUnavailable is returned when the relay cannot be reached.
var ErrRelayUnavailable = errors.New("relay unavailable")

// Client talks to a running relay. It implements reconcile.PageBridge and
// reconcile.BadgeSink so the CLI can use a relay in place of a local browser.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client. Default: 30s timeout.
func WithHTTPClient(h *http.Client) ClientOption { return func(c *Client) { c.http = h } }

// NewClient returns a client for the relay at baseURL, e.g.
// "http://127.0.0.1:7788".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Dispatch sends req to the relay.
func (c *Client) Dispatch(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrRelayUnavailable, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrRelayUnavailable, err)
	}
	if res.StatusCode != http.StatusOK {
		var e errorBody
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			if res.StatusCode == http.StatusBadRequest && strings.Contains(e.Error, ErrUnknownMessage.Error()) {
				return Response{}, fmt.Errorf("%w: %s", ErrUnknownMessage, e.Error)
			}
			return Response{}, fmt.Errorf("relay: %s (status %d)", e.Error, res.StatusCode)
		}
		return Response{}, fmt.Errorf("relay: unexpected status %d", res.StatusCode)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("relay: decode response: %w", err)
	}
	return resp, nil
}

// Badge returns the last badge published to the relay.
func (c *Client) Badge(ctx context.Context) (reconcile.Badge, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/badge", nil)
	if err != nil {
		return reconcile.Badge{}, err
	}
	res, err := c.http.Do(httpReq)
	if err != nil {
		return reconcile.Badge{}, fmt.Errorf("%w: %w", ErrRelayUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return reconcile.Badge{}, fmt.Errorf("relay: unexpected status %d", res.StatusCode)
	}
	var b reconcile.Badge
	if err := json.NewDecoder(res.Body).Decode(&b); err != nil {
		return reconcile.Badge{}, fmt.Errorf("relay: decode badge: %w", err)
	}
	return b, nil
}

// SetBadge publishes b through a SET_BADGE message.
func (c *Client) SetBadge(ctx context.Context, b reconcile.Badge) error {
	_, err := c.Dispatch(ctx, Request{Type: SetBadge, HasOverride: b.HasOverride, BadgeText: b.Text, Title: b.Title})
	return err
}

// Initialize sends INITIALIZE_STORAGE and returns the relay's message.
func (c *Client) Initialize(ctx context.Context) (string, error) {
	resp, err := c.Dispatch(ctx, Request{Type: InitializeStorage})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) ReadOverride(ctx context.Context, appKey string) bridge.Lookup {
	resp, err := c.Dispatch(ctx, Request{Type: GetPageOverride, App: appKey})
	if err != nil {
		return bridge.Lookup{App: appKey, Err: err}
	}
	if err := resp.Err(); err != nil {
		return bridge.Lookup{App: appKey, Err: err}
	}
	if resp.OverrideValue == nil {
		return bridge.Lookup{App: appKey}
	}
	return bridge.Lookup{App: appKey, Value: *resp.OverrideValue, Found: true}
}

func (c *Client) ReadAll(ctx context.Context) bridge.Snapshot {
	resp, err := c.Dispatch(ctx, Request{Type: GetPageState})
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		return bridge.Snapshot{Entries: overrides.NewEntries(), Err: err}
	}
	snap := bridge.Snapshot{Raw: resp.Raw, Present: resp.Present, Entries: overrides.Decode(resp.Raw)}
	if resp.Page != nil {
		snap.Page = *resp.Page
	}
	return snap
}

func (c *Client) ApplyOverride(ctx context.Context, appKey, value string) bridge.Mutation {
	return c.mutate(ctx, Request{Type: UpdatePageOverride, App: appKey, Action: ActionApply, Value: value})
}

func (c *Client) ResetOverride(ctx context.Context, appKey string) bridge.Mutation {
	return c.mutate(ctx, Request{Type: UpdatePageOverride, App: appKey, Action: ActionReset})
}

func (c *Client) RemoveAllOverrides(ctx context.Context) bridge.Mutation {
	return c.mutate(ctx, Request{Type: RemoveAllOverrides})
}

func (c *Client) mutate(ctx context.Context, req Request) bridge.Mutation {
	resp, err := c.Dispatch(ctx, req)
	if err != nil {
		return bridge.Mutation{Err: err}
	}
	if err := resp.Err(); err != nil {
		return bridge.Mutation{Err: err}
	}
	if !resp.OK() {
		return bridge.Mutation{Err: fmt.Errorf("relay: %s failed", req.Type)}
	}
	return bridge.Mutation{Encoded: resp.Result}
}
