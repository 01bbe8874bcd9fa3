package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kernel "github.com/kernel/kernel-go-sdk"
	"github.com/kernel/kernel-go-sdk/option"
)

// PlaywrightService defines the subset of the Kernel SDK Playwright client that we use.
type PlaywrightService interface {
	Execute(ctx context.Context, id string, body kernel.BrowserPlaywrightExecuteParams, opts ...option.RequestOption) (*kernel.BrowserPlaywrightExecuteResponse, error)
}

// KernelBrowser runs page functions inside a Kernel cloud browser through the
// Playwright execution API.
type KernelBrowser struct {
	playwright PlaywrightService
	browserID  string
	timeoutSec int64
}

// NewKernelBrowser returns a Browser bound to one Kernel browser session.
func NewKernelBrowser(playwright PlaywrightService, browserID string) *KernelBrowser {
	return &KernelBrowser{playwright: playwright, browserID: browserID, timeoutSec: 30}
}

// ActiveTab returns a handle on the session. The visible page is resolved on
// every call because the user may switch tabs between operations.
func (k *KernelBrowser) ActiveTab(ctx context.Context) (Tab, error) {
	if k.browserID == "" {
		return nil, fmt.Errorf("%w: no kernel browser id configured", ErrNoActiveTab)
	}
	return &kernelTab{browser: k}, nil
}

// kernelScript wraps a page function in Playwright code that picks the
// visible page and evaluates the function there.
const kernelScript = `
const fn = %s;
const args = %s;
const reload = %t;
let target = null;
for (const p of context.pages()) {
  try {
    if (await p.evaluate(() => document.visibilityState) === 'visible') {
      target = p;
      break;
    }
  } catch (e) {}
}
if (!target) {
  return { noActiveTab: true };
}
if (reload) {
  await target.reload();
  return { value: "" };
}
return { value: await target.evaluate(fn, args) };
`

type kernelResult struct {
	NoActiveTab bool   `json:"noActiveTab"`
	Value       string `json:"value"`
}

type kernelTab struct {
	browser *KernelBrowser
}

func (t *kernelTab) ID() string { return t.browser.browserID }

func (t *kernelTab) run(ctx context.Context, script string, args map[string]any, reload bool) (string, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode arguments: %w", err)
	}
	code := fmt.Sprintf(kernelScript, script, argsJSON, reload)

	resp, err := t.browser.playwright.Execute(ctx, t.browser.browserID, kernel.BrowserPlaywrightExecuteParams{
		Code:       code,
		TimeoutSec: kernel.Opt(t.browser.timeoutSec),
	})
	if err != nil {
		return "", err
	}
	if !resp.Success {
		if resp.Error != "" {
			return "", errors.New(resp.Error)
		}
		return "", errors.New("playwright execution failed")
	}

	var res kernelResult
	if resp.Result != nil {
		b, err := json.Marshal(resp.Result)
		if err != nil {
			return "", fmt.Errorf("failed to parse result: %w", err)
		}
		if err := json.Unmarshal(b, &res); err != nil {
			return "", fmt.Errorf("failed to parse result: %w", err)
		}
	}
	if res.NoActiveTab {
		return "", ErrNoActiveTab
	}
	return res.Value, nil
}

func (t *kernelTab) eval(ctx context.Context, script string, args map[string]any, out any) error {
	raw, err := t.run(ctx, script, args, false)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

func (t *kernelTab) Location(ctx context.Context) (PageInfo, error) {
	var info PageInfo
	err := t.eval(ctx, locationScript, map[string]any{}, &info)
	return info, err
}

func (t *kernelTab) GetItem(ctx context.Context, key string) (string, bool, error) {
	var res getItemResult
	if err := t.eval(ctx, storageGetScript, map[string]any{"key": key}, &res); err != nil {
		return "", false, err
	}
	return res.Value, res.Found, nil
}

func (t *kernelTab) SetItems(ctx context.Context, items map[string]string) error {
	return t.eval(ctx, storageSetScript, map[string]any{"items": items}, nil)
}

func (t *kernelTab) RemoveItems(ctx context.Context, keys ...string) error {
	return t.eval(ctx, storageRemoveScript, map[string]any{"keys": keys}, nil)
}

func (t *kernelTab) ShowBanner(ctx context.Context, b Banner) (bool, error) {
	var res bannerResult
	args := map[string]any{
		"currentApp":   b.CurrentApp,
		"currentValue": b.CurrentValue,
		"count":        b.Count,
	}
	if err := t.eval(ctx, bannerScript, args, &res); err != nil {
		return false, err
	}
	return res.Injected, nil
}

func (t *kernelTab) Reload(ctx context.Context) error {
	_, err := t.run(ctx, "null", map[string]any{}, true)
	return err
}
