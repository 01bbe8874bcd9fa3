package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"

	kernel "github.com/kernel/kernel-go-sdk"
	"github.com/kernel/kernel-go-sdk/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type FakePlaywrightService struct {
	ExecuteFunc func(ctx context.Context, id string, body kernel.BrowserPlaywrightExecuteParams, opts ...option.RequestOption) (*kernel.BrowserPlaywrightExecuteResponse, error)
	Calls       []kernel.BrowserPlaywrightExecuteParams
}

func (f *FakePlaywrightService) Execute(ctx context.Context, id string, body kernel.BrowserPlaywrightExecuteParams, opts ...option.RequestOption) (*kernel.BrowserPlaywrightExecuteResponse, error) {
	f.Calls = append(f.Calls, body)
	if f.ExecuteFunc != nil {
		return f.ExecuteFunc(ctx, id, body, opts...)
	}
	return &kernel.BrowserPlaywrightExecuteResponse{Success: true}, nil
}

func TestKernelBrowser_ReadOverride(t *testing.T) {
	fake := &FakePlaywrightService{
		ExecuteFunc: func(ctx context.Context, id string, body kernel.BrowserPlaywrightExecuteParams, opts ...option.RequestOption) (*kernel.BrowserPlaywrightExecuteResponse, error) {
			assert.Equal(t, "browser-123", id)
			if strings.Contains(body.Code, locationScript) {
				return &kernel.BrowserPlaywrightExecuteResponse{
					Success: true,
					Result:  map[string]any{"value": `{"href":"https://ops.example.com/shift-manager","pathname":"/shift-manager","hostname":"ops.example.com"}`},
				}, nil
			}
			return &kernel.BrowserPlaywrightExecuteResponse{
				Success: true,
				Result:  map[string]any{"value": `{"found":true,"value":"shift-manager@v2,ride-plan@main"}`},
			}, nil
		},
	}

	b := New(NewKernelBrowser(fake, "browser-123"))
	got := b.ReadOverride(context.Background(), "ride-plan")

	require.NoError(t, got.Err)
	assert.True(t, got.Found)
	assert.Equal(t, "main", got.Value)
	assert.Len(t, fake.Calls, 2)
}

func TestKernelBrowser_NoActiveTab(t *testing.T) {
	fake := &FakePlaywrightService{
		ExecuteFunc: func(ctx context.Context, id string, body kernel.BrowserPlaywrightExecuteParams, opts ...option.RequestOption) (*kernel.BrowserPlaywrightExecuteResponse, error) {
			return &kernel.BrowserPlaywrightExecuteResponse{
				Success: true,
				Result:  map[string]any{"noActiveTab": true},
			}, nil
		},
	}

	got := New(NewKernelBrowser(fake, "browser-123")).ReadOverride(context.Background(), "ride-plan")
	assert.ErrorIs(t, got.Err, ErrNoActiveTab)
}

func TestKernelBrowser_MissingBrowserID(t *testing.T) {
	got := New(NewKernelBrowser(&FakePlaywrightService{}, "")).ApplyOverride(context.Background(), "a", "1")
	assert.ErrorIs(t, got.Err, ErrNoActiveTab)
}

func TestKernelBrowser_ExecutionFailure(t *testing.T) {
	fake := &FakePlaywrightService{
		ExecuteFunc: func(ctx context.Context, id string, body kernel.BrowserPlaywrightExecuteParams, opts ...option.RequestOption) (*kernel.BrowserPlaywrightExecuteResponse, error) {
			return &kernel.BrowserPlaywrightExecuteResponse{Success: false, Error: "Execution context was destroyed"}, nil
		},
	}

	got := New(NewKernelBrowser(fake, "browser-123")).ApplyOverride(context.Background(), "a", "1")
	assert.ErrorIs(t, got.Err, ErrInjectionFailed)
	assert.Contains(t, got.Err.Error(), "Execution context was destroyed")
}

func TestKernelBrowser_TransportError(t *testing.T) {
	fake := &FakePlaywrightService{
		ExecuteFunc: func(ctx context.Context, id string, body kernel.BrowserPlaywrightExecuteParams, opts ...option.RequestOption) (*kernel.BrowserPlaywrightExecuteResponse, error) {
			return nil, errors.New("connection reset")
		},
	}

	got := New(NewKernelBrowser(fake, "browser-123")).RemoveAllOverrides(context.Background())
	assert.ErrorIs(t, got.Err, ErrInjectionFailed)
}
