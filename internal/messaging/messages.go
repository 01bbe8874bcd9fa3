// Package messaging defines the request/response messages exchanged between
// the CLI, the page watcher and the relay, and implements the relay itself.
package messaging

import (
	"encoding/json"
	"errors"

	"github.com/kernel/remote-override/internal/bridge"
)

// Type tags a Request.
type Type string

const (
	GetOverrideData     Type = "GET_OVERRIDE_DATA"
	SetOverrideData     Type = "SET_OVERRIDE_DATA"
	SetAppSelectionData Type = "SET_APP_SELECTION_DATA"
	GetPageOverride     Type = "GET_PAGE_OVERRIDE"
	UpdatePageOverride  Type = "UPDATE_PAGE_OVERRIDE"
	RemoveAllOverrides  Type = "REMOVE_ALL_OVERRIDES"
	SetBadge            Type = "SET_BADGE"
	InitializeStorage   Type = "INITIALIZE_STORAGE"
	// GetPageState returns the location and raw override list of the active
	// tab in one round trip.
	GetPageState Type = "GET_PAGE_STATE"
)

// Actions accepted by UPDATE_PAGE_OVERRIDE.
const (
	ActionApply = "apply"
	ActionReset = "reset"
)

// Request is a tagged union dispatched on Type. Only the fields of the
// given type are read.
type Request struct {
	Type Type `json:"type"`

	// SET_OVERRIDE_DATA, SET_APP_SELECTION_DATA
	Data json.RawMessage `json:"data,omitempty"`

	// GET_PAGE_OVERRIDE, UPDATE_PAGE_OVERRIDE
	App    string `json:"app,omitempty"`
	Action string `json:"action,omitempty"`
	Value  string `json:"value,omitempty"`

	// SET_BADGE
	HasOverride bool   `json:"hasOverride,omitempty"`
	BadgeText   string `json:"badgeText,omitempty"`
	Title       string `json:"title,omitempty"`
}

// ErrorCode classifies page failures so they survive the wire.
type ErrorCode string

const (
	CodeNoActiveTab     ErrorCode = "NoActiveTab"
	CodeInjectionFailed ErrorCode = "InjectionFailed"
)

// Response carries the fields of every response shape. Unset fields are
// omitted from the JSON.
type Response struct {
	OverrideData     json.RawMessage `json:"overrideData,omitempty"`
	AppSelectionData json.RawMessage `json:"appSelectionData,omitempty"`

	Success       *bool   `json:"success,omitempty"`
	OverrideValue *string `json:"overrideValue,omitempty"`
	Result        string  `json:"result,omitempty"`
	Message       string  `json:"message,omitempty"`

	Error     string    `json:"error,omitempty"`
	ErrorCode ErrorCode `json:"errorCode,omitempty"`

	// GET_PAGE_STATE
	Page    *bridge.PageInfo `json:"page,omitempty"`
	Raw     string           `json:"raw,omitempty"`
	Present bool             `json:"present,omitempty"`

	// pageOverride marks a GET_PAGE_OVERRIDE answer, which always carries
	// overrideValue, null when the page has none.
	pageOverride bool
}

func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	if !r.pageOverride {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		plain
		OverrideValue *string `json:"overrideValue"`
	}{plain(r), r.OverrideValue})
}

// OK reports whether the response signals success. Responses without a
// success field are OK unless they carry an error.
func (r Response) OK() bool {
	if r.Success != nil {
		return *r.Success
	}
	return r.Error == ""
}

// Err rebuilds the page error carried by r, or returns nil.
func (r Response) Err() error {
	if r.Error == "" && r.ErrorCode == "" {
		return nil
	}
	return &RemoteError{Code: r.ErrorCode, Message: r.Error}
}

// RemoteError is a page failure reported by the relay. It unwraps to the
// matching bridge sentinel.
type RemoteError struct {
	Code    ErrorCode
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodeNoActiveTab:
		return bridge.ErrNoActiveTab
	case CodeInjectionFailed:
		return bridge.ErrInjectionFailed
	default:
		return nil
	}
}

func withError(r Response, err error) Response {
	if err == nil {
		return r
	}
	r.Error = err.Error()
	switch {
	case errors.Is(err, bridge.ErrNoActiveTab):
		r.ErrorCode = CodeNoActiveTab
	case errors.Is(err, bridge.ErrInjectionFailed):
		r.ErrorCode = CodeInjectionFailed
	}
	return r
}
