// Package settings owns the tool's persisted state: the configured apps,
// which of them are displayed and in what order, and the per-app override
// records (committed value, draft inputs, value history).
package settings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// AppDescriptor describes one overridable application.
type AppDescriptor struct {
	ID    int    `json:"id" yaml:"id"`
	App   string `json:"app" yaml:"app"`
	Label string `json:"label" yaml:"label"`
	Key   string `json:"key" yaml:"key"`
	Path  string `json:"path" yaml:"path"`
}

// NewApp is the input for AddApp. The id is assigned by the store.
type NewApp struct {
	App   string `json:"app" yaml:"app"`
	Label string `json:"label" yaml:"label"`
	Key   string `json:"key" yaml:"key"`
	Path  string `json:"path" yaml:"path"`
}

var builtinApps = [...]AppDescriptor{
	{ID: 1, App: "Rp", Label: "Ride Plan", Key: "ride-plan", Path: "/planning/ride-planner"},
	{ID: 2, App: "Neo", Label: "Neo", Key: "via-hub-dev", Path: "/network-optimizer"},
	{ID: 5, App: "Sm", Label: "Shift Manager", Key: "shift-manager", Path: "/shift-manager"},
	{ID: 3, App: "Fl", Label: "Flexity", Key: "configuration-service", Path: "/configuration-service"},
}

// DefaultApps returns a fresh copy of the built-in app table.
func DefaultApps() []AppDescriptor {
	out := make([]AppDescriptor, len(builtinApps))
	copy(out, builtinApps[:])
	return out
}

var (
	// ErrDuplicateKey is returned when an app key is already taken.
	ErrDuplicateKey = errors.New("app key already exists")

	// ErrBuiltinApp is returned when deleting a built-in app.
	ErrBuiltinApp = errors.New("built-in apps cannot be deleted")

	// ErrUnknownApp is returned for keys that match no app.
	ErrUnknownApp = errors.New("unknown app")

	// ErrInvalidSlot is returned for draft slots outside [0, DraftSlots).
	ErrInvalidSlot = errors.New("invalid draft slot")
)

// ValidationError lists every problem found with a new app.
type ValidationError struct {
	Problems []string
	err      error
}

func (e *ValidationError) Error() string {
	return "invalid app: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return e.err }

// ValidateApp checks a new app against the existing ones and returns the
// problems found, in form order. An empty result means the app can be added.
func ValidateApp(app NewApp, existing []AppDescriptor) []string {
	var problems []string
	if strings.TrimSpace(app.App) == "" {
		problems = append(problems, "app code is required")
	}
	if strings.TrimSpace(app.Label) == "" {
		problems = append(problems, "label is required")
	}
	switch {
	case strings.TrimSpace(app.Key) == "":
		problems = append(problems, "key is required")
	case strings.ContainsAny(app.Key, ",@"):
		problems = append(problems, "key must not contain ',' or '@'")
	case lo.ContainsBy(existing, func(a AppDescriptor) bool { return a.Key == app.Key }):
		problems = append(problems, fmt.Sprintf("an app with key %q already exists", app.Key))
	}
	if strings.TrimSpace(app.Path) == "" {
		problems = append(problems, "path is required")
	}
	return problems
}

func isDuplicate(app NewApp, existing []AppDescriptor) bool {
	return lo.ContainsBy(existing, func(a AppDescriptor) bool { return a.Key == app.Key })
}

func nextID(apps []AppDescriptor) int {
	if len(apps) == 0 {
		return 1
	}
	return lo.Max(lo.Map(apps, func(a AppDescriptor, _ int) int { return a.ID })) + 1
}
