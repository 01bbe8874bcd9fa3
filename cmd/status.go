package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/kernel/remote-override/internal/bridge"
	"github.com/kernel/remote-override/internal/reconcile"
	"github.com/kernel/remote-override/internal/settings"
	"github.com/kernel/remote-override/pkg/util"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// StatusPage is the subset of the page bridge used by the status command.
type StatusPage interface {
	ReadAll(ctx context.Context) bridge.Snapshot
}

// StatusStore is the subset of the settings store used by the status command.
type StatusStore interface {
	AllApps() []settings.AppDescriptor
}

// StatusCmd shows what the badge and the page banner say for the active tab.
type StatusCmd struct {
	store StatusStore
	page  StatusPage
}

type StatusInput struct {
	Output string
}

type statusEntry struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Current bool   `json:"current"`
}

type statusResponse struct {
	Page      bridge.PageInfo `json:"page"`
	Badge     reconcile.Badge `json:"badge"`
	Banner    bridge.Banner   `json:"banner"`
	Overrides []statusEntry   `json:"overrides"`
}

// Colors match the in-page banner and the extension badge.
var (
	currentDot = pterm.NewRGB(181, 159, 0)
	otherDot   = pterm.NewRGB(36, 99, 235)
	noneDot    = pterm.NewRGB(128, 128, 128)

	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#b59f00")).
			Background(lipgloss.Color("#fffbe6")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#ffe58f")).
			Padding(0, 1)
)

func coloredDot(rgb pterm.RGB) string {
	return rgb.Sprint("●")
}

// bannerLines returns the text of the in-page banner.
func bannerLines(b bridge.Banner) []string {
	current := "Unknown app: create new app in the extension settings"
	switch {
	case b.CurrentValue != "":
		current = "Current override: " + b.CurrentApp + "@" + b.CurrentValue
	case b.CurrentApp != "":
		current = "Current override: none"
	}
	return []string{current, "All overrides count: " + strconv.Itoa(b.Count)}
}

func (c StatusCmd) Status(ctx context.Context, in StatusInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}

	snap := c.page.ReadAll(ctx)
	if snap.Err != nil {
		pterm.Error.Println("Could not read overrides from the active tab.")
		return snap.Err
	}

	badge, banner := reconcile.Derive(snap, c.store.AllApps())
	resp := statusResponse{Page: snap.Page, Badge: badge, Banner: banner, Overrides: []statusEntry{}}
	for _, key := range snap.Entries.Keys() {
		v, _ := snap.Entries.Get(key)
		resp.Overrides = append(resp.Overrides, statusEntry{Key: key, Value: v, Current: key == banner.CurrentApp})
	}

	if in.Output == "json" {
		return util.PrintJSON(resp)
	}
	printStatus(resp)
	return nil
}

func printStatus(resp statusResponse) {
	pterm.Println()
	pterm.Println("  " + pterm.Bold.Sprint(util.OrDash(resp.Page.Href)))

	badge := "no badge"
	if resp.Badge.HasOverride {
		badge = "badge " + resp.Badge.Text
	}
	pterm.Printf("  %s  %s\n", badge, resp.Badge.Title)
	pterm.Println()

	if len(resp.Overrides) == 0 {
		pterm.Printf("  %s %s\n", coloredDot(noneDot), "No overrides on this page")
	}
	for _, e := range resp.Overrides {
		dot := coloredDot(otherDot)
		if e.Current {
			dot = coloredDot(currentDot)
		}
		pterm.Printf("    %s %-24s %s\n", dot, e.Key, e.Value)
	}
	pterm.Println()

	lines := bannerLines(resp.Banner)
	pterm.Println(bannerStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	pterm.Println()
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the overrides, badge and banner of the active tab",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringP("output", "o", "", "Output format (json)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	comps, err := openSeeded(cmd, pageAny)
	if err != nil {
		return err
	}
	defer comps.Close()

	c := StatusCmd{store: comps.store, page: comps.page}
	return c.Status(cmd.Context(), StatusInput{Output: output})
}
