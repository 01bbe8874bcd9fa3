package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/kernel/remote-override/internal/reconcile"
	"github.com/kernel/remote-override/internal/settings"
	"github.com/kernel/remote-override/pkg/util"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// OverrideStore is the subset of the settings store used by override commands.
type OverrideStore interface {
	reconcile.Settings
	EnsureDefaults(ctx context.Context) bool
	App(key string) (settings.AppDescriptor, bool)
	Record(key string) (settings.OverrideRecord, bool)
	RecordDraftEdit(ctx context.Context, key string, slot int, value string) error
	CommitDrafts(ctx context.Context, key string)
}

// OverridesCmd handles override operations independent of cobra.
type OverridesCmd struct {
	store  OverrideStore
	page   reconcile.PageBridge
	logger *slog.Logger
}

type OverridesInitInput struct{}

type OverridesListInput struct {
	All    bool
	Output string
}

type OverridesApplyInput struct {
	App   string
	Value string
	// Slot is the draft input to write Value into, or to apply from when
	// Value is empty. -1 means the selected input.
	Slot   int
	Output string
}

type OverridesResetInput struct {
	App    string
	Output string
}

type OverridesRemoveAllInput struct {
	SkipConfirm bool
}

type overrideRow struct {
	App    string `json:"app"`
	Key    string `json:"key"`
	State  string `json:"state"`
	Value  string `json:"value,omitempty"`
	Local  string `json:"local,omitempty"`
	Page   string `json:"page,omitempty"`
	OnPage bool   `json:"onPage"`
	Error  string `json:"error,omitempty"`
}

type writeResult struct {
	App         string `json:"app"`
	Value       string `json:"value"`
	PageUpdated bool   `json:"pageUpdated"`
	Error       string `json:"error,omitempty"`
}

func (c OverridesCmd) reconciler(observe func(reconcile.Write)) *reconcile.Reconciler {
	opts := []reconcile.Option{reconcile.WithWriteObserver(observe)}
	if c.logger != nil {
		opts = append(opts, reconcile.WithLogger(c.logger))
	}
	return reconcile.New(c.page, c.store, opts...)
}

// run handles ev and waits for its page write.
func (c OverridesCmd) run(ctx context.Context, ev reconcile.Event) (reconcile.State, []reconcile.Write) {
	var (
		mu     sync.Mutex
		writes []reconcile.Write
	)
	rec := c.reconciler(func(w reconcile.Write) {
		mu.Lock()
		writes = append(writes, w)
		mu.Unlock()
	})
	st := rec.Handle(ctx, ev)
	rec.Wait()
	return st, writes
}

func (c OverridesCmd) Init(ctx context.Context, in OverridesInitInput) error {
	if c.store.EnsureDefaults(ctx) {
		pterm.Success.Println("Storage initialized with default apps")
		return nil
	}
	pterm.Info.Println("Storage already initialized")
	return nil
}

func (c OverridesCmd) List(ctx context.Context, in OverridesListInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}

	apps := c.store.SelectedApps()
	if in.All {
		apps = c.store.AllApps()
	}

	rec := c.reconciler(nil)
	if in.All {
		for _, app := range apps {
			rec.Handle(ctx, reconcile.Event{Kind: reconcile.EventPageLoad, App: app.Key})
		}
	} else {
		rec.Handle(ctx, reconcile.Event{Kind: reconcile.EventPageLoad})
	}
	snap := c.page.ReadAll(ctx)

	rows := make([]overrideRow, 0, len(apps))
	for _, app := range apps {
		st := rec.State(app.Key)
		row := overrideRow{
			App:   app.Label,
			Key:   app.Key,
			State: st.Phase.String(),
			Value: st.Value,
			Local: c.store.OverrideValue(app.Key),
		}
		if st.Err != nil {
			row.Error = st.Err.Error()
		}
		if snap.Err == nil {
			row.Page, row.OnPage = snap.Entries.Get(app.Key)
		}
		rows = append(rows, row)
	}

	if in.Output == "json" {
		return util.PrintJSON(rows)
	}

	if len(rows) == 0 {
		pterm.Info.Println("No apps displayed. Use 'overrides apps select' to choose some.")
		return nil
	}
	if snap.Err != nil {
		pterm.Warning.Printf("Could not read the active tab: %v\n", snap.Err)
	} else {
		pterm.Info.Printf("Active tab: %s\n", util.OrDash(snap.Page.Href))
	}

	tableData := pterm.TableData{{"App", "Key", "Override", "Local", "Page", "State"}}
	for _, r := range rows {
		page := r.Page
		switch {
		case snap.Err != nil:
			page = "?"
		case !r.OnPage:
			page = ""
		}
		tableData = append(tableData, []string{
			r.App,
			r.Key,
			util.OrDash(r.Value),
			util.OrDash(r.Local),
			util.OrDash(page),
			r.State,
		})
	}
	PrintTableNoPad(tableData, true)
	return nil
}

func (c OverridesCmd) Apply(ctx context.Context, in OverridesApplyInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}
	if _, ok := c.store.App(in.App); !ok {
		return fmt.Errorf("%w: %s", settings.ErrUnknownApp, in.App)
	}

	value := strings.TrimSpace(in.Value)
	switch {
	case value != "":
		slot := in.Slot
		if slot < 0 {
			slot = 0
		}
		if err := c.store.RecordDraftEdit(ctx, in.App, slot, value); err != nil {
			return err
		}
		c.store.CommitDrafts(ctx, in.App)
	case in.Value == "":
		rec, _ := c.store.Record(in.App)
		if in.Slot < 0 {
			value = rec.SelectedDraft()
		} else {
			if in.Slot >= settings.DraftSlots {
				return fmt.Errorf("%w: %d", settings.ErrInvalidSlot, in.Slot)
			}
			value = rec.Draft(in.Slot)
		}
	}

	st, writes := c.run(ctx, reconcile.Event{Kind: reconcile.EventApply, App: in.App, Value: value})
	res := toWriteResult(in.App, st.Value, writes)

	if in.Output == "json" {
		return util.PrintJSON(res)
	}
	if st.Value == "" {
		reportWrite(res, fmt.Sprintf("Reset override for %s", in.App))
		return nil
	}
	reportWrite(res, fmt.Sprintf("Applied %s@%s", in.App, st.Value))
	return nil
}

func (c OverridesCmd) Reset(ctx context.Context, in OverridesResetInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}
	if _, ok := c.store.App(in.App); !ok {
		return fmt.Errorf("%w: %s", settings.ErrUnknownApp, in.App)
	}

	_, writes := c.run(ctx, reconcile.Event{Kind: reconcile.EventReset, App: in.App})
	res := toWriteResult(in.App, "", writes)
	if in.Output == "json" {
		return util.PrintJSON(res)
	}
	reportWrite(res, fmt.Sprintf("Reset override for %s", in.App))
	return nil
}

func (c OverridesCmd) RemoveAll(ctx context.Context, in OverridesRemoveAllInput) error {
	if !in.SkipConfirm {
		pterm.DefaultInteractiveConfirm.DefaultText = "Remove every override from the active tab?"
		ok, _ := pterm.DefaultInteractiveConfirm.Show()
		if !ok {
			pterm.Info.Println("Removal cancelled")
			return nil
		}
	}

	_, writes := c.run(ctx, reconcile.Event{Kind: reconcile.EventRemoveAll})
	reportWrite(toWriteResult("", "", writes), "Removed all overrides")
	return nil
}

func toWriteResult(app, value string, writes []reconcile.Write) writeResult {
	res := writeResult{App: app, Value: value, PageUpdated: true}
	for _, w := range writes {
		if w.Result.Err != nil {
			res.PageUpdated = false
			res.Error = w.Result.Err.Error()
		}
	}
	return res
}

func reportWrite(res writeResult, msg string) {
	if res.PageUpdated {
		pterm.Success.Println(msg)
		return
	}
	pterm.Warning.Printf("%s locally, but the active tab was not updated: %s\n", msg, res.Error)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Seed the settings storage with the built-in apps",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List displayed apps with their override in the active tab",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var applyCmd = &cobra.Command{
	Use:   "apply <app-key> [value]",
	Short: "Apply an override for an app",
	Long: `Apply an override for an app.

With a value, the value is typed into a draft input (--slot, default the
first one) and added to the app's history before it is applied. Without a
value, the selected draft input (or --slot) is applied. A blank value resets
the override.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runApply,
}

var resetCmd = &cobra.Command{
	Use:   "reset <app-key>",
	Short: "Remove an app's override",
	Args:  cobra.ExactArgs(1),
	RunE:  runReset,
}

var removeAllCmd = &cobra.Command{
	Use:   "remove-all",
	Short: "Remove every override from the active tab",
	Args:  cobra.NoArgs,
	RunE:  runRemoveAll,
}

func init() {
	listCmd.Flags().StringP("output", "o", "", "Output format: json")
	listCmd.Flags().Bool("all", false, "Include apps that are not displayed")

	applyCmd.Flags().StringP("output", "o", "", "Output format: json")
	applyCmd.Flags().Int("slot", -1, "Draft input to use (0 or 1)")

	resetCmd.Flags().StringP("output", "o", "", "Output format: json")

	removeAllCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")

	rootCmd.AddCommand(initCmd, listCmd, applyCmd, resetCmd, removeAllCmd)
}

func overridesCmd(c *components) OverridesCmd {
	return OverridesCmd{store: c.store, page: c.page, logger: c.logger}
}

func runInit(cmd *cobra.Command, args []string) error {
	comps, err := openComponents(cmd, pageNone)
	if err != nil {
		return err
	}
	defer comps.Close()

	if comps.relay != nil {
		msg, err := comps.relay.Initialize(cmd.Context())
		if err != nil {
			return err
		}
		pterm.Info.Println(msg)
		return nil
	}
	return overridesCmd(comps).Init(cmd.Context(), OverridesInitInput{})
}

func runList(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	all, _ := cmd.Flags().GetBool("all")

	comps, err := openSeeded(cmd, pageAny)
	if err != nil {
		return err
	}
	defer comps.Close()
	return overridesCmd(comps).List(cmd.Context(), OverridesListInput{All: all, Output: output})
}

func runApply(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	slot, _ := cmd.Flags().GetInt("slot")
	value := ""
	if len(args) > 1 {
		value = args[1]
	}

	comps, err := openSeeded(cmd, pageAny)
	if err != nil {
		return err
	}
	defer comps.Close()
	return overridesCmd(comps).Apply(cmd.Context(), OverridesApplyInput{
		App:    args[0],
		Value:  value,
		Slot:   slot,
		Output: output,
	})
}

func runReset(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	comps, err := openSeeded(cmd, pageAny)
	if err != nil {
		return err
	}
	defer comps.Close()
	return overridesCmd(comps).Reset(cmd.Context(), OverridesResetInput{App: args[0], Output: output})
}

func runRemoveAll(cmd *cobra.Command, args []string) error {
	skip, _ := cmd.Flags().GetBool("yes")

	comps, err := openSeeded(cmd, pageAny)
	if err != nil {
		return err
	}
	defer comps.Close()
	return overridesCmd(comps).RemoveAll(cmd.Context(), OverridesRemoveAllInput{SkipConfirm: skip})
}

func slotArg(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= settings.DraftSlots {
		return 0, fmt.Errorf("%w: %q (use 0 or 1)", settings.ErrInvalidSlot, s)
	}
	return n, nil
}
