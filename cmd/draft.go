package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kernel/remote-override/internal/settings"
	"github.com/kernel/remote-override/pkg/util"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// DraftStore is the subset of the settings store used by draft commands.
type DraftStore interface {
	App(key string) (settings.AppDescriptor, bool)
	Record(key string) (settings.OverrideRecord, bool)
	RecordDraftEdit(ctx context.Context, key string, slot int, value string) error
	CommitDrafts(ctx context.Context, key string)
	SelectDraft(ctx context.Context, key string, slot int) error
}

// DraftCmd edits the draft inputs and value history of an app.
type DraftCmd struct {
	store DraftStore
}

type DraftSetInput struct {
	App   string
	Slot  int
	Value string
	// NoCommit leaves the edit out of the history.
	NoCommit bool
}

type DraftSelectInput struct {
	App  string
	Slot int
}

type DraftShowInput struct {
	App    string
	Output string
}

type draftView struct {
	App       string   `json:"app"`
	Override  string   `json:"override"`
	Inputs    []string `json:"inputs"`
	Selection int      `json:"selection"`
	History   []string `json:"history"`
}

func (c DraftCmd) Set(ctx context.Context, in DraftSetInput) error {
	if _, ok := c.store.App(in.App); !ok {
		return fmt.Errorf("%w: %s", settings.ErrUnknownApp, in.App)
	}
	if err := c.store.RecordDraftEdit(ctx, in.App, in.Slot, in.Value); err != nil {
		return err
	}
	if !in.NoCommit {
		c.store.CommitDrafts(ctx, in.App)
	}
	pterm.Success.Printf("Input %d of %s set to %q\n", in.Slot, in.App, in.Value)
	return nil
}

func (c DraftCmd) Select(ctx context.Context, in DraftSelectInput) error {
	if _, ok := c.store.App(in.App); !ok {
		return fmt.Errorf("%w: %s", settings.ErrUnknownApp, in.App)
	}
	if err := c.store.SelectDraft(ctx, in.App, in.Slot); err != nil {
		return err
	}
	pterm.Success.Printf("Input %d of %s selected\n", in.Slot, in.App)
	return nil
}

func (c DraftCmd) Show(ctx context.Context, in DraftShowInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}
	if _, ok := c.store.App(in.App); !ok {
		return fmt.Errorf("%w: %s", settings.ErrUnknownApp, in.App)
	}

	rec, _ := c.store.Record(in.App)
	drafts := rec.Drafts()
	view := draftView{
		App:       in.App,
		Override:  rec.Override,
		Inputs:    drafts[:],
		Selection: rec.Selection,
		History:   append([]string{}, rec.Values...),
	}
	if in.Output == "json" {
		return util.PrintJSON(view)
	}

	tableData := pterm.TableData{{"Input", "Value", "Selected"}}
	for i, v := range view.Inputs {
		selected := ""
		if i == view.Selection {
			selected = "*"
		}
		tableData = append(tableData, []string{strconv.Itoa(i), util.OrDash(v), selected})
	}
	PrintTableNoPad(tableData, true)

	pterm.Println()
	pterm.Printf("Override: %s\n", util.OrDash(view.Override))
	if len(view.History) == 0 {
		pterm.Println("History:  -")
		return nil
	}
	pterm.Println("History:")
	for i := len(view.History) - 1; i >= 0; i-- {
		pterm.Printf("  %s\n", view.History[i])
	}
	return nil
}

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Edit an app's draft inputs and value history",
}

var draftSetCmd = &cobra.Command{
	Use:   "set <app-key> <slot> <value>",
	Short: "Type a value into a draft input",
	Long: `Type a value into a draft input (slot 0 or 1).

The value is added to the app's history unless --no-commit is given. It is
not applied to the page; use 'overrides apply' for that.`,
	Args: cobra.ExactArgs(3),
	RunE: runDraftSet,
}

var draftSelectCmd = &cobra.Command{
	Use:   "select <app-key> <slot>",
	Short: "Choose which draft input 'apply' uses",
	Args:  cobra.ExactArgs(2),
	RunE:  runDraftSelect,
}

var draftShowCmd = &cobra.Command{
	Use:   "show <app-key>",
	Short: "Show an app's draft inputs and value history",
	Args:  cobra.ExactArgs(1),
	RunE:  runDraftShow,
}

func init() {
	draftSetCmd.Flags().Bool("no-commit", false, "Do not add the value to the history")
	draftShowCmd.Flags().StringP("output", "o", "", "Output format: json")

	draftCmd.AddCommand(draftSetCmd, draftSelectCmd, draftShowCmd)
	rootCmd.AddCommand(draftCmd)
}

func runDraftSet(cmd *cobra.Command, args []string) error {
	slot, err := slotArg(args[1])
	if err != nil {
		return err
	}
	noCommit, _ := cmd.Flags().GetBool("no-commit")

	comps, err := openSeeded(cmd, pageNone)
	if err != nil {
		return err
	}
	defer comps.Close()
	c := DraftCmd{store: comps.store}
	return c.Set(cmd.Context(), DraftSetInput{App: args[0], Slot: slot, Value: args[2], NoCommit: noCommit})
}

func runDraftSelect(cmd *cobra.Command, args []string) error {
	slot, err := slotArg(args[1])
	if err != nil {
		return err
	}

	comps, err := openSeeded(cmd, pageNone)
	if err != nil {
		return err
	}
	defer comps.Close()
	c := DraftCmd{store: comps.store}
	return c.Select(cmd.Context(), DraftSelectInput{App: args[0], Slot: slot})
}

func runDraftShow(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	comps, err := openSeeded(cmd, pageNone)
	if err != nil {
		return err
	}
	defer comps.Close()
	c := DraftCmd{store: comps.store}
	return c.Show(cmd.Context(), DraftShowInput{App: args[0], Output: output})
}
