package cmd

import (
	"context"
	"fmt"

	"github.com/kernel/remote-override/pkg/util"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// AutorefreshStore is the subset of the settings store used by autorefresh
// commands.
type AutorefreshStore interface {
	Autorefresh() bool
	SetAutorefresh(ctx context.Context, on bool)
}

// AutorefreshCmd toggles reloading the active tab after every page write.
type AutorefreshCmd struct {
	store AutorefreshStore
}

type AutorefreshSetInput struct {
	On bool
}

type AutorefreshShowInput struct {
	Output string
}

func (c AutorefreshCmd) Set(ctx context.Context, in AutorefreshSetInput) error {
	c.store.SetAutorefresh(ctx, in.On)
	if in.On {
		pterm.Success.Println("Autorefresh enabled: the active tab reloads after every change")
	} else {
		pterm.Success.Println("Autorefresh disabled")
	}
	return nil
}

func (c AutorefreshCmd) Show(ctx context.Context, in AutorefreshShowInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}
	on := c.store.Autorefresh()
	if in.Output == "json" {
		return util.PrintJSON(map[string]bool{"autorefresh": on})
	}
	if on {
		pterm.Info.Println("Autorefresh is on")
	} else {
		pterm.Info.Println("Autorefresh is off")
	}
	return nil
}

var autorefreshCmd = &cobra.Command{
	Use:   "autorefresh [on|off]",
	Short: "Show or set whether the active tab reloads after changes",
	Args:  cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{
		"on", "off",
	},
	RunE: runAutorefresh,
}

func init() {
	autorefreshCmd.Flags().StringP("output", "o", "", "Output format: json")
	rootCmd.AddCommand(autorefreshCmd)
}

func runAutorefresh(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	comps, err := openSeeded(cmd, pageNone)
	if err != nil {
		return err
	}
	defer comps.Close()

	c := AutorefreshCmd{store: comps.store}
	if len(args) == 0 {
		return c.Show(cmd.Context(), AutorefreshShowInput{Output: output})
	}
	return c.Set(cmd.Context(), AutorefreshSetInput{On: args[0] == "on"})
}
