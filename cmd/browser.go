package cmd

import (
	"fmt"

	"github.com/kernel/remote-override/internal/chrome"
	"github.com/kernel/remote-override/pkg/util"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// BrowserCmd inspects the local Chrome installation used by the rod backend.
type BrowserCmd struct {
	userDataDir string
}

type BrowserProfilesInput struct {
	Output string
}

func (c BrowserCmd) Profiles(in BrowserProfilesInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}

	dir := c.userDataDir
	if dir == "" {
		d, err := chrome.UserDataDir()
		if err != nil {
			return err
		}
		dir = d
	}
	profiles, err := chrome.ListProfiles(dir)
	if err != nil {
		return err
	}

	if in.Output == "json" {
		return util.PrintJSON(map[string]any{"userDataDir": dir, "profiles": profiles})
	}
	if len(profiles) == 0 {
		pterm.Info.Printf("No Chrome profiles found in %s\n", dir)
		return nil
	}
	pterm.Info.Printf("Chrome user data: %s\n", dir)
	tableData := pterm.TableData{{"Profile"}}
	for _, p := range profiles {
		tableData = append(tableData, []string{p})
	}
	PrintTableNoPad(tableData, true)
	return nil
}

var browserCmd = &cobra.Command{
	Use:   "browser",
	Short: "Inspect the local Chrome installation",
}

var browserProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List Chrome profiles usable with --chrome-profile",
	Args:  cobra.NoArgs,
	RunE:  runBrowserProfiles,
}

func init() {
	browserProfilesCmd.Flags().StringP("output", "o", "", "Output format: json")
	browserCmd.AddCommand(browserProfilesCmd)
	rootCmd.AddCommand(browserCmd)
}

func runBrowserProfiles(cmd *cobra.Command, args []string) error {
	s, err := getSession(cmd)
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	c := BrowserCmd{userDataDir: s.cfg.UserDataDir}
	return c.Profiles(BrowserProfilesInput{Output: output})
}
