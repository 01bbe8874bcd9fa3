package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kernel/remote-override/internal/settings"
	"github.com/kernel/remote-override/pkg/util"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// AppStore is the subset of the settings store used by app commands.
type AppStore interface {
	AllApps() []settings.AppDescriptor
	IsSelected(key string) bool
	IsCustomApp(key string) bool
	AddApp(ctx context.Context, app settings.NewApp) (settings.AppDescriptor, error)
	DeleteApp(ctx context.Context, key string) error
	ToggleApp(ctx context.Context, key string)
	SetSelectedApps(ctx context.Context, keys []string)
	Reorder(ctx context.Context, dragged, target string)
	App(key string) (settings.AppDescriptor, bool)
}

// AppsCmd manages the configured apps.
type AppsCmd struct {
	store AppStore
}

type AppsListInput struct {
	Output string
}

type AppsAddInput struct {
	App    settings.NewApp
	Output string
}

type AppsDeleteInput struct {
	Key         string
	SkipConfirm bool
}

type AppsToggleInput struct {
	Key string
}

type AppsSelectInput struct {
	Keys []string
}

type AppsReorderInput struct {
	Dragged string
	Target  string
}

type AppsImportInput struct {
	Path string
	// Reader is used instead of Path when set.
	Reader io.Reader
}

type AppsExportInput struct {
	All    bool
	Writer io.Writer
}

type appRow struct {
	settings.AppDescriptor
	Selected bool `json:"selected"`
	Custom   bool `json:"custom"`
}

func (c AppsCmd) List(ctx context.Context, in AppsListInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}

	rows := lo.Map(c.store.AllApps(), func(a settings.AppDescriptor, _ int) appRow {
		return appRow{AppDescriptor: a, Selected: c.store.IsSelected(a.Key), Custom: c.store.IsCustomApp(a.Key)}
	})
	if in.Output == "json" {
		return util.PrintJSON(rows)
	}

	tableData := pterm.TableData{{"#", "ID", "Key", "Label", "App", "Path", "Shown", "Type"}}
	for i, r := range rows {
		shown := "no"
		if r.Selected {
			shown = "yes"
		}
		kind := "built-in"
		if r.Custom {
			kind = "custom"
		}
		tableData = append(tableData, []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(r.ID),
			r.Key,
			r.Label,
			r.App,
			util.OrDash(r.Path),
			shown,
			kind,
		})
	}
	PrintTableNoPad(tableData, true)
	return nil
}

func (c AppsCmd) Add(ctx context.Context, in AppsAddInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}

	added, err := c.store.AddApp(ctx, in.App)
	if err != nil {
		var verr *settings.ValidationError
		if errors.As(err, &verr) {
			for _, p := range verr.Problems {
				pterm.Error.Println(p)
			}
		}
		return err
	}
	if in.Output == "json" {
		return util.PrintJSON(added)
	}
	pterm.Success.Printf("Added app %s (id %d)\n", added.Key, added.ID)
	return nil
}

func (c AppsCmd) Delete(ctx context.Context, in AppsDeleteInput) error {
	if _, ok := c.store.App(in.Key); !ok {
		return fmt.Errorf("%w: %s", settings.ErrUnknownApp, in.Key)
	}
	if !c.store.IsCustomApp(in.Key) {
		return fmt.Errorf("%w: %s", settings.ErrBuiltinApp, in.Key)
	}

	if !in.SkipConfirm {
		msg := fmt.Sprintf("Are you sure you want to delete app '%s' and its saved values?", in.Key)
		pterm.DefaultInteractiveConfirm.DefaultText = msg
		ok, _ := pterm.DefaultInteractiveConfirm.Show()
		if !ok {
			pterm.Info.Println("Deletion cancelled")
			return nil
		}
	}

	if err := c.store.DeleteApp(ctx, in.Key); err != nil {
		return err
	}
	pterm.Success.Printf("Deleted app %s\n", in.Key)
	return nil
}

func (c AppsCmd) Toggle(ctx context.Context, in AppsToggleInput) error {
	if _, ok := c.store.App(in.Key); !ok {
		return fmt.Errorf("%w: %s", settings.ErrUnknownApp, in.Key)
	}
	c.store.ToggleApp(ctx, in.Key)
	if c.store.IsSelected(in.Key) {
		pterm.Success.Printf("%s is now shown\n", in.Key)
	} else {
		pterm.Success.Printf("%s is now hidden\n", in.Key)
	}
	return nil
}

func (c AppsCmd) Select(ctx context.Context, in AppsSelectInput) error {
	unknown := lo.Filter(in.Keys, func(k string, _ int) bool {
		_, ok := c.store.App(k)
		return !ok
	})
	if len(unknown) > 0 {
		pterm.Warning.Printf("Ignoring unknown apps: %s\n", strings.Join(unknown, ", "))
	}
	c.store.SetSelectedApps(ctx, in.Keys)
	shown := lo.Filter(c.store.AllApps(), func(a settings.AppDescriptor, _ int) bool { return c.store.IsSelected(a.Key) })
	keys := lo.Map(shown, func(a settings.AppDescriptor, _ int) string { return a.Key })
	pterm.Success.Printf("Showing: %s\n", util.JoinOrDash(keys...))
	return nil
}

func (c AppsCmd) Reorder(ctx context.Context, in AppsReorderInput) error {
	for _, k := range []string{in.Dragged, in.Target} {
		if _, ok := c.store.App(k); !ok {
			return fmt.Errorf("%w: %s", settings.ErrUnknownApp, k)
		}
	}
	c.store.Reorder(ctx, in.Dragged, in.Target)
	keys := lo.Map(c.store.AllApps(), func(a settings.AppDescriptor, _ int) string { return a.Key })
	pterm.Success.Printf("Order: %s\n", strings.Join(keys, ", "))
	return nil
}

// Import adds every app of a YAML list. Apps that fail validation are
// reported and skipped.
func (c AppsCmd) Import(ctx context.Context, in AppsImportInput) error {
	r := in.Reader
	if r == nil {
		f, err := os.Open(in.Path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", in.Path, err)
		}
		defer f.Close()
		r = f
	}

	var apps []settings.NewApp
	if err := yaml.NewDecoder(r).Decode(&apps); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid app file: %w", err)
	}

	added, skipped := 0, 0
	for _, app := range apps {
		if _, err := c.store.AddApp(ctx, app); err != nil {
			pterm.Warning.Printf("Skipping %s: %v\n", util.OrDash(app.Key), err)
			skipped++
			continue
		}
		added++
	}
	pterm.Info.Printf("Imported %d app(s), skipped %d\n", added, skipped)
	return nil
}

// Export writes the custom apps (every app with All) as a YAML list Import
// accepts.
func (c AppsCmd) Export(ctx context.Context, in AppsExportInput) error {
	apps := c.store.AllApps()
	if !in.All {
		apps = lo.Filter(apps, func(a settings.AppDescriptor, _ int) bool { return c.store.IsCustomApp(a.Key) })
	}
	out := lo.Map(apps, func(a settings.AppDescriptor, _ int) settings.NewApp {
		return settings.NewApp{App: a.App, Label: a.Label, Key: a.Key, Path: a.Path}
	})

	w := in.Writer
	if w == nil {
		w = os.Stdout
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Manage the apps overrides can be set for",
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List apps in display order",
	Args:  cobra.NoArgs,
	RunE:  runAppsList,
}

var appsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a custom app",
	Args:  cobra.NoArgs,
	RunE:  runAppsAdd,
}

var appsDeleteCmd = &cobra.Command{
	Use:   "delete <app-key>",
	Short: "Delete a custom app and its saved values",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppsDelete,
}

var appsToggleCmd = &cobra.Command{
	Use:   "toggle <app-key>",
	Short: "Show or hide an app",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppsToggle,
}

var appsSelectCmd = &cobra.Command{
	Use:   "select <app-key>...",
	Short: "Show exactly the given apps",
	RunE:  runAppsSelect,
}

var appsReorderCmd = &cobra.Command{
	Use:   "reorder <app-key> <target-key>",
	Short: "Move an app to the position of another",
	Args:  cobra.ExactArgs(2),
	RunE:  runAppsReorder,
}

var appsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Add apps from a YAML file",
	Long: `Add apps from a YAML file ("-" reads stdin). The file is a list of apps:

  - app: Bo
    label: Booking
    key: booking-service
    path: /booking`,
	Args: cobra.ExactArgs(1),
	RunE: runAppsImport,
}

var appsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print custom apps as YAML",
	Args:  cobra.NoArgs,
	RunE:  runAppsExport,
}

func init() {
	appsListCmd.Flags().StringP("output", "o", "", "Output format: json")

	appsAddCmd.Flags().StringP("output", "o", "", "Output format: json")
	appsAddCmd.Flags().String("app", "", "Short app name shown in the list (required)")
	appsAddCmd.Flags().String("label", "", "Display label (required)")
	appsAddCmd.Flags().String("key", "", "Override key (required)")
	appsAddCmd.Flags().String("path", "", "URL path used to recognise the app")

	appsDeleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")

	appsExportCmd.Flags().Bool("all", false, "Include built-in apps")

	appsCmd.AddCommand(appsListCmd, appsAddCmd, appsDeleteCmd, appsToggleCmd, appsSelectCmd, appsReorderCmd, appsImportCmd, appsExportCmd)
	rootCmd.AddCommand(appsCmd)
}

func withAppsCmd(cmd *cobra.Command, fn func(AppsCmd) error) error {
	comps, err := openSeeded(cmd, pageNone)
	if err != nil {
		return err
	}
	defer comps.Close()
	return fn(AppsCmd{store: comps.store})
}

func runAppsList(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	return withAppsCmd(cmd, func(c AppsCmd) error {
		return c.List(cmd.Context(), AppsListInput{Output: output})
	})
}

func runAppsAdd(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	app, _ := cmd.Flags().GetString("app")
	label, _ := cmd.Flags().GetString("label")
	key, _ := cmd.Flags().GetString("key")
	path, _ := cmd.Flags().GetString("path")

	return withAppsCmd(cmd, func(c AppsCmd) error {
		return c.Add(cmd.Context(), AppsAddInput{
			App:    settings.NewApp{App: app, Label: label, Key: key, Path: path},
			Output: output,
		})
	})
}

func runAppsDelete(cmd *cobra.Command, args []string) error {
	skip, _ := cmd.Flags().GetBool("yes")
	return withAppsCmd(cmd, func(c AppsCmd) error {
		return c.Delete(cmd.Context(), AppsDeleteInput{Key: args[0], SkipConfirm: skip})
	})
}

func runAppsToggle(cmd *cobra.Command, args []string) error {
	return withAppsCmd(cmd, func(c AppsCmd) error {
		return c.Toggle(cmd.Context(), AppsToggleInput{Key: args[0]})
	})
}

func runAppsSelect(cmd *cobra.Command, args []string) error {
	return withAppsCmd(cmd, func(c AppsCmd) error {
		return c.Select(cmd.Context(), AppsSelectInput{Keys: args})
	})
}

func runAppsReorder(cmd *cobra.Command, args []string) error {
	return withAppsCmd(cmd, func(c AppsCmd) error {
		return c.Reorder(cmd.Context(), AppsReorderInput{Dragged: args[0], Target: args[1]})
	})
}

func runAppsImport(cmd *cobra.Command, args []string) error {
	in := AppsImportInput{Path: args[0]}
	if args[0] == "-" {
		in.Reader = cmd.InOrStdin()
	}
	return withAppsCmd(cmd, func(c AppsCmd) error {
		return c.Import(cmd.Context(), in)
	})
}

func runAppsExport(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	return withAppsCmd(cmd, func(c AppsCmd) error {
		return c.Export(cmd.Context(), AppsExportInput{All: all, Writer: cmd.OutOrStdout()})
	})
}
