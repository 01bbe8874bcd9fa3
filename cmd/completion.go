package cmd

import (
	"slices"
	"strings"

	"github.com/kernel/remote-override/internal/settings"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish]",
	Short: "Generate shell completion scripts",
	Long: `Generate a shell completion script for overrides.

Completion covers subcommands, flags, the app keys taken by 'apply',
'reset', 'draft' and 'apps', and the on/off argument of 'autorefresh'.

  bash:  source <(overrides completion bash)
  zsh:   overrides completion zsh > "${fpath[1]}/_overrides"
  fish:  overrides completion fish > ~/.config/fish/completions/overrides.fish

Open a new shell afterwards.`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	// Completion never needs the configuration.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// completeAppKeys completes app keys for the first n positional arguments, or
// for every argument when n is negative. Keys already given are left out.
func completeAppKeys(n int) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if n >= 0 && len(args) >= n {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		// Completion skips the persistent pre-run hooks.
		if err := loadSession(cmd, args); err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		comps, err := openSeeded(cmd, pageNone)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		defer comps.Close()

		keys := lo.FilterMap(comps.store.AllApps(), func(a settings.AppDescriptor, _ int) (string, bool) {
			return a.Key, strings.HasPrefix(a.Key, toComplete) && !slices.Contains(args, a.Key)
		})
		return keys, cobra.ShellCompDirectiveNoFileComp
	}
}

func init() {
	applyCmd.ValidArgsFunction = completeAppKeys(1)
	resetCmd.ValidArgsFunction = completeAppKeys(1)
	draftSetCmd.ValidArgsFunction = completeAppKeys(1)
	draftSelectCmd.ValidArgsFunction = completeAppKeys(1)
	draftShowCmd.ValidArgsFunction = completeAppKeys(1)
	appsDeleteCmd.ValidArgsFunction = completeAppKeys(1)
	appsToggleCmd.ValidArgsFunction = completeAppKeys(1)
	appsSelectCmd.ValidArgsFunction = completeAppKeys(-1)
	appsReorderCmd.ValidArgsFunction = completeAppKeys(2)
}
