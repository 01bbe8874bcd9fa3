package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kernel/remote-override/internal/config"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ConfigCmd inspects and stores configuration.
type ConfigCmd struct {
	cfg  config.Config
	path string
	out  io.Writer
}

func (c ConfigCmd) Show() error {
	data, err := yaml.Marshal(c.cfg)
	if err != nil {
		return err
	}
	w := c.out
	if w == nil {
		w = os.Stdout
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := c.cfg.ResolveKernelAPIKey(); err == nil {
		pterm.Info.Println("Kernel API key: set")
	} else {
		pterm.Info.Println("Kernel API key: not set")
	}
	return nil
}

func (c ConfigCmd) Save() error {
	if c.path == "" {
		return fmt.Errorf("no config path: use --config")
	}
	if err := c.cfg.Save(c.path); err != nil {
		return err
	}
	pterm.Success.Printf("Configuration written to %s\n", c.path)
	return nil
}

func (c ConfigCmd) SetKernelKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty API key")
	}
	if err := config.StoreKernelAPIKey(key); err != nil {
		return err
	}
	pterm.Success.Println("Kernel API key stored in the system keyring")
	return nil
}

func (c ConfigCmd) DeleteKernelKey() error {
	if err := config.DeleteKernelAPIKey(); err != nil {
		return err
	}
	pterm.Success.Println("Kernel API key removed from the system keyring")
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and store configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfigCmd(cmd, ConfigCmd.Show)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getSession(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s.configPath)
		return nil
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write the effective configuration (flags included) to the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfigCmd(cmd, ConfigCmd.Save)
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-kernel-key [api-key]",
	Short: "Store the Kernel API key in the system keyring",
	Long: `Store the Kernel API key in the system keyring. Without an argument the
key is read from a hidden prompt. KERNEL_API_KEY still takes precedence.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := ""
		if len(args) == 1 {
			key = args[0]
		} else {
			var err error
			key, err = pterm.DefaultInteractiveTextInput.WithMask("*").Show("Kernel API key")
			if err != nil {
				return err
			}
		}
		return withConfigCmd(cmd, func(c ConfigCmd) error { return c.SetKernelKey(key) })
	},
}

var configDeleteKeyCmd = &cobra.Command{
	Use:   "delete-kernel-key",
	Short: "Remove the Kernel API key from the system keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfigCmd(cmd, ConfigCmd.DeleteKernelKey)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd, configSaveCmd, configSetKeyCmd, configDeleteKeyCmd)
	rootCmd.AddCommand(configCmd)
}

func withConfigCmd(cmd *cobra.Command, fn func(ConfigCmd) error) error {
	s, err := getSession(cmd)
	if err != nil {
		return err
	}
	return fn(ConfigCmd{cfg: s.cfg, path: s.configPath, out: cmd.OutOrStdout()})
}
