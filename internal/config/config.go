// Package config loads the tool's settings from the config file, a .env
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppName names the config directory and keyring service.
const AppName = "remote-override"

// Backends select how the active tab is reached.
const (
	BackendRod    = "rod"
	BackendKernel = "kernel"
	BackendMemory = "memory"
)

// Config is the resolved configuration.
type Config struct {
	Backend string `yaml:"backend"`

	// Rod backend.
	CDPURL        string `yaml:"cdp_url,omitempty"`
	ChromeProfile string `yaml:"chrome_profile,omitempty"`
	UserDataDir   string `yaml:"user_data_dir,omitempty"`
	Headless      bool   `yaml:"headless,omitempty"`

	// Kernel backend. The API key is never written to the config file.
	BrowserID     string `yaml:"browser_id,omitempty"`
	KernelBaseURL string `yaml:"kernel_base_url,omitempty"`
	KernelAPIKey  string `yaml:"-"`

	Storage     string `yaml:"storage"`
	StoragePath string `yaml:"storage_path,omitempty"`

	Relay      string `yaml:"relay,omitempty"`
	ListenAddr string `yaml:"listen_addr"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Backend:    BackendRod,
		Storage:    "file",
		ListenAddr: "127.0.0.1:7788",
		LogLevel:   "info",
	}
}

// Dir returns $XDG_CONFIG_HOME/remote-override, falling back to
// ~/.config/remote-override.
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", AppName), nil
}

// DefaultPath returns the config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultStoragePath returns where settings are persisted for a storage kind.
func DefaultStoragePath(kind string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if kind == "sqlite" {
		return filepath.Join(dir, "settings.db"), nil
	}
	return filepath.Join(dir, "settings.json"), nil
}

// Load reads path (a missing file is fine), then the .env files (missing
// ones are skipped), then the environment.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// Load never overrides variables that are already set.
		if err := godotenv.Load(f); err != nil {
			return cfg, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"OVERRIDES_BACKEND":        &c.Backend,
		"OVERRIDES_CDP_URL":        &c.CDPURL,
		"OVERRIDES_CHROME_PROFILE": &c.ChromeProfile,
		"OVERRIDES_USER_DATA_DIR":  &c.UserDataDir,
		"OVERRIDES_BROWSER_ID":     &c.BrowserID,
		"OVERRIDES_STORAGE":        &c.Storage,
		"OVERRIDES_STORAGE_PATH":   &c.StoragePath,
		"OVERRIDES_RELAY":          &c.Relay,
		"OVERRIDES_LISTEN_ADDR":    &c.ListenAddr,
		"OVERRIDES_LOG_LEVEL":      &c.LogLevel,
		"KERNEL_BASE_URL":          &c.KernelBaseURL,
		"KERNEL_API_KEY":           &c.KernelAPIKey,
	}
	for name, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("OVERRIDES_HEADLESS")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: OVERRIDES_HEADLESS: %w", err)
		}
		c.Headless = b
	}
	return nil
}

// Validate reports configuration values that cannot work.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendRod, BackendKernel, BackendMemory:
	default:
		return fmt.Errorf("config: unknown backend %q (use rod, kernel or memory)", c.Backend)
	}
	switch c.Storage {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown storage %q (use file, sqlite or memory)", c.Storage)
	}
	if c.Backend == BackendKernel && c.BrowserID == "" && c.Relay == "" {
		return errors.New("config: the kernel backend needs a browser id (--browser-id or OVERRIDES_BROWSER_ID)")
	}
	return nil
}

// Save writes c to path as YAML, creating the directory if needed.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
