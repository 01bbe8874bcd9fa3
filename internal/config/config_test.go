package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"OVERRIDES_BACKEND", "OVERRIDES_CDP_URL", "OVERRIDES_CHROME_PROFILE", "OVERRIDES_USER_DATA_DIR",
		"OVERRIDES_BROWSER_ID", "OVERRIDES_STORAGE", "OVERRIDES_STORAGE_PATH", "OVERRIDES_RELAY",
		"OVERRIDES_LISTEN_ADDR", "OVERRIDES_LOG_LEVEL", "OVERRIDES_HEADLESS", "KERNEL_BASE_URL", "KERNEL_API_KEY",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: kernel\nbrowser_id: from-file\nstorage: sqlite\nlog_level: debug\n"), 0o600))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("OVERRIDES_BROWSER_ID=from-dotenv\nOVERRIDES_HEADLESS=true\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("OVERRIDES_BROWSER_ID")
		os.Unsetenv("OVERRIDES_HEADLESS")
	})
	// godotenv never overrides variables that are set, so start from unset.
	os.Unsetenv("OVERRIDES_BROWSER_ID")
	os.Unsetenv("OVERRIDES_HEADLESS")
	t.Setenv("OVERRIDES_LOG_LEVEL", "warn")

	cfg, err := Load(path, envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, BackendKernel, cfg.Backend)
	assert.Equal(t, "sqlite", cfg.Storage)
	assert.Equal(t, "from-dotenv", cfg.BrowserID)
	assert.True(t, cfg.Headless)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:7788", cfg.ListenAddr)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [rod"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "config: parse")
}

func TestLoad_InvalidHeadless(t *testing.T) {
	clearEnv(t)
	t.Setenv("OVERRIDES_HEADLESS", "sometimes")
	_, err := Load("")
	assert.ErrorContains(t, err, "OVERRIDES_HEADLESS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Backend = "selenium" }, "unknown backend"},
		{"unknown storage", func(c *Config) { c.Storage = "redis" }, "unknown storage"},
		{"kernel without browser", func(c *Config) { c.Backend = BackendKernel }, "browser id"},
		{"kernel through relay", func(c *Config) { c.Backend = BackendKernel; c.Relay = "http://127.0.0.1:7788" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSave_RoundTripWithoutSecrets(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.CDPURL = "ws://127.0.0.1:9222/devtools/browser/abc"
	cfg.KernelAPIKey = "sk-secret"
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.CDPURL, loaded.CDPURL)
	assert.Empty(t, loaded.KernelAPIKey)
}

func TestDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdg", AppName), dir)

	p, err := DefaultStoragePath("sqlite")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdg", AppName, "settings.db"), p)
}

func TestResolveKernelAPIKey(t *testing.T) {
	keyring.MockInit()

	_, err := Default().ResolveKernelAPIKey()
	assert.ErrorIs(t, err, ErrNoAPIKey)

	require.NoError(t, StoreKernelAPIKey("sk-from-keyring"))
	key, err := Default().ResolveKernelAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-keyring", key)

	cfg := Default()
	cfg.KernelAPIKey = "sk-from-env"
	key, err = cfg.ResolveKernelAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", key)

	require.NoError(t, DeleteKernelAPIKey())
	require.NoError(t, DeleteKernelAPIKey())
	_, err = Default().ResolveKernelAPIKey()
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
