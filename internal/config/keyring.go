package config

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringUser = "kernel-api-key"

// ErrNoAPIKey is returned when no Kernel API key is configured anywhere.
var ErrNoAPIKey = errors.New("no Kernel API key: set KERNEL_API_KEY or run `overrides config set-kernel-key`")

// ResolveKernelAPIKey returns the key from the environment or, failing that, from
// the OS keyring.
func (c Config) ResolveKernelAPIKey() (string, error) {
	if c.KernelAPIKey != "" {
		return c.KernelAPIKey, nil
	}
	key, err := keyring.Get(AppName, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoAPIKey
	}
	if err != nil {
		return "", fmt.Errorf("config: read keyring: %w", err)
	}
	return key, nil
}

// StoreKernelAPIKey saves key in the OS keyring.
func StoreKernelAPIKey(key string) error {
	if err := keyring.Set(AppName, keyringUser, key); err != nil {
		return fmt.Errorf("config: write keyring: %w", err)
	}
	return nil
}

// DeleteKernelAPIKey removes the key from the OS keyring. A missing key is
// not an error.
func DeleteKernelAPIKey() error {
	if err := keyring.Delete(AppName, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("config: delete keyring: %w", err)
	}
	return nil
}
