// Package chrome locates the local Chrome installation's user data so a
// launched browser can reuse the page storage of a real profile.
package chrome

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// DefaultProfile is the profile Chrome creates on first run.
const DefaultProfile = "Default"

// UserDataDir returns the Chrome user data directory for the current OS.
func UserDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	var userDataDir string
	switch runtime.GOOS {
	case "darwin":
		userDataDir = filepath.Join(homeDir, "Library", "Application Support", "Google", "Chrome")
	case "linux":
		userDataDir = filepath.Join(homeDir, ".config", "google-chrome")
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		userDataDir = filepath.Join(localAppData, "Google", "Chrome", "User Data")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if _, err := os.Stat(userDataDir); os.IsNotExist(err) {
		return "", fmt.Errorf("Chrome user data directory not found at %s", userDataDir)
	}
	return userDataDir, nil
}

// ListProfiles returns the profiles found in userDataDir, sorted, with
// "Default" first.
func ListProfiles(userDataDir string) ([]string, error) {
	entries, err := os.ReadDir(userDataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read Chrome user data directory: %w", err)
	}

	var profiles []string
	for _, entry := range entries {
		if !entry.IsDir() || !isProfileName(entry.Name()) {
			continue
		}
		// A profile directory always has a Preferences file.
		if _, err := os.Stat(filepath.Join(userDataDir, entry.Name(), "Preferences")); err == nil {
			profiles = append(profiles, entry.Name())
		}
	}

	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i] == DefaultProfile || profiles[j] == DefaultProfile {
			return profiles[i] == DefaultProfile
		}
		return profiles[i] < profiles[j]
	})
	return profiles, nil
}

// ResolveProfile checks that profile exists in userDataDir. An empty profile
// means DefaultProfile.
func ResolveProfile(userDataDir, profile string) (string, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	profiles, err := ListProfiles(userDataDir)
	if err != nil {
		return "", err
	}
	for _, p := range profiles {
		if p == profile {
			return p, nil
		}
	}
	return "", fmt.Errorf("Chrome profile %q not found in %s (available: %s)", profile, userDataDir, strings.Join(profiles, ", "))
}

func isProfileName(name string) bool {
	return name == DefaultProfile || strings.HasPrefix(name, "Profile ")
}
