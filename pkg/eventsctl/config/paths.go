package config

import (
	"os"
	"path/filepath"
)

const (
	defaultConfigDirName    = "eventsctl"
	defaultConfigFile       = "config.yaml"
	defaultPendingLoginFile = "pending-login.json"
)

func DefaultConfigPath() string {
	if env := os.Getenv("EVENTSCTL_CONFIG"); env != "" {
		return env
	}
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, defaultConfigDirName, defaultConfigFile)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".eventsctl", defaultConfigFile)
}

// DefaultPendingLoginPath is where the file verifier storage keeps the verifier
// of a login started with --manual until its callback is completed.
func DefaultPendingLoginPath() string {
	base, err := os.UserCacheDir()
	if err == nil {
		return filepath.Join(base, defaultConfigDirName, defaultPendingLoginFile)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".eventsctl", defaultPendingLoginFile)
}
