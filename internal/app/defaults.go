package app

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - MIRROR_CONFIG_PATH: config file location (default: $XDG_CONFIG_HOME/mirror.toml)
//   - MIRROR_HOME: base directory for mirror data (default: $XDG_DATA_HOME/mirror)
func GetDefaults() (map[string]string, error) {
	baseDir := getBaseDir()
	return map[string]string{
		"config_path": getConfigPath(),
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking MIRROR_CONFIG_PATH first.
func getConfigPath() string {
	if path := os.Getenv("MIRROR_CONFIG_PATH"); path != "" {
		return path
	}
	return filepath.Join(xdg.ConfigHome, "mirror.toml")
}

// getBaseDir returns the base directory for mirror data, checking MIRROR_HOME first.
func getBaseDir() string {
	if path := os.Getenv("MIRROR_HOME"); path != "" {
		return path
	}
	return filepath.Join(xdg.DataHome, "mirror")
}
