package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - BAHNHOFJAEGER_CONFIG_PATH: config file location (default: ~/.config/bahnhofjaeger.toml)
//   - BAHNHOFJAEGER_HOME: base directory for application data (default: ~/.local/share/bahnhofjaeger)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking BAHNHOFJAEGER_CONFIG_PATH
// first, then falling back to the default ~/.config/bahnhofjaeger.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("BAHNHOFJAEGER_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "bahnhofjaeger.toml"), nil
}

// getBaseDir returns the base directory for application data, checking
// BAHNHOFJAEGER_HOME first, then falling back to the XDG default
// ~/.local/share/bahnhofjaeger.
func getBaseDir() (string, error) {
	if path := os.Getenv("BAHNHOFJAEGER_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "bahnhofjaeger"), nil
}
