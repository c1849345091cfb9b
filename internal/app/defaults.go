package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override the default locations.
const (
	EnvConfigPath = "DRIVE_CONFIG_PATH" // config file (default ~/.config/drive.toml)
	EnvHome       = "DRIVE_HOME"        // data directory (default ~/.local/share/drive)
	EnvServerURL  = "DRIVE_SERVER_URL"  // server used by `config init` when --server is not given
)

// DefaultServerURL is written by `config init` when neither --server nor
// DRIVE_SERVER_URL is set.
const DefaultServerURL = "http://localhost:8000"

// Defaults are the locations used when no config overrides them.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
	ServerURL  string
}

// GetDefaults resolves default paths, checking environment variables first.
func GetDefaults() (*Defaults, error) {
	configPath, err := fromEnvOrHome(EnvConfigPath, ".config", "drive.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := fromEnvOrHome(EnvHome, ".local", "share", "drive")
	if err != nil {
		return nil, err
	}
	serverURL := os.Getenv(EnvServerURL)
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		ServerURL:  serverURL,
	}, nil
}

func fromEnvOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
