package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults are the paths and names used when nothing else is configured.
type Defaults struct {
	ConfigPath     string
	BaseDir        string
	LogDir         string
	SourceDir      string
	RepositoryName string
}

// GetDefaults returns application defaults, checking environment variables first.
// Environment variables:
//   - SNAPKEEP_CONFIG_PATH: config file location (default: ~/.config/snapkeep.toml)
//   - SNAPKEEP_HOME: base directory for archives, keys, history and logs (default: ~/.local/share/snapkeep)
//
// The source directory defaults to the working directory, and the repository
// is named after it.
func GetDefaults() (*Defaults, error) {
	configPath, err := envOrHome("SNAPKEEP_CONFIG_PATH", ".config", "snapkeep.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := envOrHome("SNAPKEEP_HOME", ".local", "share", "snapkeep")
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("cannot determine working directory: %w", err)
	}

	return &Defaults{
		ConfigPath:     configPath,
		BaseDir:        baseDir,
		LogDir:         filepath.Join(baseDir, "log"),
		SourceDir:      cwd,
		RepositoryName: filepath.Base(cwd),
	}, nil
}

// envOrHome returns the value of env if set, otherwise the path elems joined
// under the user's home directory.
func envOrHome(env string, elems ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elems...)...), nil
}
