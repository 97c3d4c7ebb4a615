package commands

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/colonyops/lxfeed/internal/core/config"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string
	Theme      string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	// App holds the opened store
	App *App
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "lxfeed", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "lxfeed")
}

// DefaultLogFile returns the default log file path using the system's state directory.
// On macOS: ~/Library/Logs/lxfeed/lxfeed.log
// On Linux: $XDG_STATE_HOME/lxfeed/lxfeed.log (defaults to ~/.local/state/lxfeed/lxfeed.log)
func DefaultLogFile() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome != "" {
		return filepath.Join(stateHome, "lxfeed", "lxfeed.log")
	}

	home, _ := os.UserHomeDir()

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Logs", "lxfeed", "lxfeed.log")
	}

	return filepath.Join(home, ".local", "state", "lxfeed", "lxfeed.log")
}
