package config

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

var (
	homeDir   string
	configDir string
)

func init() {
	homeDir, _ = homedir.Dir()
	configDir = filepath.Join(homeDir, ".devworld")
}

// GetConfigDir returns the devworld config directory. DEVWORLD_HOME
// overrides the default ~/.devworld.
func GetConfigDir() string {
	if dir := os.Getenv("DEVWORLD_HOME"); dir != "" {
		return dir
	}
	return configDir
}

// ConfigPath returns the path of the config file.
func ConfigPath() string {
	return filepath.Join(GetConfigDir(), configFile)
}

// DefaultDataDir is where the file store keeps entries.
func DefaultDataDir() string {
	return filepath.Join(GetConfigDir(), "data")
}

// HomeDir returns the user's home directory, the default workspace root.
func HomeDir() string {
	return homeDir
}
