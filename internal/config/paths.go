package config

import (
	"os"
	"path/filepath"
)

// ParleyPath returns the root directory for Parley data.
// It uses $PARLEY_PATH if set, otherwise defaults to ~/.parley.
func ParleyPath() string {
	if v := os.Getenv("PARLEY_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".parley")
	}
	return filepath.Join(home, ".parley")
}

// ConfigPath returns the path to the Parley config file.
func ConfigPath() string {
	return filepath.Join(ParleyPath(), "config.yaml")
}

// DotenvPath returns the path to the Parley .env file.
func DotenvPath() string {
	return filepath.Join(ParleyPath(), ".env")
}

// DataPath returns the default path for the session database.
func DataPath() string {
	return filepath.Join(ParleyPath(), "sessions.db")
}

// HeartbeatPath returns the path to the server liveness file.
func HeartbeatPath() string {
	return filepath.Join(ParleyPath(), "server.heartbeat")
}
