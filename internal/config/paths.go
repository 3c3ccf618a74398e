// Package config loads the provider registry (YAML), the behavior config
// (JSON, merged global < project < explicit), and the credentials store.
package config

import (
	"os"
	"path/filepath"
)

const appName = "pyopencode"

// DataDir returns the user data/config directory (~/.config/pyopencode).
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// EnsureDataDir returns DataDir, creating it if needed.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// SessionsDir returns the directory holding session .jsonl files.
func SessionsDir() (string, error) { return ensureSubdir("sessions") }

// EventsDir returns the directory holding per-session event logs.
func EventsDir() (string, error) { return ensureSubdir("events") }

// TodosDir returns the directory holding per-session todo lists.
func TodosDir() (string, error) { return ensureSubdir("todos") }

// LogsDir returns the directory holding the agent's own log file.
func LogsDir() (string, error) { return ensureSubdir("logs") }

func ensureSubdir(name string) (string, error) {
	dir, err := EnsureDataDir()
	if err != nil {
		return "", err
	}
	sub := filepath.Join(dir, name)
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return "", err
	}
	return sub, nil
}
