// Package home resolves the user's home and config directories, used by
// session persistence, the recording catalog, and OS-keyring auth.
package home

import (
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to a ".tmp" sibling of path, then renames it
// into place, so a reader never observes a partially written file (spec
// §4.6: "Persistence is atomic per append (write-temp + rename or
// equivalent)"; grounded on the teacher's pattern-file write in
// pkg/server/multi_agent.go).
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Dir returns the current user's home directory, falling back to "." if it
// cannot be determined.
func Dir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

// ConfigDir returns "~/.forge-agent", creating it if absent.
func ConfigDir() (string, error) {
	dir := filepath.Join(Dir(), ".forge-agent")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// SessionsDir returns "~/.forge-agent/sessions", creating it if absent.
func SessionsDir() (string, error) {
	cfg, err := ConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(cfg, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// RecordingsDir returns "~/.forge-agent/recordings", creating it if absent.
func RecordingsDir() (string, error) {
	cfg, err := ConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(cfg, "recordings")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
