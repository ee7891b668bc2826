package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.fadeline.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fadeline")
}

// Dir returns the per-user state directory. All chat data is namespaced
// under it so switching accounts never mixes histories.
func Dir(userID string) string {
	return filepath.Join(BaseDir(), "users", userID)
}

// DBPath returns the per-user chat database path.
func DBPath(userID string) string {
	return filepath.Join(Dir(userID), "chat.db")
}

// LockPath returns the daemon lock file path for a user.
func LockPath(userID string) string {
	return filepath.Join(Dir(userID), "LOCK")
}

// TokenPath returns the persisted bearer token path for a user.
func TokenPath(userID string) string {
	return filepath.Join(Dir(userID), "token")
}

// LogDir returns the log directory for a user.
func LogDir(userID string) string {
	return filepath.Join(Dir(userID), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(userID string) string {
	return filepath.Join(LogDir(userID), "fadechatd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the per-user directory tree with proper permissions.
func EnsureDir(userID string) error {
	dirs := []string{
		Dir(userID),
		LogDir(userID),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
