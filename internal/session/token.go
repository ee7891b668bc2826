package session

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoToken is returned when no bearer token has been persisted for a user.
var ErrNoToken = errors.New("no persisted token")

// LoadToken reads the persisted API bearer token for a user.
func LoadToken(userID string) (string, error) {
	data, err := os.ReadFile(TokenPath(userID))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// SaveToken persists the API bearer token for a user with 0600 permissions.
func SaveToken(userID, token string) error {
	if err := EnsureDir(userID); err != nil {
		return err
	}
	return os.WriteFile(TokenPath(userID), []byte(token+"\n"), 0600)
}
