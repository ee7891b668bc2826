package session

import "github.com/fadeline/chat/internal/config"

// Resolve determines the active user id using precedence:
// 1. flagOverride (--user flag)
// 2. config.toml default_user
// Returns the empty string if neither is set; callers must treat that
// as "not signed in".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultUser != "" {
		return cfg.DefaultUser
	}
	return ""
}
