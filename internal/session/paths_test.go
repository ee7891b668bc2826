package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("u1")
	want := filepath.Join(home, ".fadeline", "users", "u1")
	if got != want {
		t.Errorf("Dir(u1) = %q, want %q", got, want)
	}
}

func TestDBPath(t *testing.T) {
	got := DBPath("u1")
	if !strings.HasSuffix(got, filepath.Join("users", "u1", "chat.db")) {
		t.Errorf("DBPath(u1) = %q, want suffix users/u1/chat.db", got)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("u1")
	if !strings.HasSuffix(got, filepath.Join("users", "u1", "LOCK")) {
		t.Errorf("LockPath(u1) = %q, want suffix users/u1/LOCK", got)
	}
}

func TestTokenPath(t *testing.T) {
	got := TokenPath("u1")
	if !strings.HasSuffix(got, filepath.Join("users", "u1", "token")) {
		t.Errorf("TokenPath(u1) = %q, want suffix users/u1/token", got)
	}
}
