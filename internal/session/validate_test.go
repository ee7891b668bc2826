package session

import "testing"

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "alice", false},
		{"valid uuid-ish", "9f8b2c1d-aa41-4e6b-9c0f-1b2d3e4f5a6b", false},
		{"valid with numbers", "user123", false},
		{"valid with underscore", "user_1", false},
		{"valid single char", "a", false},
		{"empty", "", true},
		{"space", "user 1", true},
		{"dot", "user.1", true},
		{"slash", "user/1", true},
		{"special chars", "user@1", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUserID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
