package config

import (
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"100B", 100, false},
		{"1KB", 1000, false},
		{"1KiB", 1024, false},
		{"1MB", 1000 * 1000, false},
		{"50MiB", 50 * 1024 * 1024, false},
		{"10GB", 10 * 1000 * 1000 * 1000, false},
		{"2GiB", 2 * 1024 * 1024 * 1024, false},
		{"500mb", 500 * 1000 * 1000, false},
		{"1024", 1024, false},
		{" 8 MB ", 8 * 1000 * 1000, false},
		{"", 0, true},
		{"-1GB", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseSize(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSize(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}
