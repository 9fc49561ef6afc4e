package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	if got := GetEnv("ROBOTFLEET_TEST_UNSET", "default"); got != "default" {
		t.Errorf("Expected 'default', got %q", got)
	}

	t.Setenv("ROBOTFLEET_TEST_STRING", "custom")
	if got := GetEnv("ROBOTFLEET_TEST_STRING", "default"); got != "custom" {
		t.Errorf("Expected 'custom', got %q", got)
	}
}

func TestGetIntEnv(t *testing.T) {
	if got := GetIntEnv("ROBOTFLEET_TEST_UNSET", 42); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}

	t.Setenv("ROBOTFLEET_TEST_INT", "123")
	if got := GetIntEnv("ROBOTFLEET_TEST_INT", 42); got != 123 {
		t.Errorf("Expected 123, got %d", got)
	}

	t.Setenv("ROBOTFLEET_TEST_INT", "not-a-number")
	if got := GetIntEnv("ROBOTFLEET_TEST_INT", 42); got != 42 {
		t.Errorf("Expected 42 for invalid int, got %d", got)
	}
}

func TestGetFloatEnv(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"", 1.5},
		{"0.25", 0.25},
		{"1e3", 1000},
		{"meters", 1.5},
	}

	for _, tt := range tests {
		t.Setenv("ROBOTFLEET_TEST_FLOAT", tt.value)
		if got := GetFloatEnv("ROBOTFLEET_TEST_FLOAT", 1.5); got != tt.want {
			t.Errorf("GetFloatEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"", true, true},
		{"false", true, false},
		{"0", true, false},
		{"TRUE", false, true},
		{"sometimes", false, false},
	}

	for _, tt := range tests {
		t.Setenv("ROBOTFLEET_TEST_BOOL", tt.value)
		if got := GetBoolEnv("ROBOTFLEET_TEST_BOOL", tt.fallback); got != tt.want {
			t.Errorf("GetBoolEnv(%q, %v) = %v, want %v", tt.value, tt.fallback, got, tt.want)
		}
	}
}

func TestGetDurationEnv(t *testing.T) {
	fallback := 5 * time.Second

	if got := GetDurationEnv("ROBOTFLEET_TEST_UNSET", fallback); got != fallback {
		t.Errorf("Expected %v, got %v", fallback, got)
	}

	t.Setenv("ROBOTFLEET_TEST_DURATION", "250ms")
	if got := GetDurationEnv("ROBOTFLEET_TEST_DURATION", fallback); got != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", got)
	}

	t.Setenv("ROBOTFLEET_TEST_DURATION", "soon")
	if got := GetDurationEnv("ROBOTFLEET_TEST_DURATION", fallback); got != fallback {
		t.Errorf("Expected %v for invalid duration, got %v", fallback, got)
	}
}

func TestGetSecretFile(t *testing.T) {
	if got := GetSecretFile(""); got != "" {
		t.Errorf("Expected empty string for empty path, got %q", got)
	}
	if got := GetSecretFile("/nonexistent/path/to/secret"); got != "" {
		t.Errorf("Expected empty string for nonexistent file, got %q", got)
	}

	path := filepath.Join(t.TempDir(), "api-key")
	if err := os.WriteFile(path, []byte("fleet-secret\n"), 0o600); err != nil {
		t.Fatalf("Failed to write secret: %v", err)
	}
	if got := GetSecretFile(path); got != "fleet-secret" {
		t.Errorf("Expected %q, got %q", "fleet-secret", got)
	}
}
