package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// setupTestEnv clears the relevant environment variables and returns a cleanup
// function that restores the original values.
func setupTestEnv(t *testing.T) func() {
	t.Helper()
	keys := []string{
		"PORT", "BIND_ADDR", "DATABASE_URL", "WEB_DIR",
		"GO_ENV", "ALLOWED_ORIGINS", "ROOM_IDLE_REAP", "RATE_LIMIT_WS_KEYS",
	}

	orig := map[string]string{}
	for _, k := range keys {
		orig[k] = os.Getenv(k)
		os.Unsetenv(k)
	}

	return func() {
		for k, v := range orig {
			if v != "" {
				os.Setenv(k, v)
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Port != "3000" {
		t.Errorf("Expected PORT default '3000', got '%s'", cfg.Port)
	}
	if cfg.BindAddr != "0.0.0.0" {
		t.Errorf("Expected BIND_ADDR default '0.0.0.0', got '%s'", cfg.BindAddr)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("Expected DATABASE_URL to default to empty, got '%s'", cfg.DatabaseURL)
	}
	if cfg.WebDir != "web/dist" {
		t.Errorf("Expected WEB_DIR default 'web/dist', got '%s'", cfg.WebDir)
	}
	if cfg.GoEnv != "production" {
		t.Errorf("Expected GO_ENV default 'production', got '%s'", cfg.GoEnv)
	}
	if cfg.RoomIdleReap != 60*time.Second {
		t.Errorf("Expected ROOM_IDLE_REAP default 60s, got %v", cfg.RoomIdleReap)
	}
	if cfg.Addr() != "0.0.0.0:3000" {
		t.Errorf("Expected Addr '0.0.0.0:3000', got '%s'", cfg.Addr())
	}
	if cfg.Development() {
		t.Error("Expected production profile by default")
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "notaport")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for invalid PORT, got nil")
	}
	if !strings.Contains(err.Error(), "PORT must be a valid port number") {
		t.Errorf("Expected error message about PORT, got: %v", err)
	}
}

func TestLoad_InvalidReapInterval(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("ROOM_IDLE_REAP", "soon")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for invalid ROOM_IDLE_REAP, got nil")
	}
	if !strings.Contains(err.Error(), "ROOM_IDLE_REAP") {
		t.Errorf("Expected error message about ROOM_IDLE_REAP, got: %v", err)
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("Expected 2 origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.AllowedOrigins[0] != "https://a.example" || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Origins parsed incorrectly: %v", cfg.AllowedOrigins)
	}
}

func TestLoad_DevelopmentProfile(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("GO_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !cfg.Development() {
		t.Error("Expected development profile")
	}
}
