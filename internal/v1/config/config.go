package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Required-with-default variables
	Port     string
	BindAddr string

	// Optional variables
	DatabaseURL string // empty means static passages only
	WebDir      string
	GoEnv       string

	AllowedOrigins []string

	// Room tuning
	RoomIdleReap time.Duration

	// Per-connection keystroke pre-filter, ulule/limiter formatted ("20-S" etc.)
	RateLimitWsKeys string
}

// Load validates all environment variables and returns a Config object.
// Returns an error if any variable is present but invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// PORT (default 3000)
	cfg.Port = getEnvOrDefault("PORT", "3000")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// BIND_ADDR (default 0.0.0.0)
	cfg.BindAddr = getEnvOrDefault("BIND_ADDR", "0.0.0.0")

	// DATABASE_URL (optional; selects the passage store)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	// WEB_DIR (default web/dist)
	cfg.WebDir = getEnvOrDefault("WEB_DIR", "web/dist")

	// GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// ALLOWED_ORIGINS (comma separated)
	origins := getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	// ROOM_IDLE_REAP (default 60s)
	reap := getEnvOrDefault("ROOM_IDLE_REAP", "60s")
	d, err := time.ParseDuration(reap)
	if err != nil || d <= 0 {
		errs = append(errs, fmt.Sprintf("ROOM_IDLE_REAP must be a positive duration (got '%s')", reap))
	} else {
		cfg.RoomIdleReap = d
	}

	// RATE_LIMIT_WS_KEYS (default 200 keystrokes per second per connection;
	// the room enforces the fine-grained 20-per-100ms window itself)
	cfg.RateLimitWsKeys = getEnvOrDefault("RATE_LIMIT_WS_KEYS", "200-S")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return cfg, nil
}

// Development reports whether the development logging profile is selected.
func (c *Config) Development() bool {
	return c.GoEnv == "development"
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}
