// Package config loads the web client's settings.
//
// Settings come from three layers, later ones winning:
//
//  1. built-in defaults (defaultConfig)
//  2. an optional YAML file (CONFIG_PATH, ./config.yaml, /etc/bookshelf/config.yaml)
//  3. environment variables (PORT, API_BASE_URL, SESSION_STORE, ...)
//
// Only API_BASE_URL has no usable default outside local development, and
// SESSION_SECRET must be set whenever the process is reachable by anyone
// else: the default secret is public.
package config

import (
	"fmt"
	"time"
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// DevSessionSecret is the default signing secret. Load warns when it is in use.
const DevSessionSecret = "bookshelf-dev-secret-change-me"

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	API     APIConfig     `koanf:"api"`
	Session SessionConfig `koanf:"session"`
	Modal   ModalConfig   `koanf:"modal"`
	Logging LoggingConfig `koanf:"logging"`
}

type ServerConfig struct {
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	TemplateDir       string        `koanf:"template_dir" validate:"required"`
	StaticDir         string        `koanf:"static_dir" validate:"required"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"min=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
}

// APIConfig points at the remote book service.
type APIConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,url,startswith=http"`
	// Timeout bounds each request. Zero means no client-side limit: the
	// page waits as long as the service takes.
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`
}

type SessionConfig struct {
	Store  string `koanf:"store" validate:"oneof=memory sqlite redis"`
	Secret string `koanf:"secret" validate:"min=16"`
	// IdleTimeout is how long an untouched session is kept.
	IdleTimeout   time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	TokenTTL      time.Duration `koanf:"token_ttl" validate:"gt=0"`
	CookieSecure  bool          `koanf:"cookie_secure"`
	SQLitePath    string        `koanf:"sqlite_path" validate:"required_if=Store sqlite"`
	RedisAddr     string        `koanf:"redis_addr" validate:"required_if=Store redis"`
	RedisDB       int           `koanf:"redis_db" validate:"min=0"`
}

type ModalConfig struct {
	// CloseSettle is the pause between closing the modal and opening a
	// similar book, so the close is rendered before the next open starts.
	CloseSettle time.Duration `koanf:"close_settle" validate:"min=0"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
