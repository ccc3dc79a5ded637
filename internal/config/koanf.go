package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where a config file is looked for, in order.
// The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/bookshelf/config.yaml",
	"/etc/bookshelf/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

var validate = validator.New()

// defaultConfig returns the settings used when nothing overrides them.
// They suit local development against a book service on port 5000.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			TemplateDir:       "web/templates",
			StaticDir:         "web/static",
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
			ShutdownTimeout:   10 * time.Second,
		},
		API: APIConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 0,
		},
		Session: SessionConfig{
			Store:         StoreMemory,
			Secret:        DevSessionSecret,
			IdleTimeout:   30 * time.Minute,
			SweepInterval: time.Minute,
			TokenTTL:      24 * time.Hour,
			SQLitePath:    "data/sessions.db",
			RedisAddr:     "localhost:6379",
		},
		Modal: ModalConfig{
			CloseSettle: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the optional config file and
// the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// PORT -> server.port, API_BASE_URL -> api.base_url, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks every field against its validate tag.
func (c *Config) Validate() error {
	c.Session.Store = strings.ToLower(strings.TrimSpace(c.Session.Store))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")

	return validate.Struct(c)
}

// UsesDevSecret reports whether sessions are signed with the public default.
func (c *Config) UsesDevSecret() bool {
	return c.Session.Secret == DevSessionSecret
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Variables not listed are ignored, so unrelated environment such as PATH
// or HOME never leaks into the config.
var envMappings = map[string]string{
	"port":                "server.port",
	"template_dir":        "server.template_dir",
	"static_dir":          "server.static_dir",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"shutdown_timeout":    "server.shutdown_timeout",

	"api_base_url": "api.base_url",
	"api_timeout":  "api.timeout",

	"session_store":          "session.store",
	"session_secret":         "session.secret",
	"session_idle_timeout":   "session.idle_timeout",
	"session_sweep_interval": "session.sweep_interval",
	"session_token_ttl":      "session.token_ttl",
	"session_cookie_secure":  "session.cookie_secure",
	"sqlite_path":            "session.sqlite_path",
	"redis_addr":             "session.redis_addr",
	"redis_db":               "session.redis_db",

	"modal_close_settle": "modal.close_settle",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Returning "" tells koanf to skip the variable.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
