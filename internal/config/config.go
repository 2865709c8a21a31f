// ABOUTME: Configuration loading and parsing for chat-gateway
// ABOUTME: Supports YAML or TOML files with .env loading, environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete chat-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Provider ProviderConfig `yaml:"provider" toml:"provider"`
	Realtime RealtimeConfig `yaml:"realtime" toml:"realtime"`
	Media    MediaConfig    `yaml:"media" toml:"media"`
	Webhook  WebhookConfig  `yaml:"webhook" toml:"webhook"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // sqlite or postgres
	Path   string `yaml:"path" toml:"path"`     // sqlite file
	DSN    string `yaml:"dsn" toml:"dsn"`       // postgres connection string
}

// AuthConfig holds authentication configuration.
// An empty JWTSecret runs the operator API in anonymous mode.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// ProviderConfig holds the external messaging provider integration settings
type ProviderConfig struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	APIKey            string  `yaml:"api_key" toml:"api_key"`
	WebhookSecret     string  `yaml:"webhook_secret" toml:"webhook_secret"`
	Active            *bool   `yaml:"active" toml:"active"`
	MaxAttempts       int     `yaml:"max_attempts" toml:"max_attempts"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`

	Timeout        time.Duration `yaml:"-" toml:"-"`
	Backoff        time.Duration `yaml:"-" toml:"-"`
	ConfigCacheTTL time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TimeoutRaw        string `yaml:"timeout" toml:"timeout"`
	BackoffRaw        string `yaml:"backoff" toml:"backoff"`
	ConfigCacheTTLRaw string `yaml:"config_cache_ttl" toml:"config_cache_ttl"`
}

// IsActive reports whether the provider is switched on. An unset flag means
// active whenever a base URL is present.
func (p ProviderConfig) IsActive() bool {
	if p.Active != nil {
		return *p.Active
	}
	return p.BaseURL != ""
}

// RealtimeConfig holds push stream timing
type RealtimeConfig struct {
	HeartbeatInterval time.Duration `yaml:"-" toml:"-"`
	TypingTimeout     time.Duration `yaml:"-" toml:"-"`
	ClientBuffer      int           `yaml:"client_buffer" toml:"client_buffer"`

	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
	TypingTimeoutRaw     string `yaml:"typing_timeout" toml:"typing_timeout"`
}

// MediaConfig selects and configures the blob store
type MediaConfig struct {
	Driver        string   `yaml:"driver" toml:"driver"` // none, fs or s3
	Dir           string   `yaml:"dir" toml:"dir"`
	PublicURL     string   `yaml:"public_url" toml:"public_url"`
	MirrorInbound bool     `yaml:"mirror_inbound" toml:"mirror_inbound"`
	S3            S3Config `yaml:"s3" toml:"s3"`
}

// S3Config holds S3-compatible object storage settings
type S3Config struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	Region    string `yaml:"region" toml:"region"`
	Bucket    string `yaml:"bucket" toml:"bucket"`
	AccessKey string `yaml:"access_key" toml:"access_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	PathStyle bool   `yaml:"path_style" toml:"path_style"`
}

// WebhookConfig holds inbound webhook settings.
// Candidates extends the normalizer's field lookup paths per logical field;
// configured paths are tried before the built-in ones.
type WebhookConfig struct {
	Path       string              `yaml:"path" toml:"path"`
	Candidates map[string][]string `yaml:"candidates" toml:"candidates"`
	DedupeTTL  time.Duration       `yaml:"-" toml:"-"`

	DedupeTTLRaw string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:           "0.0.0.0:8080",
			ShutdownTimeoutRaw: "10s",
			ShutdownTimeout:    10 * time.Second,
		},
		Database: DatabaseConfig{Driver: "sqlite", Path: "./chat-gateway.db"},
		Provider: ProviderConfig{
			MaxAttempts:       3,
			RequestsPerSecond: 10,
			TimeoutRaw:        "15s",
			Timeout:           15 * time.Second,
			BackoffRaw:        "500ms",
			Backoff:           500 * time.Millisecond,
			ConfigCacheTTLRaw: "30s",
			ConfigCacheTTL:    30 * time.Second,
		},
		Realtime: RealtimeConfig{
			HeartbeatIntervalRaw: "25s",
			HeartbeatInterval:    25 * time.Second,
			TypingTimeoutRaw:     "6s",
			TypingTimeout:        6 * time.Second,
			ClientBuffer:         64,
		},
		Media: MediaConfig{Driver: "none", Dir: "./media", PublicURL: "/media"},
		Webhook: WebhookConfig{
			Path:         "/webhooks/provider",
			DedupeTTLRaw: "10m",
			DedupeTTL:    10 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file next to the config (or in the working directory) is loaded first.
// Environment variables in the format ${VAR_NAME} are expanded.
// Files ending in .toml are parsed as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env files from dir and the working directory.
// Variables already set in the environment are not overridden.
func loadDotEnv(dir string) error {
	candidates := []string{filepath.Join(dir, ".env"), ".env"}
	seen := map[string]bool{}
	for _, p := range candidates {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return err
		}
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.Database.Driver {
	case "", "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported (sqlite, postgres)", c.Database.Driver)
	}

	if c.Provider.MaxAttempts < 1 {
		return fmt.Errorf("provider.max_attempts must be at least 1")
	}
	if c.Provider.RequestsPerSecond < 0 {
		return fmt.Errorf("provider.requests_per_second must not be negative")
	}

	switch c.Media.Driver {
	case "", "none":
	case "fs":
		if c.Media.Dir == "" {
			return fmt.Errorf("media.dir is required for the fs driver")
		}
	case "s3":
		if c.Media.S3.Bucket == "" {
			return fmt.Errorf("media.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("media.driver %q is not supported (none, fs, s3)", c.Media.Driver)
	}

	if c.Webhook.Path == "" || !strings.HasPrefix(c.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with /")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}

	if c.Realtime.ClientBuffer < 1 {
		return fmt.Errorf("realtime.client_buffer must be at least 1")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"provider.timeout", cfg.Provider.TimeoutRaw, &cfg.Provider.Timeout},
		{"provider.backoff", cfg.Provider.BackoffRaw, &cfg.Provider.Backoff},
		{"provider.config_cache_ttl", cfg.Provider.ConfigCacheTTLRaw, &cfg.Provider.ConfigCacheTTL},
		{"realtime.heartbeat_interval", cfg.Realtime.HeartbeatIntervalRaw, &cfg.Realtime.HeartbeatInterval},
		{"realtime.typing_timeout", cfg.Realtime.TypingTimeoutRaw, &cfg.Realtime.TypingTimeout},
		{"webhook.dedupe_ttl", cfg.Webhook.DedupeTTLRaw, &cfg.Webhook.DedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}

// Starter returns the YAML written by `chat-gateway init`.
func Starter() string {
	return `server:
  http_addr: "0.0.0.0:8080"
  shutdown_timeout: "10s"

database:
  driver: "sqlite"
  path: "./chat-gateway.db"

auth:
  jwt_secret: "${CHAT_GATEWAY_JWT_SECRET}"

provider:
  base_url: "${PROVIDER_BASE_URL}"
  api_key: "${PROVIDER_API_KEY}"
  webhook_secret: "${PROVIDER_WEBHOOK_SECRET}"
  timeout: "15s"
  max_attempts: 3
  backoff: "500ms"

realtime:
  heartbeat_interval: "25s"
  typing_timeout: "6s"

media:
  driver: "fs"
  dir: "./media"
  public_url: "/media"
  mirror_inbound: false

webhook:
  path: "/webhooks/provider"
  dedupe_ttl: "10m"

logging:
  level: "info"
  format: "console"

metrics:
  enabled: true
  path: "/metrics"
`
}
