// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, .env files, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:9090"
  shutdown_timeout: "5s"

database:
  path: "./test.db"

provider:
  base_url: "https://waha.example.com/api/"
  api_key: "secret-key"
  webhook_secret: "hook"
  timeout: "2s"
  max_attempts: 4
  backoff: "100ms"

realtime:
  heartbeat_interval: "10s"
  typing_timeout: "3s"

webhook:
  candidates:
    conversationId: ["payload.chat.jid"]

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:9090")
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, 5*time.Second)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Provider.Timeout != 2*time.Second {
		t.Errorf("Provider.Timeout = %v, want %v", cfg.Provider.Timeout, 2*time.Second)
	}
	if cfg.Provider.Backoff != 100*time.Millisecond {
		t.Errorf("Provider.Backoff = %v, want %v", cfg.Provider.Backoff, 100*time.Millisecond)
	}
	if cfg.Provider.MaxAttempts != 4 {
		t.Errorf("Provider.MaxAttempts = %d, want 4", cfg.Provider.MaxAttempts)
	}
	if !cfg.Provider.IsActive() {
		t.Error("Provider.IsActive() = false, want true when base_url is set")
	}
	if cfg.Realtime.TypingTimeout != 3*time.Second {
		t.Errorf("Realtime.TypingTimeout = %v, want %v", cfg.Realtime.TypingTimeout, 3*time.Second)
	}
	if got := cfg.Webhook.Candidates["conversationId"]; len(got) != 1 || got[0] != "payload.chat.jid" {
		t.Errorf("Webhook.Candidates[conversationId] = %v", got)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}

	// Values not present in the file keep their defaults
	if cfg.Webhook.Path != "/webhooks/provider" {
		t.Errorf("Webhook.Path = %q, want default", cfg.Webhook.Path)
	}
	if cfg.Webhook.DedupeTTL != 10*time.Minute {
		t.Errorf("Webhook.DedupeTTL = %v, want %v", cfg.Webhook.DedupeTTL, 10*time.Minute)
	}
	if cfg.Provider.ConfigCacheTTL != 30*time.Second {
		t.Errorf("Provider.ConfigCacheTTL = %v, want %v", cfg.Provider.ConfigCacheTTL, 30*time.Second)
	}
	if cfg.Realtime.ClientBuffer != 64 {
		t.Errorf("Realtime.ClientBuffer = %d, want 64", cfg.Realtime.ClientBuffer)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[server]
http_addr = "127.0.0.1:8081"

[database]
driver = "postgres"
dsn = "postgres://localhost/chat?sslmode=disable"

[provider]
base_url = "http://provider:3000"
active = false

[media]
driver = "s3"

[media.s3]
bucket = "attachments"
region = "us-east-1"
path_style = true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:8081" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Provider.IsActive() {
		t.Error("Provider.IsActive() = true, want false when explicitly deactivated")
	}
	if cfg.Media.S3.Bucket != "attachments" || !cfg.Media.S3.PathStyle {
		t.Errorf("Media.S3 = %+v", cfg.Media.S3)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_CHAT_API_KEY", "from-env")

	configPath := writeConfig(t, "config.yaml", `
provider:
  base_url: "http://localhost:3000"
  api_key: "${TEST_CHAT_API_KEY}"
  webhook_secret: "${TEST_CHAT_UNSET_VAR}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Provider.APIKey != "from-env" {
		t.Errorf("Provider.APIKey = %q, want %q", cfg.Provider.APIKey, "from-env")
	}
	if cfg.Provider.WebhookSecret != "" {
		t.Errorf("Provider.WebhookSecret = %q, want empty for unset var", cfg.Provider.WebhookSecret)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	const key = "TEST_CHAT_DOTENV_SECRET"
	t.Cleanup(func() { os.Unsetenv(key) })

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=dotenv-value\n"), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("auth:\n  jwt_secret: \"${"+key+"}\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "dotenv-value" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "dotenv-value")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
realtime:
  typing_timeout: "soon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "realtime.typing_timeout") {
		t.Errorf("error %q should name the failing field", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"zero attempts", func(c *Config) { c.Provider.MaxAttempts = 0 }, "provider.max_attempts"},
		{"s3 without bucket", func(c *Config) { c.Media.Driver = "s3" }, "media.s3.bucket"},
		{"relative webhook path", func(c *Config) { c.Webhook.Path = "hooks" }, "webhook.path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestStarterConfigLoads(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", Starter())

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load(Starter()) error = %v", err)
	}
	if cfg.Media.Driver != "fs" {
		t.Errorf("Media.Driver = %q, want fs", cfg.Media.Driver)
	}
}
