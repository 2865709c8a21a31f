// ABOUTME: Provider integration settings, their source and the cached lookup
// ABOUTME: Distinguishes a missing configuration from an explicitly disabled one

package provider

import (
	"context"
	"strings"

	"github.com/lexdesk/chat-gateway/internal/chaterr"
	"github.com/lexdesk/chat-gateway/internal/config"
)

// Settings is the provider configuration as read from its source
type Settings struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Active        bool
}

// Configured reports whether enough is set to talk to the provider.
func (s Settings) Configured() bool { return s.BaseURL != "" }

// Check returns NotConfigured or Disabled when the integration cannot be used.
func (s Settings) Check() error {
	if !s.Configured() {
		return chaterr.NotConfigured()
	}
	if !s.Active {
		return chaterr.Disabled()
	}
	return nil
}

// ConfigSource supplies provider settings. Implementations may read from a
// database table maintained by the surrounding application.
type ConfigSource interface {
	ProviderSettings(ctx context.Context) (Settings, error)
}

// StaticSource serves settings from the loaded configuration file.
type StaticSource struct {
	cfg config.ProviderConfig
}

// NewStaticSource wraps a ProviderConfig.
func NewStaticSource(cfg config.ProviderConfig) *StaticSource {
	return &StaticSource{cfg: cfg}
}

// ProviderSettings implements ConfigSource.
func (s *StaticSource) ProviderSettings(context.Context) (Settings, error) {
	return Settings{
		BaseURL:       NormalizeBaseURL(s.cfg.BaseURL),
		APIKey:        s.cfg.APIKey,
		WebhookSecret: s.cfg.WebhookSecret,
		Active:        s.cfg.IsActive(),
	}, nil
}

// Path suffixes operators commonly paste along with the base URL.
var knownSuffixes = []string{"/api/v1", "/api", "/v1"}

// NormalizeBaseURL strips whitespace, trailing slashes and known API path suffixes.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	for {
		before := u
		u = strings.TrimRight(u, "/")
		for _, suffix := range knownSuffixes {
			if strings.HasSuffix(strings.ToLower(u), suffix) {
				u = u[:len(u)-len(suffix)]
				break
			}
		}
		if u == before {
			return u
		}
	}
}
