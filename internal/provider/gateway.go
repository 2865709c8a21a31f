// ABOUTME: Gateway performs every outbound call to the messaging provider
// ABOUTME: Requests go through a rate limiter and a bounded retry loop with exponential backoff

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lexdesk/chat-gateway/internal/chaterr"
	"github.com/lexdesk/chat-gateway/internal/config"
	"github.com/lexdesk/chat-gateway/internal/metrics"
)

const settingsKey = "settings"

// SessionLister reports provider sessions already seen locally.
type SessionLister interface {
	ListKnownSessions(ctx context.Context) ([]string, error)
}

// Options configures a Gateway
type Options struct {
	Source   ConfigSource
	Sessions SessionLister
	Config   config.ProviderConfig
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Gateway is the provider HTTP client
type Gateway struct {
	source   ConfigSource
	sessions SessionLister
	settings *gocache.Cache
	client   *resty.Client
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
}

// New creates a Gateway. A nil Source reads opts.Config.
func New(opts Options) *Gateway {
	source := opts.Source
	if source == nil {
		source = NewStaticSource(opts.Config)
	}

	ttl := opts.Config.ConfigCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if rps := opts.Config.RequestsPerSecond; rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}

	attempts := opts.Config.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}

	return &Gateway{
		source:   source,
		sessions: opts.Sessions,
		settings: gocache.New(ttl, 2*ttl),
		client: resty.New().
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "chat-gateway"),
		limiter:     rate.NewLimiter(limit, burst),
		metrics:     opts.Metrics,
		logger:      opts.Logger.With().Str("component", "provider").Logger(),
		maxAttempts: attempts,
		backoff:     opts.Config.Backoff,
		timeout:     opts.Config.Timeout,
	}
}

// Settings returns the cached provider settings, reloading them from the
// source once the cache entry expires.
func (g *Gateway) Settings(ctx context.Context) (Settings, error) {
	if cached, ok := g.settings.Get(settingsKey); ok {
		return cached.(Settings), nil
	}
	s, err := g.source.ProviderSettings(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("loading provider settings: %w", err)
	}
	s.BaseURL = NormalizeBaseURL(s.BaseURL)
	g.settings.SetDefault(settingsKey, s)
	return s, nil
}

// InvalidateSettings forces the next call to reread the source.
func (g *Gateway) InvalidateSettings() {
	g.settings.Delete(settingsKey)
}

// ready returns usable settings or the integration error.
func (g *Gateway) ready(ctx context.Context) (Settings, error) {
	s, err := g.Settings(ctx)
	if err != nil {
		return Settings{}, err
	}
	if err := s.Check(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// request describes one logical provider call
type request struct {
	op     string
	method string
	url    string
	query  map[string]string
	body   any
	apiKey string
}

// retryable reports whether an HTTP status warrants another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// do executes req with up to maxAttempts attempts. Each attempt gets its own
// timeout; 429, 5xx, timeouts and transport failures are retried after a
// doubling backoff. Other non-2xx responses fail immediately; a rejected
// API key also drops the cached settings.
func (g *Gateway) do(ctx context.Context, req request) (*resty.Response, error) {
	var lastErr *chaterr.ProviderError

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := g.backoff * time.Duration(1<<(attempt-2))
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, perr := g.attempt(ctx, req)
		if perr == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = perr

		retry := perr.Timeout || perr.Status == 0 || retryable(perr.Status)
		g.logger.Warn().
			Str("op", req.op).
			Int("attempt", attempt).
			Int("status", perr.Status).
			Bool("timeout", perr.Timeout).
			Bool("retry", retry && attempt < g.maxAttempts).
			Msg("provider request failed")
		if !retry {
			if perr.Status == http.StatusUnauthorized || perr.Status == http.StatusForbidden {
				// Credentials may have rotated at the source.
				g.InvalidateSettings()
			}
			return nil, perr
		}
	}
	return nil, lastErr
}

func (g *Gateway) attempt(ctx context.Context, req request) (*resty.Response, *chaterr.ProviderError) {
	attemptCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	r := g.client.R().SetContext(attemptCtx)
	if req.apiKey != "" {
		r.SetHeader("X-Api-Key", req.apiKey)
	}
	if req.query != nil {
		r.SetQueryParams(req.query)
	}
	if req.body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.body)
	}

	start := time.Now()
	resp, err := r.Execute(req.method, req.url)
	elapsed := time.Since(start)

	if err != nil {
		g.metrics.ProviderAttempt(req.op, 0, elapsed)
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		return nil, &chaterr.ProviderError{Op: req.op, Timeout: timedOut, Err: err}
	}

	g.metrics.ProviderAttempt(req.op, resp.StatusCode(), elapsed)
	if resp.IsError() {
		return nil, &chaterr.ProviderError{Op: req.op, Status: resp.StatusCode(), Err: errors.New(truncateBody(resp.String()))}
	}
	return resp, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncateBody(s string) string {
	const maxBody = 200
	if len(s) > maxBody {
		return s[:maxBody] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}

var errUnsupportedScheme = errors.New("unsupported scheme")
