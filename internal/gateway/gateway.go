// ABOUTME: Gateway orchestrator that builds every component from configuration
// ABOUTME: Manages the HTTP server lifecycle and releases the store, hub and caches on shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexdesk/chat-gateway/internal/auth"
	"github.com/lexdesk/chat-gateway/internal/config"
	"github.com/lexdesk/chat-gateway/internal/conversation"
	"github.com/lexdesk/chat-gateway/internal/dedupe"
	"github.com/lexdesk/chat-gateway/internal/logging"
	"github.com/lexdesk/chat-gateway/internal/media"
	"github.com/lexdesk/chat-gateway/internal/metrics"
	"github.com/lexdesk/chat-gateway/internal/provider"
	"github.com/lexdesk/chat-gateway/internal/realtime"
	"github.com/lexdesk/chat-gateway/internal/store"
	"github.com/lexdesk/chat-gateway/internal/webhook"
)

// Gateway owns the chat gateway's components and its HTTP server.
type Gateway struct {
	config     *config.Config
	store      *store.SQLStore
	hub        *realtime.Hub
	dedupe     *dedupe.Cache
	httpServer *http.Server
	handler    http.Handler
	logger     zerolog.Logger
}

// newVerifier returns nil in anonymous mode. The interface stays nil so the
// middleware can tell the modes apart.
func newVerifier(cfg config.AuthConfig, logger zerolog.Logger) (auth.TokenVerifier, error) {
	if cfg.JWTSecret == "" {
		logger.Warn().Msg("auth disabled - no jwt_secret configured")
		return nil, nil
	}
	v, err := auth.NewJWTVerifier([]byte(cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	logger.Info().Msg("HTTP auth middleware enabled")
	return v, nil
}

// mediaPrefix is the route for locally served blobs, empty when the blob
// store is not served by this process.
func mediaPrefix(cfg config.MediaConfig) string {
	if cfg.Driver != "fs" || !strings.HasPrefix(cfg.PublicURL, "/") {
		return ""
	}
	return cfg.PublicURL
}

// New creates a new Gateway instance with the given configuration.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Gateway, error) {
	s, err := store.Open(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	verifier, err := newVerifier(cfg.Auth, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	blobs, err := media.Open(ctx, cfg.Media, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("initializing media store: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	hub := realtime.NewHub(cfg.Realtime, m, logger)
	prov := provider.New(provider.Options{
		Source:   provider.NewStaticSource(cfg.Provider),
		Sessions: s,
		Config:   cfg.Provider,
		Metrics:  m,
		Logger:   logger,
	})
	dedupeCache := dedupe.New(cfg.Webhook.DedupeTTL)

	svc := conversation.New(conversation.Options{
		Store:         s,
		Provider:      prov,
		Hub:           hub,
		Media:         blobs,
		MirrorInbound: cfg.Media.MirrorInbound,
		Dedupe:        dedupeCache,
		Normalizer:    webhook.New(cfg.Webhook.Candidates),
		Metrics:       m,
		Logger:        logger,
	})

	handler := NewRouter(Deps{
		Conversations: svc,
		Settings:      prov,
		DB:            s,
		Stream:        hub,
		Verifier:      verifier,
		Media:         blobs,
		MediaPrefix:   mediaPrefix(cfg.Media),
		WebhookPath:   cfg.Webhook.Path,
		MetricsPath:   cfg.Metrics.Path,
		Metrics:       m,
		Logger:        logger,
	})

	return &Gateway{
		config:  cfg,
		store:   s,
		hub:     hub,
		dedupe:  dedupeCache,
		handler: handler,
		httpServer: &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logging.Component(&logger, "gateway"),
	}, nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Run serves HTTP until ctx is canceled or the server fails, then shuts down.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info().Msg("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error().Err(serverErr).Msg("server error")
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases resources. Realtime streams are
// closed first so the server does not wait on them.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info().Msg("shutting down gateway")

	g.hub.Close()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())
	g.dedupe.Close()

	return errors.Join(errs...)
}
