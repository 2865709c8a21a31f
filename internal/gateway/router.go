// ABOUTME: HTTP router and middleware chains for the operator API, webhook and operational endpoints
// ABOUTME: Uses gorilla/mux for routing and alice for recover, request logging and auth chains

package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/rs/zerolog"

	"github.com/lexdesk/chat-gateway/internal/auth"
	"github.com/lexdesk/chat-gateway/internal/conversation"
	"github.com/lexdesk/chat-gateway/internal/media"
	"github.com/lexdesk/chat-gateway/internal/metrics"
	"github.com/lexdesk/chat-gateway/internal/provider"
)

// SettingsSource exposes the provider integration settings
type SettingsSource interface {
	Settings(ctx context.Context) (provider.Settings, error)
}

// Pinger checks database connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// StreamServer serves realtime streams
type StreamServer interface {
	Serve(ctx context.Context, w http.ResponseWriter, userID, name string) error
}

// Deps are the components the router serves. Verifier, Media and Metrics may be nil.
type Deps struct {
	Conversations *conversation.Service
	Settings      SettingsSource
	DB            Pinger
	Stream        StreamServer
	Verifier      auth.TokenVerifier
	Media         media.Store
	MediaPrefix   string // URL prefix for locally served media, empty to disable
	WebhookPath   string
	MetricsPath   string
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// server holds the handlers' dependencies
type server struct {
	Deps
	logger zerolog.Logger
}

// NewRouter builds the HTTP handler for every route.
func NewRouter(d Deps) http.Handler {
	s := &server{Deps: d, logger: d.Logger.With().Str("component", "http").Logger()}

	base := alice.New(s.recoverer, s.requestLogger)
	api := base.Append(auth.HTTPAuthMiddleware(d.Verifier))

	r := mux.NewRouter()
	r.NotFoundHandler = base.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found", Code: "not_found"})
	})
	r.MethodNotAllowedHandler = base.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: "method_not_allowed"})
	})

	r.Handle("/health", base.ThenFunc(s.handleHealth)).Methods(http.MethodGet)
	r.Handle("/health/ready", base.ThenFunc(s.handleReady)).Methods(http.MethodGet)
	if d.Metrics != nil && d.MetricsPath != "" {
		r.Handle(d.MetricsPath, d.Metrics.Handler()).Methods(http.MethodGet)
	}

	webhookPath := d.WebhookPath
	if webhookPath == "" {
		webhookPath = "/webhooks/provider"
	}
	r.Handle(webhookPath, base.ThenFunc(s.handleWebhook)).Methods(http.MethodPost)

	if d.Media != nil && d.MediaPrefix != "" {
		prefix := "/" + strings.Trim(d.MediaPrefix, "/") + "/"
		r.PathPrefix(prefix).Handler(base.Then(http.StripPrefix(prefix, http.HandlerFunc(s.handleMedia)))).
			Methods(http.MethodGet, http.MethodHead)
	}

	a := r.PathPrefix("/api").Subrouter()
	a.Handle("/conversations", api.ThenFunc(s.handleListConversations)).Methods(http.MethodGet)
	a.Handle("/conversations", api.ThenFunc(s.handleCreateConversation)).Methods(http.MethodPost)
	a.Handle("/conversations/{id}", api.ThenFunc(s.handleGetConversation)).Methods(http.MethodGet)
	a.Handle("/conversations/{id}", api.ThenFunc(s.handleUpdateConversation)).Methods(http.MethodPatch)
	a.Handle("/conversations/{id}/messages", api.ThenFunc(s.handleGetMessages)).Methods(http.MethodGet)
	a.Handle("/conversations/{id}/messages", api.ThenFunc(s.handleSendMessage)).Methods(http.MethodPost)
	a.Handle("/conversations/{id}/read", api.ThenFunc(s.handleMarkRead)).Methods(http.MethodPost)
	a.Handle("/conversations/{id}/typing", api.ThenFunc(s.handleTyping)).Methods(http.MethodPost)
	a.Handle("/realtime/stream", api.ThenFunc(s.handleStream)).Methods(http.MethodGet)

	return r
}

// statusWriter records the response status. It forwards Flush so SSE
// streams keep working behind the logging middleware.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// requestLogger logs each request at debug level and records its metrics.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.Metrics.HTTPRequest(r.Method, status, elapsed)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Msg("request")
	})
}

// recoverer turns a handler panic into a 500 response.
func (s *server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
