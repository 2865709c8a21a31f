// ABOUTME: Liveness, readiness and local media endpoints
// ABOUTME: Readiness reports database connectivity and the provider integration state

package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lexdesk/chat-gateway/internal/chaterr"
	"github.com/lexdesk/chat-gateway/internal/media"
)

// ReadyResponse is the body of GET /health/ready
type ReadyResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Provider string `json:"provider"`
}

// handleHealth returns 200 OK if the server is alive.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 when the database answers. The provider state is
// informational: local operation works without it.
func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Database: "ok", Provider: "configured"}
	status := http.StatusOK

	if err := s.DB.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("readiness: database ping failed")
		resp.Status = "unavailable"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	settings, err := s.Settings.Settings(ctx)
	switch {
	case err != nil:
		resp.Provider = "unknown"
	case chaterr.IsNotConfigured(settings.Check()):
		resp.Provider = "not_configured"
	case chaterr.IsDisabled(settings.Check()):
		resp.Provider = "disabled"
	}

	writeJSON(w, status, resp)
}

// handleMedia serves a blob stored under the request path.
func (s *server) handleMedia(w http.ResponseWriter, r *http.Request) {
	obj, err := s.Media.Get(r.Context(), r.URL.Path)
	if errors.Is(err, media.ErrNotFound) || errors.Is(err, media.ErrInvalidKey) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(obj.Data)
	}
}
