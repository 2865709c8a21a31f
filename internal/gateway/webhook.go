// ABOUTME: Inbound provider webhook endpoint with optional shared-secret check
// ABOUTME: Accepted deliveries are always acknowledged with an empty 200, whatever they contained

package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/lexdesk/chat-gateway/internal/chaterr"
)

// WebhookSecretHeader carries the shared webhook secret
const WebhookSecretHeader = "X-Webhook-Secret"

// maxWebhookBytes bounds webhook bodies; providers batch at most a few hundred events.
const maxWebhookBytes = 10 << 20

func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	settings, err := s.Settings.Settings(r.Context())
	if err != nil {
		s.Metrics.WebhookRequest("error")
		writeError(w, s.logger, err)
		return
	}

	if secret := settings.WebhookSecret; secret != "" {
		got := r.Header.Get(WebhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			s.Metrics.WebhookRequest("unauthorized")
			s.logger.Warn().Str("remote", r.RemoteAddr).Msg("webhook secret mismatch")
			writeError(w, s.logger, chaterr.ErrWebhookUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		s.Metrics.WebhookRequest("unreadable")
		s.logger.Warn().Err(err).Msg("failed to read webhook body")
		w.WriteHeader(http.StatusOK)
		return
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		s.Metrics.WebhookRequest("malformed")
		s.logger.Warn().Err(err).Int("bytes", len(body)).Msg("webhook body is not JSON")
		w.WriteHeader(http.StatusOK)
		return
	}

	// A provider hanging up mid-delivery must not abort half-recorded batches.
	res := s.Conversations.HandleWebhook(context.WithoutCancel(r.Context()), payload)
	s.Metrics.WebhookRequest("accepted")
	s.logger.Debug().
		Int("recorded", res.Recorded).
		Int("duplicates", res.Duplicates).
		Int("statuses", res.Statuses).
		Int("failed", res.Failed).
		Msg("webhook accepted")
	w.WriteHeader(http.StatusOK)
}
