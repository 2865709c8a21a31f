// ABOUTME: Server-sent events writer for a registered realtime client
// ABOUTME: Emits queued events and a periodic ping until the client or request goes away

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ClientHeader names the response header carrying the stream's client id.
// Clients echo it on writes to avoid receiving their own message:new events.
const ClientHeader = "X-Realtime-Client"

// ErrStreamingUnsupported is returned when the writer cannot flush
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Serve registers a client, streams its events as SSE and unregisters it when
// ctx ends, the client is evicted or a write fails.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, userID, name string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	c := h.Register(userID, name)
	defer h.Unregister(c.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(ClientHeader, c.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return nil
		case ev := <-c.Events():
			if err := writeEvent(w, ev.Kind, ev.Data); err != nil {
				h.logger.Debug().Err(err).Str("client_id", c.ID).Msg("stream write failed")
				return nil
			}
			flusher.Flush()
		case <-ticker.C:
			if err := writeEvent(w, EventPing, map[string]any{"at": h.now().UTC()}); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes a single SSE frame.
func writeEvent(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", event, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
