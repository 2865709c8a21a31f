// ABOUTME: Tests for the provider gateway against scripted httptest servers
// ABOUTME: Covers retry and backoff, timeouts, integration states, session resolution and parsing

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/chat-gateway/internal/chaterr"
	"github.com/lexdesk/chat-gateway/internal/config"
	"github.com/lexdesk/chat-gateway/internal/store"
)

type fakeSessions struct {
	sessions []string
	err      error
}

func (f *fakeSessions) ListKnownSessions(context.Context) ([]string, error) {
	return f.sessions, f.err
}

func testProviderConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		MaxAttempts:    3,
		Timeout:        500 * time.Millisecond,
		Backoff:        time.Millisecond,
		ConfigCacheTTL: time.Minute,
	}
}

func newTestGateway(t *testing.T, cfg config.ProviderConfig, sessions SessionLister) *Gateway {
	t.Helper()
	return New(Options{Config: cfg, Sessions: sessions, Logger: zerolog.Nop()})
}

func TestSend_RetriesServerErrorsThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		assert.Equal(t, "/api/sendText", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": {"_serialized": "true_5511@c.us_ABC"}, "timestamp": 1767225600}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, testProviderConfig(srv.URL), nil)
	res, err := g.Send(context.Background(), SendRequest{
		Session: "default",
		ChatID:  "5511@c.us",
		Content: "Your documents are ready",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, "true_5511@c.us_ABC", res.ExternalID)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), res.Timestamp)
	assert.Equal(t, "5511@c.us", gotBody["chatId"])
	assert.Equal(t, "Your documents are ready", gotBody["text"])
	assert.Equal(t, "default", gotBody["session"])
}

func TestSend_ExhaustsRetriesOnRateLimit(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := newTestGateway(t, testProviderConfig(srv.URL), nil)
	_, err := g.Send(context.Background(), SendRequest{Session: "s", ChatID: "c", Content: "x"})

	var perr *chaterr.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusTooManyRequests, perr.Status)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, http.StatusServiceUnavailable, chaterr.HTTPStatus(err))
}

func TestSend_ClientErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "chat not found"}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, testProviderConfig(srv.URL), nil)
	_, err := g.Send(context.Background(), SendRequest{Session: "s", ChatID: "c", Content: "x"})

	var perr *chaterr.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadRequest, perr.Status)
	assert.Contains(t, perr.Error(), "chat not found")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestSend_TimeoutOnEveryAttempt(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testProviderConfig(srv.URL)
	cfg.Timeout = 30 * time.Millisecond
	g := newTestGateway(t, cfg, nil)

	_, err := g.Send(context.Background(), SendRequest{Session: "s", ChatID: "c", Content: "x"})

	var perr *chaterr.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Timeout)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, http.StatusGatewayTimeout, chaterr.HTTPStatus(err))
}

func TestSend_CallerCancellationStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testProviderConfig(srv.URL)
	cfg.Backoff = time.Hour
	g := newTestGateway(t, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := g.Send(ctx, SendRequest{Session: "s", ChatID: "c", Content: "x"})
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestIntegrationStates(t *testing.T) {
	off := false

	t.Run("not configured", func(t *testing.T) {
		g := newTestGateway(t, testProviderConfig(""), nil)
		_, err := g.Send(context.Background(), SendRequest{ChatID: "c", Content: "x"})
		assert.True(t, chaterr.IsNotConfigured(err), "got %v", err)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := testProviderConfig("http://provider.invalid")
		cfg.Active = &off
		g := newTestGateway(t, cfg, nil)
		_, err := g.ListChats(context.Background(), "default", 10)
		assert.True(t, chaterr.IsDisabled(err), "got %v", err)
	})
}

func TestSessions_Resolution(t *testing.T) {
	var remote atomic.Value
	remote.Store(`[{"name": "default"}, {"name": "office"}]`)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/sessions", r.URL.Path)
		_, _ = w.Write([]byte(remote.Load().(string)))
	}))
	defer srv.Close()
	ctx := context.Background()

	t.Run("explicit session wins", func(t *testing.T) {
		g := newTestGateway(t, testProviderConfig(srv.URL), &fakeSessions{sessions: []string{"known"}})
		got, err := g.Sessions(ctx, " firm ")
		require.NoError(t, err)
		assert.Equal(t, []string{"firm"}, got)
	})

	t.Run("known sessions before provider", func(t *testing.T) {
		before := hits.Load()
		g := newTestGateway(t, testProviderConfig(srv.URL), &fakeSessions{sessions: []string{"known"}})
		got, err := g.Sessions(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"known"}, got)
		assert.Equal(t, before, hits.Load())
	})

	t.Run("provider listing fallback", func(t *testing.T) {
		g := newTestGateway(t, testProviderConfig(srv.URL), &fakeSessions{})
		got, err := g.Sessions(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"default", "office"}, got)
	})

	t.Run("nothing resolvable is a validation error", func(t *testing.T) {
		remote.Store(`[]`)
		g := newTestGateway(t, testProviderConfig(srv.URL), &fakeSessions{})
		_, err := g.ListChats(ctx, "", 10)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, chaterr.HTTPStatus(err))
	})
}

func TestListChats_FansOutAcrossSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/alpha/chats":
			assert.Equal(t, "25", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`[{
				"id": {"_serialized": "5511@c.us"},
				"name": "Maria Souza",
				"picture": "https://pics.example.com/maria.jpg",
				"unreadCount": 2,
				"lastMessage": {"id": "M1", "body": "Thanks!", "fromMe": true, "timestamp": 1767225600000}
			}]`))
		case "/api/beta/chats":
			_, _ = w.Write([]byte(`{"chats": [{"id": "5522@c.us"}, {"name": "no id"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := newTestGateway(t, testProviderConfig(srv.URL), &fakeSessions{sessions: []string{"alpha", "beta"}})
	chats, err := g.ListChats(context.Background(), "", 25)
	require.NoError(t, err)
	require.Len(t, chats, 2)

	assert.Equal(t, "5511@c.us", chats[0].ID)
	assert.Equal(t, "alpha", chats[0].Session)
	assert.Equal(t, "Maria Souza", chats[0].Name)
	assert.Equal(t, 2, chats[0].UnreadCount)
	require.NotNil(t, chats[0].LastMessage)
	assert.True(t, chats[0].LastMessage.FromMe)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), chats[0].LastMessage.Timestamp)

	assert.Equal(t, "5522@c.us", chats[1].ID)
	assert.Equal(t, "beta", chats[1].Session)
	assert.Nil(t, chats[1].LastMessage)
}

func TestDownloadMedia_KeyOnlySentToProviderHost(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer other.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "/api/files/photo.jpg", r.URL.Path)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	g := newTestGateway(t, testProviderConfig(srv.URL), nil)

	data, ctype, err := g.DownloadMedia(context.Background(), "/api/files/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
	assert.Equal(t, "image/jpeg", ctype)

	data, ctype, err = g.DownloadMedia(context.Background(), other.URL+"/avatar.png")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", ctype)

	_, _, err = g.DownloadMedia(context.Background(), "ftp://example.com/x")
	assert.Equal(t, http.StatusBadRequest, chaterr.HTTPStatus(err))
}

type countingSource struct {
	loads atomic.Int32
}

func (c *countingSource) ProviderSettings(context.Context) (Settings, error) {
	c.loads.Add(1)
	return Settings{BaseURL: "https://waha.example.com/api/", Active: true}, nil
}

func TestSettings_CachedUntilInvalidated(t *testing.T) {
	src := &countingSource{}
	g := New(Options{Source: src, Config: testProviderConfig(""), Logger: zerolog.Nop()})
	ctx := context.Background()

	s, err := g.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://waha.example.com", s.BaseURL)
	_, _ = g.Settings(ctx)
	assert.Equal(t, int32(1), src.loads.Load())

	g.InvalidateSettings()
	_, _ = g.Settings(ctx)
	assert.Equal(t, int32(2), src.loads.Load())
}

type rotatingSource struct {
	baseURL string
	key     atomic.Value
	loads   atomic.Int32
}

func (r *rotatingSource) ProviderSettings(context.Context) (Settings, error) {
	r.loads.Add(1)
	return Settings{BaseURL: r.baseURL, APIKey: r.key.Load().(string), Active: true}, nil
}

func TestSend_RejectedKeyReloadsSettings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "rotated-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id": "wamid.OK"}`))
	}))
	defer srv.Close()

	src := &rotatingSource{baseURL: srv.URL}
	src.key.Store("old-key")
	g := New(Options{Source: src, Config: testProviderConfig(""), Logger: zerolog.Nop()})
	ctx := context.Background()
	req := SendRequest{Session: "default", ChatID: "5511@c.us", Content: "hello"}

	_, err := g.Send(ctx, req)
	assert.Equal(t, http.StatusBadGateway, chaterr.HTTPStatus(err))

	src.key.Store("rotated-key")
	res, err := g.Send(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "wamid.OK", res.ExternalID)
	assert.Equal(t, int32(2), src.loads.Load())
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := map[string]string{
		"https://waha.example.com":             "https://waha.example.com",
		"https://waha.example.com/":            "https://waha.example.com",
		" https://waha.example.com/api/ ":      "https://waha.example.com",
		"https://waha.example.com/api/v1":      "https://waha.example.com",
		"https://waha.example.com/proxy/api//": "https://waha.example.com/proxy",
		"":                                     "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeBaseURL(in), "input %q", in)
	}
}

func TestValidateOutgoing(t *testing.T) {
	img := []store.Attachment{{ID: "a1", Type: "image", URL: "https://cdn.example.com/x.jpg", Name: "x.jpg"}}

	assert.NoError(t, ValidateOutgoing("", nil))
	assert.NoError(t, ValidateOutgoing("text", nil))
	assert.NoError(t, ValidateOutgoing("image", img))

	for name, err := range map[string]error{
		"text with attachment": ValidateOutgoing("text", img),
		"image without":        ValidateOutgoing("image", nil),
		"audio":                ValidateOutgoing("audio", nil),
		"unknown":              ValidateOutgoing("video", nil),
	} {
		assert.Equal(t, http.StatusBadRequest, chaterr.HTTPStatus(err), name)
	}
}

func TestSend_ImageUsesImageEndpoint(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, testProviderConfig(srv.URL), nil)
	res, err := g.Send(context.Background(), SendRequest{
		Session:     "default",
		ChatID:      "5511@c.us",
		Content:     "signed contract",
		Type:        "image",
		Attachments: []store.Attachment{{URL: "https://cdn.example.com/c.jpg", Name: "c.jpg"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/sendImage", path)
	assert.Equal(t, "signed contract", body["caption"])
	assert.Empty(t, res.ExternalID)
	assert.True(t, res.Timestamp.IsZero())
}
