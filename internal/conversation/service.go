// ABOUTME: Service is the conversation layer between transports and storage
// ABOUTME: Every state change is persisted first, then fanned out to realtime clients

package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexdesk/chat-gateway/internal/chaterr"
	"github.com/lexdesk/chat-gateway/internal/dedupe"
	"github.com/lexdesk/chat-gateway/internal/media"
	"github.com/lexdesk/chat-gateway/internal/metrics"
	"github.com/lexdesk/chat-gateway/internal/provider"
	"github.com/lexdesk/chat-gateway/internal/store"
	"github.com/lexdesk/chat-gateway/internal/webhook"
)

// Provider defines what the service needs from the messaging provider
type Provider interface {
	Sessions(ctx context.Context, session string) ([]string, error)
	ListChats(ctx context.Context, session string, limit int) ([]provider.Chat, error)
	Send(ctx context.Context, req provider.SendRequest) (*provider.SendResult, error)
	DownloadMedia(ctx context.Context, url string) ([]byte, string, error)
}

// Broadcaster defines what the service needs from the realtime layer
type Broadcaster interface {
	Broadcast(kind string, data any, excludeClientID string)
	SetTyping(conversationID, userID, name string, typing bool)
}

// Options configures a Service. Provider, Media, Dedupe and Metrics may be nil.
type Options struct {
	Store         store.Store
	Provider      Provider
	Hub           Broadcaster
	Media         media.Store
	MirrorInbound bool
	Dedupe        *dedupe.Cache
	Normalizer    *webhook.Normalizer
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// Service coordinates storage, the provider and realtime fan-out.
type Service struct {
	store      store.Store
	provider   Provider
	hub        Broadcaster
	media      media.Store
	mirror     bool
	dedupe     *dedupe.Cache
	normalizer *webhook.Normalizer
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a Service
func New(opts Options) *Service {
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = webhook.New(nil)
	}
	hub := opts.Hub
	if hub == nil {
		hub = nopBroadcaster{}
	}
	return &Service{
		store:      opts.Store,
		provider:   opts.Provider,
		hub:        hub,
		media:      opts.Media,
		mirror:     opts.MirrorInbound && opts.Media != nil && opts.Provider != nil,
		dedupe:     opts.Dedupe,
		normalizer: normalizer,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With().Str("component", "conversation").Logger(),
		now:        time.Now,
	}
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, any, string)          {}
func (nopBroadcaster) SetTyping(string, string, string, bool) {}

// requireProvider reports a missing provider as an unconfigured integration.
func (s *Service) requireProvider() error {
	if s.provider == nil {
		return chaterr.NotConfigured()
	}
	return nil
}

// notFound converts the store sentinel into the taxonomy error.
func notFound(err error, kind, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return chaterr.NotFound(kind, id)
	}
	return err
}
