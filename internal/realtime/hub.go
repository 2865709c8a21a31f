// ABOUTME: In-memory fan-out hub for operator realtime streams
// ABOUTME: Registers clients, broadcasts state changes and evicts clients whose buffers are full

package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexdesk/chat-gateway/internal/config"
	"github.com/lexdesk/chat-gateway/internal/metrics"
)

// Event kinds pushed to clients
const (
	EventConnection         = "connection"
	EventConversationUpdate = "conversation:update"
	EventConversationRead   = "conversation:read"
	EventMessageNew         = "message:new"
	EventMessageStatus      = "message:status"
	EventTyping             = "typing"
	EventPing               = "ping"
)

const (
	defaultClientBuffer  = 64
	defaultHeartbeat     = 25 * time.Second
	defaultTypingTimeout = 6 * time.Second
)

// Event is one message on a realtime stream
type Event struct {
	Kind string
	Data any
}

// Client is one registered stream. Events is never closed; Done is closed
// when the client is unregistered or evicted.
type Client struct {
	ID     string
	UserID string
	Name   string

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Events returns the client's event channel.
func (c *Client) Events() <-chan Event { return c.events }

// Done is closed once the client is removed from the hub.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Hub owns the client registry and the typing timers
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	typing  map[typingKey]*typingState

	buffer        int
	heartbeat     time.Duration
	typingTimeout time.Duration

	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewHub creates a hub. Zero config values fall back to the defaults.
func NewHub(cfg config.RealtimeConfig, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	h := &Hub{
		clients:       make(map[string]*Client),
		typing:        make(map[typingKey]*typingState),
		buffer:        cfg.ClientBuffer,
		heartbeat:     cfg.HeartbeatInterval,
		typingTimeout: cfg.TypingTimeout,
		metrics:       m,
		logger:        logger.With().Str("component", "realtime").Logger(),
		now:           time.Now,
	}
	if h.buffer <= 0 {
		h.buffer = defaultClientBuffer
	}
	if h.heartbeat <= 0 {
		h.heartbeat = defaultHeartbeat
	}
	if h.typingTimeout <= 0 {
		h.typingTimeout = defaultTypingTimeout
	}
	return h
}

// Register adds a client for the given identity and queues the connection event.
func (h *Hub) Register(userID, name string) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   name,
		events: make(chan Event, h.buffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.metrics.ClientConnected(1)

	c.events <- Event{Kind: EventConnection, Data: map[string]any{
		"clientId":    c.ID,
		"userId":      userID,
		"name":        name,
		"connectedAt": h.now().UTC(),
	}}

	h.logger.Debug().Str("client_id", c.ID).Str("user_id", userID).Msg("client registered")
	return c
}

// Unregister removes a client. It is safe to call more than once.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	c.stop()
	h.metrics.ClientConnected(-1)
	h.logger.Debug().Str("client_id", clientID).Msg("client unregistered")
}

// Broadcast queues an event for every client except excludeClientID.
// Sends never block: a client whose buffer is full is evicted.
func (h *Hub) Broadcast(kind string, data any, excludeClientID string) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if excludeClientID != "" && id == excludeClientID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.metrics.Broadcast(kind)
	ev := Event{Kind: kind, Data: data}
	for _, c := range targets {
		select {
		case c.events <- ev:
		default:
			h.evict(c, kind)
		}
	}
}

func (h *Hub) evict(c *Client, kind string) {
	h.logger.Warn().
		Str("client_id", c.ID).
		Str("user_id", c.UserID).
		Str("event", kind).
		Msg("evicting slow realtime client")
	h.metrics.ClientEvicted()
	h.Unregister(c.ID)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unregisters every client and cancels all typing timers.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	for key, st := range h.typing {
		st.timer.Stop()
		delete(h.typing, key)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
		h.metrics.ClientConnected(-1)
	}
	h.logger.Debug().Int("clients", len(clients)).Msg("hub closed")
}
