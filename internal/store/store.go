// ABOUTME: Store interface and data types for chat-gateway persistence
// ABOUTME: Defines Conversation, Message, Attachment and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Message senders
const (
	SenderMe      = "me"      // operator side, sent through the provider
	SenderContact = "contact" // the external contact
)

// Message types
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeAudio = "audio"
)

// Delivery statuses, in the order they may advance
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// StatusRank orders delivery statuses. Unknown statuses rank below sent.
func StatusRank(status string) int {
	switch status {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// ValidStatus reports whether status is one of the delivery statuses.
func ValidStatus(status string) bool { return StatusRank(status) > 0 }

// ValidType reports whether t is a supported message type.
func ValidType(t string) bool {
	return t == TypeText || t == TypeImage || t == TypeAudio
}

// Attachment is a media item carried by a message
type Attachment struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Note is an internal operator note on a conversation
type Note struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// CustomAttribute is a free-form labelled value attached to a conversation
type CustomAttribute struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Responsible is an operator that conversations can be assigned to
type Responsible struct {
	ID     int64  `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Role   string `json:"role" db:"role"`
	Avatar string `json:"avatar" db:"avatar"`
}

// LastMessage is the denormalized projection of a conversation's newest message
type LastMessage struct {
	ID      string    `json:"id"`
	Preview string    `json:"preview"`
	At      time.Time `json:"timestamp"`
	Sender  string    `json:"sender"`
	Type    string    `json:"type"`
	Status  string    `json:"status"`
}

// Conversation is a persistent thread with one external contact
type Conversation struct {
	ID               string            `json:"id"`
	ContactID        string            `json:"contactId"`
	Name             string            `json:"name"`
	Avatar           string            `json:"avatar"`
	StatusText       string            `json:"statusText"`
	Description      string            `json:"description"`
	Pinned           bool              `json:"pinned"`
	Phone            string            `json:"phone"`
	Responsible      *Responsible      `json:"responsible"`
	Tags             []string          `json:"tags"`
	ClientID         *int64            `json:"clientId"`
	CustomAttributes []CustomAttribute `json:"customAttributes"`
	IsPrivate        bool              `json:"isPrivate"`
	Notes            []Note            `json:"notes"`
	UnreadCount      int               `json:"unreadCount"`
	LastMessage      *LastMessage      `json:"lastMessage"`
	Metadata         map[string]any    `json:"metadata"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`

	storedAvatar string // avatar as persisted, before placeholder derivation
}

// Session returns the provider session recorded in the metadata, if any.
func (c *Conversation) Session() string {
	return sessionOf(c.Metadata)
}

// HasAvatar reports whether an avatar was stored rather than derived.
func (c *Conversation) HasAvatar() bool {
	return c.storedAvatar != ""
}

// ConversationInput carries the fields accepted by EnsureConversation and CreateConversation.
// Pinned is only applied when non-nil.
type ConversationInput struct {
	ID          string         `json:"id"`
	ContactID   string         `json:"contactId"`
	Name        string         `json:"name"`
	Avatar      string         `json:"avatar"`
	StatusText  string         `json:"statusText"`
	Description string         `json:"description"`
	Phone       string         `json:"phone"`
	Pinned      *bool          `json:"pinned"`
	Metadata    map[string]any `json:"metadata"`
}

// Message is one entry of a conversation's message log
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	ExternalID     string       `json:"externalId,omitempty"`
	Sender         string       `json:"sender"`
	Content        string       `json:"content"`
	Type           string       `json:"type"`
	Status         string       `json:"status"`
	CreatedAt      time.Time    `json:"timestamp"`
	RecordedAt     time.Time    `json:"recordedAt"`
	Attachments    []Attachment `json:"attachments"`
}

// MessageInput carries the fields accepted by RecordMessage.
// Blank Type, Status and zero CreatedAt are defaulted.
type MessageInput struct {
	ID             string
	ExternalID     string
	ConversationID string
	Sender         string
	Content        string
	Type           string
	Status         string
	CreatedAt      time.Time
	Attachments    []Attachment
}

// MessagePage is one page of a conversation's message log in ascending order.
// NextCursor is nil when there are no older messages.
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor *string    `json:"nextCursor"`
}

// StatusChange identifies a message whose status was rewritten
type StatusChange struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Status         string `json:"status"`
}

// ListConversationsParams filters ListConversations
type ListConversationsParams struct {
	Session string // optional provider session filter
	Limit   int    // 1-200, defaults to 30
}

// Store defines the interface for conversation and message persistence
type Store interface {
	// Conversations
	EnsureConversation(ctx context.Context, in ConversationInput) (*Conversation, error)
	CreateConversation(ctx context.Context, in ConversationInput) (*Conversation, error)
	UpdateConversation(ctx context.Context, id string, changes map[string]any) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, params ListConversationsParams) ([]*Conversation, error)
	ListKnownSessions(ctx context.Context) ([]string, error)
	MarkConversationAsRead(ctx context.Context, id string) (*Conversation, bool, error)

	// Messages
	RecordMessage(ctx context.Context, in MessageInput) (*Message, bool, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	GetMessages(ctx context.Context, conversationID, cursor string, limit int) (*MessagePage, error)
	GetMessagesByExternalID(ctx context.Context, externalID string) ([]*Message, error)
	UpdateMessageStatusByExternalID(ctx context.Context, externalID, status string) ([]StatusChange, error)

	// Responsibles
	UpsertResponsible(ctx context.Context, r *Responsible) error
	GetResponsible(ctx context.Context, id int64) (*Responsible, error)

	// Ping checks database connectivity
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// Page size bounds
const (
	DefaultMessageLimit      = 20
	MaxMessageLimit          = 100
	DefaultConversationLimit = 30
	MaxConversationLimit     = 200
)

// ClampLimit returns def for a zero (absent) limit, otherwise limit clamped to [1, max].
func ClampLimit(limit, def, max int) int {
	if limit == 0 {
		return def
	}
	if limit < 1 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}
