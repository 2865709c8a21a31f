// ABOUTME: Conversation lifecycle operations: ensure, create, update, list, read
// ABOUTME: Listing can sync chats from the provider before reading the local store

package conversation

import (
	"context"
	"strings"

	"github.com/lexdesk/chat-gateway/internal/chaterr"
	"github.com/lexdesk/chat-gateway/internal/media"
	"github.com/lexdesk/chat-gateway/internal/provider"
	"github.com/lexdesk/chat-gateway/internal/realtime"
	"github.com/lexdesk/chat-gateway/internal/store"
	"github.com/lexdesk/chat-gateway/internal/webhook"
)

// ListParams selects conversations for List
type ListParams struct {
	Session   string
	Limit     int
	LocalOnly bool // skip the provider and read persisted conversations only
}

// ReadEvent is the payload of a conversation:read broadcast
type ReadEvent struct {
	ConversationID string              `json:"conversationId"`
	UnreadCount    int                 `json:"unreadCount"`
	Conversation   *store.Conversation `json:"conversation"`
}

// Create creates or overwrites a conversation and announces it.
func (s *Service) Create(ctx context.Context, in store.ConversationInput) (*store.Conversation, error) {
	conv, err := s.store.CreateConversation(ctx, in)
	if err != nil {
		return nil, err
	}
	s.hub.Broadcast(realtime.EventConversationUpdate, conv, "")
	return conv, nil
}

// Update applies a partial update and announces the result.
func (s *Service) Update(ctx context.Context, id string, changes map[string]any) (*store.Conversation, error) {
	conv, err := s.store.UpdateConversation(ctx, id, changes)
	if err != nil {
		return nil, notFound(err, "conversation", id)
	}
	s.hub.Broadcast(realtime.EventConversationUpdate, conv, "")
	return conv, nil
}

// Get returns one conversation.
func (s *Service) Get(ctx context.Context, id string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, notFound(err, "conversation", id)
	}
	return conv, nil
}

// List returns conversations. Unless LocalOnly is set, chats are first pulled
// from the provider and ensured locally, so the result always comes from the store.
func (s *Service) List(ctx context.Context, p ListParams) ([]*store.Conversation, error) {
	limit := store.ClampLimit(p.Limit, store.DefaultConversationLimit, store.MaxConversationLimit)

	if !p.LocalOnly {
		if err := s.syncChats(ctx, p.Session, limit); err != nil {
			return nil, err
		}
	}
	return s.store.ListConversations(ctx, store.ListConversationsParams{Session: p.Session, Limit: limit})
}

// syncChats ensures a local conversation per provider chat. Individual chat
// failures are logged and skipped.
func (s *Service) syncChats(ctx context.Context, session string, limit int) error {
	if err := s.requireProvider(); err != nil {
		return err
	}
	chats, err := s.provider.ListChats(ctx, session, limit)
	if err != nil {
		return err
	}
	for _, chat := range chats {
		if err := s.syncChat(ctx, chat); err != nil {
			s.logger.Warn().Err(err).Str("chat_id", chat.ID).Msg("failed to sync provider chat")
		}
	}
	return nil
}

func (s *Service) syncChat(ctx context.Context, chat provider.Chat) error {
	in := store.ConversationInput{
		ID:        chat.ID,
		ContactID: chat.ID,
		Name:      chat.Name,
		Phone:     webhook.PhoneFromChatID(chat.ID),
	}
	if chat.Session != "" {
		in.Metadata = map[string]any{"session": chat.Session}
	}

	if chat.Picture != "" {
		in.Avatar = chat.Picture
		existing, err := s.store.GetConversation(ctx, chat.ID)
		if err != nil || !existing.HasAvatar() {
			in.Avatar = s.mirrorAvatar(ctx, chat.ID, chat.Picture)
		}
	}

	_, err := s.store.EnsureConversation(ctx, in)
	return err
}

// mirrorAvatar stores a thumbnail of the provider picture in the blob store.
// Any failure keeps the provider URL.
func (s *Service) mirrorAvatar(ctx context.Context, conversationID, pictureURL string) string {
	if s.media == nil {
		return pictureURL
	}
	data, _, err := s.provider.DownloadMedia(ctx, pictureURL)
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("avatar download failed")
		return pictureURL
	}
	thumb, err := media.Thumbnail(data, media.AvatarSize)
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("avatar is not a decodable image")
		return pictureURL
	}
	url, err := s.media.Put(ctx, media.Key("avatars", conversationID+".jpg"), thumb, "image/jpeg")
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("avatar upload failed")
		return pictureURL
	}
	return url
}

// GetMessages returns one page of a conversation's messages.
func (s *Service) GetMessages(ctx context.Context, conversationID, cursor string, limit int) (*store.MessagePage, error) {
	page, err := s.store.GetMessages(ctx, conversationID, cursor, limit)
	if err != nil {
		return nil, notFound(err, "conversation", conversationID)
	}
	return page, nil
}

// MarkRead marks a conversation read. The broadcast only happens when
// something actually changed.
func (s *Service) MarkRead(ctx context.Context, id string) (*store.Conversation, error) {
	conv, changed, err := s.store.MarkConversationAsRead(ctx, id)
	if err != nil {
		return nil, notFound(err, "conversation", id)
	}
	if changed {
		s.hub.Broadcast(realtime.EventConversationRead, ReadEvent{
			ConversationID: conv.ID,
			UnreadCount:    conv.UnreadCount,
			Conversation:   conv,
		}, "")
	}
	return conv, nil
}

// SetTyping forwards a typing signal to the realtime hub.
func (s *Service) SetTyping(_ context.Context, conversationID, userID, name string, typing bool) error {
	if strings.TrimSpace(conversationID) == "" {
		return chaterr.Validation("conversationId", "is required")
	}
	s.hub.SetTyping(conversationID, userID, name, typing)
	return nil
}
