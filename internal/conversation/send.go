// ABOUTME: Operator-initiated sends through the provider
// ABOUTME: Provider failures are returned to the caller; successes are recorded as outgoing messages

package conversation

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/lexdesk/chat-gateway/internal/chaterr"
	"github.com/lexdesk/chat-gateway/internal/provider"
	"github.com/lexdesk/chat-gateway/internal/store"
)

// SendRequest is an operator message to a conversation
type SendRequest struct {
	ConversationID string
	Content        string
	Type           string
	Attachments    []store.Attachment

	// ClientID names the realtime stream that originated the send; it does
	// not receive the resulting message:new event.
	ClientID string
}

// SendMessage validates the message, sends it through the provider and
// records it as outgoing. The stored id is the provider's message id when
// one is returned, so the provider's later echo is absorbed as a duplicate.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*store.Message, error) {
	req.Content = strings.TrimSpace(req.Content)
	if req.Type == "" {
		req.Type = store.TypeText
	}
	if err := provider.ValidateOutgoing(req.Type, req.Attachments); err != nil {
		return nil, err
	}
	if req.Content == "" && req.Type == store.TypeText {
		return nil, chaterr.Validation("content", "is required")
	}
	if err := s.requireProvider(); err != nil {
		return nil, err
	}

	conv, err := s.Get(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}

	session := conv.Session()
	if session == "" {
		sessions, err := s.provider.Sessions(ctx, "")
		if err != nil {
			return nil, err
		}
		session = sessions[0]
	}

	chatID := conv.ContactID
	if chatID == "" {
		chatID = conv.ID
	}
	res, err := s.provider.Send(ctx, provider.SendRequest{
		Session:     session,
		ChatID:      chatID,
		Content:     req.Content,
		Type:        req.Type,
		Attachments: req.Attachments,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("provider send failed")
		return nil, err
	}

	id := res.ExternalID
	if id == "" {
		id = uuid.NewString()
	}
	content := req.Content
	if content == "" {
		content = store.MediaPlaceholder(req.Type)
	}

	msg, _, err := s.record(ctx, store.ConversationInput{ID: conv.ID}, store.MessageInput{
		ID:             id,
		ExternalID:     res.ExternalID,
		ConversationID: conv.ID,
		Sender:         store.SenderMe,
		Content:        content,
		Type:           req.Type,
		Status:         store.StatusSent,
		CreatedAt:      res.Timestamp,
		Attachments:    req.Attachments,
	}, req.ClientID)
	if err != nil {
		// The provider accepted the message; only the local record is missing.
		s.logger.Error().Err(err).Str("conversation_id", conv.ID).Str("message_id", id).Msg("failed to record sent message")
		return nil, err
	}
	return msg, nil
}
