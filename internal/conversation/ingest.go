// ABOUTME: Message ingestion: recording inbound and outbound messages and status updates
// ABOUTME: Webhook batches are processed per item so one bad event never blocks the rest

package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/lexdesk/chat-gateway/internal/media"
	"github.com/lexdesk/chat-gateway/internal/realtime"
	"github.com/lexdesk/chat-gateway/internal/store"
	"github.com/lexdesk/chat-gateway/internal/webhook"
)

// MessageEvent is the payload of a message:new broadcast
type MessageEvent struct {
	ConversationID string         `json:"conversationId"`
	Message        *store.Message `json:"message"`
}

// WebhookResult counts what one webhook delivery produced
type WebhookResult struct {
	Recorded   int `json:"recorded"`
	Duplicates int `json:"duplicates"`
	Statuses   int `json:"statuses"`
	Failed     int `json:"failed"`
}

// RecordIncoming stores a message from the contact. The boolean is false
// when the message was already recorded.
func (s *Service) RecordIncoming(ctx context.Context, msg webhook.IncomingMessage) (*store.Message, bool, error) {
	return s.recordNormalized(ctx, msg, store.SenderContact)
}

// RecordOutgoing stores a message the operator side sent, such as a provider echo.
func (s *Service) RecordOutgoing(ctx context.Context, msg webhook.IncomingMessage) (*store.Message, bool, error) {
	return s.recordNormalized(ctx, msg, store.SenderMe)
}

func (s *Service) recordNormalized(ctx context.Context, msg webhook.IncomingMessage, sender string) (*store.Message, bool, error) {
	conv := store.ConversationInput{
		ID:        msg.ConversationID,
		ContactID: msg.ConversationID,
		Phone:     msg.Phone,
		Avatar:    msg.Avatar,
	}
	// The sender name of an echo is the operator, not the contact.
	if sender == store.SenderContact {
		conv.Name = msg.SenderName
	}
	if msg.Session != "" {
		conv.Metadata = map[string]any{"session": msg.Session}
	}

	id := store.ResolveMessageID(msg.MessageID, msg.ExternalID)
	in := store.MessageInput{
		ID:             id,
		ExternalID:     msg.ExternalID,
		ConversationID: msg.ConversationID,
		Sender:         sender,
		Content:        msg.Content,
		Type:           msg.Type,
		CreatedAt:      msg.Timestamp,
		Attachments:    s.mirrorAttachments(ctx, msg.ConversationID, id, msg.Attachments),
	}
	return s.record(ctx, conv, in, "")
}

// record ensures the conversation, stores the message and announces it when new.
func (s *Service) record(ctx context.Context, conv store.ConversationInput, in store.MessageInput, excludeClientID string) (*store.Message, bool, error) {
	if _, err := s.store.EnsureConversation(ctx, conv); err != nil {
		return nil, false, err
	}

	msg, created, err := s.store.RecordMessage(ctx, in)
	if err != nil {
		return nil, false, notFound(err, "conversation", in.ConversationID)
	}
	if !created {
		return msg, false, nil
	}

	s.metrics.MessageRecorded(msg.Sender)
	s.hub.Broadcast(realtime.EventMessageNew, MessageEvent{ConversationID: msg.ConversationID, Message: msg}, excludeClientID)
	if updated, err := s.store.GetConversation(ctx, msg.ConversationID); err == nil {
		s.hub.Broadcast(realtime.EventConversationUpdate, updated, "")
	} else {
		s.logger.Warn().Err(err).Str("conversation_id", msg.ConversationID).Msg("failed to reload conversation")
	}
	return msg, true, nil
}

// HandleWebhook normalizes a decoded webhook body and ingests every event it
// yields. Per-event failures are logged and counted, never returned.
func (s *Service) HandleWebhook(ctx context.Context, payload any) WebhookResult {
	events := s.normalizer.Normalize(payload)
	var res WebhookResult

	if events.Empty() {
		s.logger.Debug().Msg("webhook carried no recognizable events")
		return res
	}

	for _, msg := range events.Messages {
		key := dedupeKey(msg)
		if s.dedupe.CheckAndMark(key) {
			res.Duplicates++
			s.metrics.WebhookEvent("message", "duplicate")
			continue
		}

		var created bool
		var err error
		if msg.FromMe {
			_, created, err = s.RecordOutgoing(ctx, msg)
		} else {
			_, created, err = s.RecordIncoming(ctx, msg)
		}
		if err != nil {
			// Release the key so a redelivery can retry.
			s.dedupe.Forget(key)
			res.Failed++
			s.metrics.WebhookEvent("message", "failed")
			s.logger.Warn().Err(err).
				Str("conversation_id", msg.ConversationID).
				Str("message_id", msg.MessageID).
				Msg("dropping webhook message")
			continue
		}

		if created {
			res.Recorded++
			s.metrics.WebhookEvent("message", "recorded")
		} else {
			res.Duplicates++
			s.metrics.WebhookEvent("message", "duplicate")
		}
	}

	for _, st := range events.Statuses {
		changes, err := s.ApplyStatus(ctx, st.ExternalID, st.Status)
		if err != nil {
			res.Failed++
			s.metrics.WebhookEvent("status", "failed")
			s.logger.Warn().Err(err).Str("external_id", st.ExternalID).Msg("dropping webhook status")
			continue
		}
		res.Statuses++
		result := "applied"
		if len(changes) == 0 {
			result = "ignored"
		}
		s.metrics.WebhookEvent("status", result)
	}

	s.logger.Debug().
		Int("recorded", res.Recorded).
		Int("duplicates", res.Duplicates).
		Int("statuses", res.Statuses).
		Int("failed", res.Failed).
		Msg("webhook processed")
	return res
}

// dedupeKey identifies a webhook message. Messages without any id get no key.
func dedupeKey(msg webhook.IncomingMessage) string {
	id := msg.MessageID
	if id == "" {
		id = msg.ExternalID
	}
	if id == "" {
		return ""
	}
	return msg.ConversationID + "|" + id
}

// ApplyStatus sets the delivery status of every message with externalID and
// announces each change. Updates that would move a status backwards are
// skipped; unknown external ids are a no-op.
func (s *Service) ApplyStatus(ctx context.Context, externalID, status string) ([]store.StatusChange, error) {
	existing, err := s.store.GetMessagesByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, nil
	}

	advances := false
	for _, m := range existing {
		if store.StatusRank(status) > store.StatusRank(m.Status) {
			advances = true
			break
		}
	}
	if !advances {
		s.logger.Debug().Str("external_id", externalID).Str("status", status).Msg("ignoring non-advancing status")
		return nil, nil
	}

	changes, err := s.store.UpdateMessageStatusByExternalID(ctx, externalID, status)
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		s.hub.Broadcast(realtime.EventMessageStatus, c, "")
	}
	return changes, nil
}

// mirrorAttachments copies remote attachments into the blob store and rewrites
// their URLs. An attachment that fails to mirror keeps its original URL.
// Nothing is downloaded for a message that is already stored, since the
// insert would drop the redelivered copy anyway.
func (s *Service) mirrorAttachments(ctx context.Context, conversationID, messageID string, atts []store.Attachment) []store.Attachment {
	if !s.mirror || len(atts) == 0 {
		return atts
	}
	if _, err := s.store.GetMessage(ctx, messageID); !errors.Is(err, store.ErrNotFound) {
		if err != nil {
			s.logger.Warn().Err(err).Str("message_id", messageID).Msg("skipping attachment mirroring")
		}
		return atts
	}
	out := make([]store.Attachment, len(atts))
	for i, att := range atts {
		out[i] = att
		if !strings.HasPrefix(att.URL, "http://") && !strings.HasPrefix(att.URL, "https://") && !strings.HasPrefix(att.URL, "/") {
			continue
		}
		data, contentType, err := s.provider.DownloadMedia(ctx, att.URL)
		if err != nil {
			s.logger.Warn().Err(err).Str("message_id", messageID).Str("url", att.URL).Msg("attachment download failed")
			continue
		}
		name := att.Name
		if name == "" || name == "attachment" {
			name = att.ID + media.ExtensionFor(contentType)
		}
		url, err := s.media.Put(ctx, media.Key("conversations", conversationID, messageID, name), data, contentType)
		if err != nil {
			s.logger.Warn().Err(err).Str("message_id", messageID).Msg("attachment upload failed")
			continue
		}
		out[i].URL = url
	}
	return out
}
