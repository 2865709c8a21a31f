// ABOUTME: Message log persistence: idempotent recording, cursor pagination and status updates
// ABOUTME: Recording a new message also advances the conversation's last-message projection

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lexdesk/chat-gateway/internal/chaterr"
)

const messageColumns = `id, conversation_id, external_id, sender, content, type, status, created_at, recorded_at, attachments`

// messageRow mirrors the messages table
type messageRow struct {
	ID             string         `db:"id"`
	ConversationID string         `db:"conversation_id"`
	ExternalID     sql.NullString `db:"external_id"`
	Sender         string         `db:"sender"`
	Content        string         `db:"content"`
	Type           string         `db:"type"`
	Status         string         `db:"status"`
	CreatedAt      string         `db:"created_at"`
	RecordedAt     string         `db:"recorded_at"`
	Attachments    string         `db:"attachments"`
}

func (r *messageRow) toMessage() (*Message, error) {
	m := &Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		ExternalID:     r.ExternalID.String,
		Sender:         r.Sender,
		Content:        r.Content,
		Type:           r.Type,
		Status:         r.Status,
		Attachments:    []Attachment{},
	}
	if err := decodeJSON(r.Attachments, &m.Attachments); err != nil {
		return nil, fmt.Errorf("decoding attachments: %w", err)
	}
	if m.Attachments == nil {
		m.Attachments = []Attachment{}
	}
	var err error
	if m.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, err
	}
	if m.RecordedAt, err = parseTime(r.RecordedAt); err != nil {
		return nil, err
	}
	return m, nil
}

// ResolveMessageID picks the idempotency key: the caller id, else the
// provider id, else a fresh UUID.
func ResolveMessageID(id, externalID string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	if externalID = strings.TrimSpace(externalID); externalID != "" {
		return externalID
	}
	return uuid.NewString()
}

// DefaultStatus is the initial delivery status for a sender.
func DefaultStatus(sender string) string {
	if sender == SenderMe {
		return StatusSent
	}
	return StatusDelivered
}

// RecordMessage inserts a message unless one with the same id exists.
// The boolean result is true only when a new row was written; a duplicate
// returns the stored row unchanged and leaves the conversation untouched.
// The conversation projection is updated in a second statement after the insert.
func (s *SQLStore) RecordMessage(ctx context.Context, in MessageInput) (*Message, bool, error) {
	in.Content = strings.TrimSpace(in.Content)
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	in.ExternalID = strings.TrimSpace(in.ExternalID)

	if in.ConversationID == "" {
		return nil, false, chaterr.Validation("conversationId", "is required")
	}
	if in.Content == "" {
		return nil, false, chaterr.Validation("content", "is required")
	}
	if in.Sender != SenderMe && in.Sender != SenderContact {
		return nil, false, chaterr.Validation("sender", "must be %q or %q", SenderMe, SenderContact)
	}
	if in.Type == "" {
		in.Type = TypeText
	}
	if !ValidType(in.Type) {
		return nil, false, chaterr.Validation("type", "unsupported message type %q", in.Type)
	}
	if in.Status == "" {
		in.Status = DefaultStatus(in.Sender)
	}
	if !ValidStatus(in.Status) {
		return nil, false, chaterr.Validation("status", "unsupported status %q", in.Status)
	}
	now := s.now()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	id := ResolveMessageID(in.ID, in.ExternalID)

	if _, err := s.GetConversation(ctx, in.ConversationID); err != nil {
		return nil, false, err
	}

	attachments := in.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}
	attJSON, err := encodeJSON(attachments, "[]")
	if err != nil {
		return nil, false, fmt.Errorf("encoding attachments: %w", err)
	}

	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, s.q(query),
		id, in.ConversationID, nullString(in.ExternalID), in.Sender, in.Content,
		in.Type, in.Status, formatTime(in.CreatedAt), formatTime(now), attJSON,
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting message: %w", err)
	}

	if rowsAffected(res) == 0 {
		existing, err := s.GetMessage(ctx, id)
		if err != nil {
			return nil, false, err
		}
		s.logger.Debug().Str("message_id", id).Msg("duplicate message ignored")
		return existing, false, nil
	}

	if err := s.advanceProjection(ctx, id, in, attachments); err != nil {
		// The message is stored; the projection lags until the next message.
		s.logger.Warn().Err(err).Str("message_id", id).Str("conversation_id", in.ConversationID).
			Msg("conversation projection not updated")
	}

	s.logger.Debug().Str("message_id", id).Str("conversation_id", in.ConversationID).
		Str("sender", in.Sender).Msg("recorded message")

	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

// advanceProjection bumps the unread counter for contact messages and moves the
// last-message projection forward unless a newer message already holds it.
func (s *SQLStore) advanceProjection(ctx context.Context, id string, in MessageInput, attachments []Attachment) error {
	unread := 0
	if in.Sender == SenderContact {
		unread = 1
	}
	now := formatTime(s.now())
	at := formatTime(in.CreatedAt)

	if _, err := s.db.ExecContext(ctx, s.q(`
		UPDATE conversations SET unread_count = unread_count + ?, updated_at = ? WHERE id = ?
	`), unread, now, in.ConversationID); err != nil {
		return fmt.Errorf("incrementing unread count: %w", err)
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE conversations SET
			last_message_id = ?, last_message_preview = ?, last_message_at = ?,
			last_message_sender = ?, last_message_type = ?, last_message_status = ?
		WHERE id = ? AND (last_message_at IS NULL OR last_message_at <= ?)
	`), id, Preview(in.Content, in.Type, attachments), at,
		in.Sender, in.Type, in.Status, in.ConversationID, at)
	if err != nil {
		return fmt.Errorf("updating last message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return row.toMessage()
}

// GetMessages returns the newest limit messages older than cursor, in
// ascending order. NextCursor holds the oldest returned timestamp when older
// messages remain. When the next message shares that timestamp the cursor
// also carries the oldest id, so ties across a page boundary are not skipped.
func (s *SQLStore) GetMessages(ctx context.Context, conversationID, cursor string, limit int) (*MessagePage, error) {
	limit = ClampLimit(limit, DefaultMessageLimit, MaxMessageLimit)

	before, beforeID, err := ParseCursor(cursor)
	if err != nil {
		return nil, chaterr.Validation("cursor", "must be an ISO-8601 timestamp")
	}

	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ?`
	args := []any{conversationID}
	switch {
	case before != "" && beforeID != "":
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, before, before, beforeID)
	case before != "":
		query += ` AND created_at < ?`
		args = append(args, before)
	}
	// Fetch one extra row to learn whether another page exists.
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit+1)

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}

	var next *string
	if len(rows) > limit {
		oldest := rows[limit-1]
		c := formatCursor(oldest.CreatedAt, oldest.ID, rows[limit].CreatedAt == oldest.CreatedAt)
		next = &c
		rows = rows[:limit]
	}

	page := &MessagePage{Messages: make([]*Message, len(rows))}
	for i := range rows {
		m, err := rows[i].toMessage()
		if err != nil {
			return nil, err
		}
		// Reverse into ascending order.
		page.Messages[len(rows)-1-i] = m
	}

	page.NextCursor = next
	return page, nil
}

// GetMessagesByExternalID returns every message recorded with the provider id.
func (s *SQLStore) GetMessagesByExternalID(ctx context.Context, externalID string) ([]*Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows,
		s.q(`SELECT `+messageColumns+` FROM messages WHERE external_id = ? ORDER BY created_at`), externalID)
	if err != nil {
		return nil, fmt.Errorf("querying messages by external id: %w", err)
	}
	out := make([]*Message, 0, len(rows))
	for i := range rows {
		m, err := rows[i].toMessage()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// UpdateMessageStatusByExternalID sets status on every message with the
// provider id, without ordering checks, and refreshes the conversation's
// projected status where that message is the current last message.
// An unknown external id yields no changes and no error.
func (s *SQLStore) UpdateMessageStatusByExternalID(ctx context.Context, externalID, status string) ([]StatusChange, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, chaterr.Validation("externalId", "is required")
	}
	if !ValidStatus(status) {
		return nil, chaterr.Validation("status", "unsupported status %q", status)
	}

	var targets []struct {
		ID             string `db:"id"`
		ConversationID string `db:"conversation_id"`
	}
	if err := s.db.SelectContext(ctx, &targets,
		s.q(`SELECT id, conversation_id FROM messages WHERE external_id = ?`), externalID); err != nil {
		return nil, fmt.Errorf("querying messages by external id: %w", err)
	}
	if len(targets) == 0 {
		return nil, nil
	}

	if _, err := s.db.ExecContext(ctx,
		s.q(`UPDATE messages SET status = ? WHERE external_id = ?`), status, externalID); err != nil {
		return nil, fmt.Errorf("updating message status: %w", err)
	}

	changes := make([]StatusChange, 0, len(targets))
	for _, t := range targets {
		if _, err := s.db.ExecContext(ctx, s.q(`
			UPDATE conversations SET last_message_status = ?
			WHERE id = ? AND last_message_id = ?
		`), status, t.ConversationID, t.ID); err != nil {
			return nil, fmt.Errorf("updating last message status: %w", err)
		}
		changes = append(changes, StatusChange{ConversationID: t.ConversationID, MessageID: t.ID, Status: status})
	}

	s.logger.Debug().Str("external_id", externalID).Str("status", status).Int("messages", len(changes)).
		Msg("updated message status")
	return changes, nil
}
