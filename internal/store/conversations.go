// ABOUTME: Conversation persistence: upserts, partial updates, listing and read state
// ABOUTME: Maps conversation rows to the API shape and derives placeholder avatars on read

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lexdesk/chat-gateway/internal/avatar"
	"github.com/lexdesk/chat-gateway/internal/chaterr"
)

const conversationColumns = `
	id, contact_id, name, avatar, status_text, description, pinned, phone,
	responsible_id, responsible_name, responsible_role, responsible_avatar,
	tags, client_id, custom_attributes, is_private, notes, unread_count,
	last_message_id, last_message_preview, last_message_at, last_message_sender,
	last_message_type, last_message_status, metadata, created_at, updated_at`

// conversationRow mirrors the conversations table
type conversationRow struct {
	ID                 string         `db:"id"`
	ContactID          string         `db:"contact_id"`
	Name               string         `db:"name"`
	Avatar             string         `db:"avatar"`
	StatusText         string         `db:"status_text"`
	Description        string         `db:"description"`
	Pinned             int            `db:"pinned"`
	Phone              string         `db:"phone"`
	ResponsibleID      sql.NullInt64  `db:"responsible_id"`
	ResponsibleName    sql.NullString `db:"responsible_name"`
	ResponsibleRole    sql.NullString `db:"responsible_role"`
	ResponsibleAvatar  sql.NullString `db:"responsible_avatar"`
	Tags               string         `db:"tags"`
	ClientID           sql.NullInt64  `db:"client_id"`
	CustomAttributes   string         `db:"custom_attributes"`
	IsPrivate          int            `db:"is_private"`
	Notes              string         `db:"notes"`
	UnreadCount        int            `db:"unread_count"`
	LastMessageID      sql.NullString `db:"last_message_id"`
	LastMessagePreview sql.NullString `db:"last_message_preview"`
	LastMessageAt      sql.NullString `db:"last_message_at"`
	LastMessageSender  sql.NullString `db:"last_message_sender"`
	LastMessageType    sql.NullString `db:"last_message_type"`
	LastMessageStatus  sql.NullString `db:"last_message_status"`
	Metadata           string         `db:"metadata"`
	CreatedAt          string         `db:"created_at"`
	UpdatedAt          string         `db:"updated_at"`
}

func (r *conversationRow) toConversation() (*Conversation, error) {
	c := &Conversation{
		ID:          r.ID,
		ContactID:   r.ContactID,
		Name:        r.Name,
		Avatar:      avatar.Resolve(r.Avatar, displayName(r.Name, r.ContactID)),
		StatusText:  r.StatusText,
		Description: r.Description,
		Pinned:      r.Pinned != 0,
		Phone:       r.Phone,
		IsPrivate:   r.IsPrivate != 0,
		UnreadCount: r.UnreadCount,
		Tags:        []string{},

		storedAvatar: r.Avatar,
	}

	if r.ResponsibleID.Valid {
		c.Responsible = &Responsible{
			ID:     r.ResponsibleID.Int64,
			Name:   r.ResponsibleName.String,
			Role:   r.ResponsibleRole.String,
			Avatar: r.ResponsibleAvatar.String,
		}
	}
	if r.ClientID.Valid {
		id := r.ClientID.Int64
		c.ClientID = &id
	}

	if err := decodeJSON(r.Tags, &c.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	if err := decodeJSON(r.CustomAttributes, &c.CustomAttributes); err != nil {
		return nil, fmt.Errorf("decoding custom attributes: %w", err)
	}
	if err := decodeJSON(r.Notes, &c.Notes); err != nil {
		return nil, fmt.Errorf("decoding notes: %w", err)
	}
	if err := decodeJSON(r.Metadata, &c.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if c.CustomAttributes == nil {
		c.CustomAttributes = []CustomAttribute{}
	}
	if c.Notes == nil {
		c.Notes = []Note{}
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}

	if r.LastMessageID.Valid {
		at, err := parseTime(r.LastMessageAt.String)
		if err != nil {
			return nil, err
		}
		c.LastMessage = &LastMessage{
			ID:      r.LastMessageID.String,
			Preview: r.LastMessagePreview.String,
			At:      at,
			Sender:  r.LastMessageSender.String,
			Type:    r.LastMessageType.String,
			Status:  r.LastMessageStatus.String,
		}
	}

	var err error
	if c.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func displayName(name, contactID string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return contactID
}

func sessionOf(metadata map[string]any) string {
	if s, ok := metadata["session"].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return row.toConversation()
}

// EnsureConversation upserts a conversation driven by provider traffic.
// Existing non-empty fields win; metadata is merged key by key with existing
// values taking precedence unless they are null.
func (s *SQLStore) EnsureConversation(ctx context.Context, in ConversationInput) (*Conversation, error) {
	return s.upsertConversation(ctx, in, false)
}

// CreateConversation upserts a conversation on explicit operator request.
// Supplied fields overwrite stored ones; incoming metadata keys win.
func (s *SQLStore) CreateConversation(ctx context.Context, in ConversationInput) (*Conversation, error) {
	return s.upsertConversation(ctx, in, true)
}

func (s *SQLStore) upsertConversation(ctx context.Context, in ConversationInput, overwrite bool) (*Conversation, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ContactID = strings.TrimSpace(in.ContactID)
	if in.ID == "" {
		in.ID = in.ContactID
	}
	if in.ID == "" {
		return nil, chaterr.Validation("id", "id or contactId is required")
	}
	if in.ContactID == "" {
		in.ContactID = in.ID
	}

	existing, err := s.GetConversation(ctx, in.ID)
	if errors.Is(err, ErrNotFound) {
		inserted, err := s.insertConversation(ctx, in)
		if err != nil {
			return nil, err
		}
		if inserted {
			return s.GetConversation(ctx, in.ID)
		}
		// Lost an insert race; merge into the winner's row.
		existing, err = s.GetConversation(ctx, in.ID)
	}
	if err != nil {
		return nil, err
	}

	merged := mergeConversation(existing, in, overwrite)
	if err := s.writeConversationFields(ctx, merged); err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, in.ID)
}

func (s *SQLStore) insertConversation(ctx context.Context, in ConversationInput) (bool, error) {
	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := encodeJSON(metadata, "{}")
	if err != nil {
		return false, chaterr.Validation("metadata", "not serializable: %v", err)
	}

	pinned := false
	if in.Pinned != nil {
		pinned = *in.Pinned
	}
	now := formatTime(s.now())

	query := `
		INSERT INTO conversations (
			id, contact_id, name, avatar, status_text, description, pinned, phone,
			metadata, session, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, s.q(query),
		in.ID, in.ContactID, strings.TrimSpace(in.Name), strings.TrimSpace(in.Avatar),
		in.StatusText, in.Description, boolInt(pinned), strings.TrimSpace(in.Phone),
		metaJSON, nullString(sessionOf(metadata)), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("inserting conversation: %w", err)
	}

	inserted := rowsAffected(res) > 0
	if inserted {
		s.logger.Debug().Str("conversation_id", in.ID).Msg("created conversation")
	}
	return inserted, nil
}

// mergeConversation applies in onto existing. With overwrite the incoming
// non-empty values replace stored ones, otherwise they only fill blanks.
func mergeConversation(existing *Conversation, in ConversationInput, overwrite bool) *Conversation {
	out := *existing
	out.Avatar = existing.storedAvatar

	pick := func(cur, incoming string) string {
		incoming = strings.TrimSpace(incoming)
		if incoming == "" {
			return cur
		}
		if overwrite || strings.TrimSpace(cur) == "" {
			return incoming
		}
		return cur
	}

	out.ContactID = pick(out.ContactID, in.ContactID)
	out.Name = pick(out.Name, in.Name)
	out.Avatar = pick(out.Avatar, in.Avatar)
	out.StatusText = pick(out.StatusText, in.StatusText)
	out.Description = pick(out.Description, in.Description)
	out.Phone = pick(out.Phone, in.Phone)
	if in.Pinned != nil && overwrite {
		out.Pinned = *in.Pinned
	}

	merged := make(map[string]any, len(existing.Metadata)+len(in.Metadata))
	for k, v := range existing.Metadata {
		merged[k] = v
	}
	for k, v := range in.Metadata {
		cur, ok := merged[k]
		if overwrite || !ok || cur == nil {
			merged[k] = v
		}
	}
	out.Metadata = merged
	return &out
}

func (s *SQLStore) writeConversationFields(ctx context.Context, c *Conversation) error {
	metaJSON, err := encodeJSON(c.Metadata, "{}")
	if err != nil {
		return chaterr.Validation("metadata", "not serializable: %v", err)
	}

	query := `
		UPDATE conversations SET
			contact_id = ?, name = ?, avatar = ?, status_text = ?, description = ?,
			pinned = ?, phone = ?, metadata = ?, session = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, s.q(query),
		c.ContactID, c.Name, c.Avatar, c.StatusText, c.Description,
		boolInt(c.Pinned), c.Phone, metaJSON, nullString(sessionOf(c.Metadata)),
		formatTime(s.now()), c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}
	if rowsAffected(res) == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateConversation applies a partial update. Each recognized key is validated
// on its own; unknown keys are ignored. Returns ErrNotFound if no row matches
// and a validation error if no recognized key was supplied.
func (s *SQLStore) UpdateConversation(ctx context.Context, id string, changes map[string]any) (*Conversation, error) {
	assignments, err := parseConversationChanges(changes, s.now)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, chaterr.Validation("", "no updatable field supplied")
	}

	if rid, ok := assignments.responsibleID(); ok {
		if err := s.snapshotResponsible(ctx, &assignments, rid); err != nil {
			return nil, err
		}
	}

	sets := make([]string, 0, len(assignments)+1)
	args := make([]any, 0, len(assignments)+2)
	for _, a := range assignments {
		sets = append(sets, a.column+" = ?")
		args = append(args, a.value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(s.now()), id)

	query := `UPDATE conversations SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}
	if rowsAffected(res) == 0 {
		return nil, ErrNotFound
	}

	s.logger.Debug().Str("conversation_id", id).Int("fields", len(assignments)).Msg("updated conversation")
	return s.GetConversation(ctx, id)
}

// snapshotResponsible denormalizes the responsible's display fields into the update.
func (s *SQLStore) snapshotResponsible(ctx context.Context, assignments *columnAssignments, rid *int64) error {
	var name, role, avatarURL any
	if rid != nil {
		r, err := s.GetResponsible(ctx, *rid)
		if errors.Is(err, ErrNotFound) {
			return chaterr.Validation("responsibleId", "responsible %d does not exist", *rid)
		}
		if err != nil {
			return err
		}
		name, role, avatarURL = r.Name, r.Role, r.Avatar
	}
	*assignments = append(*assignments,
		columnAssignment{"responsible_name", name},
		columnAssignment{"responsible_role", role},
		columnAssignment{"responsible_avatar", avatarURL},
	)
	return nil
}

// ListConversations returns conversations with pinned ones first, then by
// most recent activity.
func (s *SQLStore) ListConversations(ctx context.Context, params ListConversationsParams) ([]*Conversation, error) {
	limit := ClampLimit(params.Limit, DefaultConversationLimit, MaxConversationLimit)

	query := `SELECT ` + conversationColumns + ` FROM conversations`
	args := []any{}
	if session := strings.TrimSpace(params.Session); session != "" {
		query += ` WHERE session = ?`
		args = append(args, session)
	}
	query += ` ORDER BY pinned DESC, COALESCE(last_message_at, created_at) DESC, id ASC LIMIT ?`
	args = append(args, limit)

	var rows []conversationRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}

	out := make([]*Conversation, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toConversation()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ListKnownSessions returns the distinct provider sessions seen in conversation metadata.
func (s *SQLStore) ListKnownSessions(ctx context.Context) ([]string, error) {
	var sessions []string
	query := `SELECT DISTINCT session FROM conversations WHERE session IS NOT NULL AND session <> '' ORDER BY session`
	if err := s.db.SelectContext(ctx, &sessions, query); err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	return sessions, nil
}

// MarkConversationAsRead zeroes the unread counter and advances every
// contact-authored message that is not yet read to read. The boolean result
// is false when nothing needed to change.
func (s *SQLStore) MarkConversationAsRead(ctx context.Context, id string) (*Conversation, bool, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, false, err
	}

	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE messages SET status = ?
		WHERE conversation_id = ? AND sender = ? AND status <> ?
	`), StatusRead, id, SenderContact, StatusRead)
	if err != nil {
		return nil, false, fmt.Errorf("marking messages read: %w", err)
	}
	flipped := rowsAffected(res)

	lastNeedsRead := conv.LastMessage != nil &&
		conv.LastMessage.Sender == SenderContact &&
		conv.LastMessage.Status != StatusRead

	if conv.UnreadCount == 0 && flipped == 0 && !lastNeedsRead {
		return conv, false, nil
	}

	_, err = s.db.ExecContext(ctx, s.q(`
		UPDATE conversations SET
			unread_count = 0,
			last_message_status = CASE WHEN last_message_sender = ? THEN ? ELSE last_message_status END,
			updated_at = ?
		WHERE id = ?
	`), SenderContact, StatusRead, formatTime(s.now()), id)
	if err != nil {
		return nil, false, fmt.Errorf("resetting unread count: %w", err)
	}

	s.logger.Debug().Str("conversation_id", id).Int64("messages", flipped).Msg("marked conversation read")

	conv, err = s.GetConversation(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}
