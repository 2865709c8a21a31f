// ABOUTME: Directory of responsible operators used for conversation assignment snapshots
// ABOUTME: Upsert keeps the row current; conversations copy its fields at assignment time

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lexdesk/chat-gateway/internal/chaterr"
)

// UpsertResponsible inserts or replaces a responsible by id.
func (s *SQLStore) UpsertResponsible(ctx context.Context, r *Responsible) error {
	if r.ID <= 0 {
		return chaterr.Validation("id", "must be a positive integer")
	}
	if strings.TrimSpace(r.Name) == "" {
		return chaterr.Validation("name", "is required")
	}

	query := `
		INSERT INTO responsibles (id, name, role, avatar) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role, avatar = excluded.avatar
	`
	if _, err := s.db.ExecContext(ctx, s.q(query), r.ID, strings.TrimSpace(r.Name), r.Role, r.Avatar); err != nil {
		return fmt.Errorf("upserting responsible: %w", err)
	}
	return nil
}

// GetResponsible retrieves a responsible by ID.
// Returns ErrNotFound if the responsible doesn't exist.
func (s *SQLStore) GetResponsible(ctx context.Context, id int64) (*Responsible, error) {
	var r Responsible
	err := s.db.GetContext(ctx, &r, s.q(`SELECT id, name, role, avatar FROM responsibles WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying responsible: %w", err)
	}
	return &r, nil
}
