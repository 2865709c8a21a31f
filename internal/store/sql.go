// ABOUTME: SQL implementation of the Store interface on sqlx over SQLite or PostgreSQL
// ABOUTME: Handles connection setup, schema creation, migrations and shared column codecs

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/lexdesk/chat-gateway/internal/config"
)

// timeLayout is fixed width and always UTC so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// SQLStore implements the Store interface using sqlx
type SQLStore struct {
	db     *sqlx.DB
	driver string
	logger zerolog.Logger
	now    func() time.Time
}

// Open connects to the database described by cfg.
// The schema is automatically created if it doesn't exist.
func Open(cfg config.DatabaseConfig, logger zerolog.Logger) (*SQLStore, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStore(cfg.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewSQLiteStore creates a new SQLite store at the given path.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return newSQLStore(db, "sqlite", logger, path)
}

// NewPostgresStore connects to PostgreSQL using a lib/pq DSN.
func NewPostgresStore(dsn string, logger zerolog.Logger) (*SQLStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	return newSQLStore(db, "postgres", logger, "postgres")
}

func newSQLStore(db *sqlx.DB, driver string, logger zerolog.Logger, location string) (*SQLStore, error) {
	s := &SQLStore{
		db:     db,
		driver: driver,
		logger: logger.With().Str("component", "store").Logger(),
		now:    time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info().Str("driver", driver).Str("location", location).Msg("store initialized")
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// Booleans are INTEGER 0/1 and timestamps fixed-width TEXT in both dialects.
func (s *SQLStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id                   TEXT PRIMARY KEY,
			contact_id           TEXT NOT NULL,
			name                 TEXT NOT NULL DEFAULT '',
			avatar               TEXT NOT NULL DEFAULT '',
			status_text          TEXT NOT NULL DEFAULT '',
			description          TEXT NOT NULL DEFAULT '',
			pinned               INTEGER NOT NULL DEFAULT 0,
			phone                TEXT NOT NULL DEFAULT '',
			responsible_id       BIGINT,
			responsible_name     TEXT,
			responsible_role     TEXT,
			responsible_avatar   TEXT,
			tags                 TEXT NOT NULL DEFAULT '[]',
			client_id            BIGINT,
			custom_attributes    TEXT NOT NULL DEFAULT '[]',
			is_private           INTEGER NOT NULL DEFAULT 0,
			notes                TEXT NOT NULL DEFAULT '[]',
			unread_count         INTEGER NOT NULL DEFAULT 0,
			last_message_id      TEXT,
			last_message_preview TEXT,
			last_message_at      TEXT,
			last_message_sender  TEXT,
			last_message_type    TEXT,
			last_message_status  TEXT,
			metadata             TEXT NOT NULL DEFAULT '{}',
			session              TEXT,
			created_at           TEXT NOT NULL,
			updated_at           TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			external_id     TEXT,
			sender          TEXT NOT NULL,
			content         TEXT NOT NULL,
			type            TEXT NOT NULL DEFAULT 'text',
			status          TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			recorded_at     TEXT NOT NULL,
			attachments     TEXT NOT NULL DEFAULT '[]'
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_messages_external_id
			ON messages(external_id);

		CREATE TABLE IF NOT EXISTS responsibles (
			id     BIGINT PRIMARY KEY,
			name   TEXT NOT NULL,
			role   TEXT NOT NULL DEFAULT '',
			avatar TEXT NOT NULL DEFAULT ''
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies column additions for databases created by older builds.
// These are idempotent - safe to run multiple times.
func (s *SQLStore) runMigrations() error {
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{"messages", "recorded_at", `ALTER TABLE messages ADD COLUMN recorded_at TEXT NOT NULL DEFAULT ''`},
		{"messages", "attachments", `ALTER TABLE messages ADD COLUMN attachments TEXT NOT NULL DEFAULT '[]'`},
		{"conversations", "session", `ALTER TABLE conversations ADD COLUMN session TEXT`},
		{"conversations", "is_private", `ALTER TABLE conversations ADD COLUMN is_private INTEGER NOT NULL DEFAULT 0`},
	}

	for _, m := range migrations {
		exists, err := s.columnExists(m.table, m.column)
		if err != nil {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if exists {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info().Str("column", m.column).Str("table", m.table).Msg("applied migration")
	}

	return nil
}

func (s *SQLStore) columnExists(table, column string) (bool, error) {
	query := `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`
	if s.driver == "postgres" {
		query = `SELECT COUNT(*) FROM information_schema.columns WHERE table_name = ? AND column_name = ?`
	}
	var n int
	if err := s.db.Get(&n, s.db.Rebind(query), table, column); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks database connectivity
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	s.logger.Info().Msg("closing store")
	return s.db.Close()
}

// q rebinds ? placeholders for the active driver.
func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// cursorSep joins the timestamp and message id of a tie-breaking cursor.
const cursorSep = "~"

// ParseCursor validates an opaque page cursor. It returns the timestamp in
// its canonical stored form and, for a tie-breaking cursor, the message id.
func ParseCursor(cursor string) (at, id string, err error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return "", "", nil
	}
	ts, id, _ := strings.Cut(cursor, cursorSep)
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "", "", err
	}
	return formatTime(t), id, nil
}

// formatCursor returns the timestamp alone when it separates pages, and the
// timestamp plus id when the next page starts at the same instant.
func formatCursor(at, id string, tied bool) string {
	if !tied {
		return at
	}
	return at + cursorSep + id
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func encodeJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func decodeJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
