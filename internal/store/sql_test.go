// ABOUTME: Tests for SQL store setup and shared helpers
// ABOUTME: Covers database creation, migrations, limit clamping, cursors and previews

package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/chat-gateway/internal/config"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// fixedClock makes the store's clock deterministic and returns a setter.
func fixedClock(s *SQLStore, start time.Time) func(time.Time) {
	now := start
	s.now = func() time.Time { return now }
	return func(t time.Time) { now = t }
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestOpen_ReopenIsIdempotent(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "chat.db")}

	first, err := Open(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if _, err := first.EnsureConversation(context.Background(), ConversationInput{ID: "c1"}); err != nil {
		t.Fatalf("EnsureConversation failed: %v", err)
	}
	first.Close()

	second, err := Open(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer second.Close()

	if _, err := second.GetConversation(context.Background(), "c1"); err != nil {
		t.Fatalf("conversation lost across reopen: %v", err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestMigrations_AddMissingColumns(t *testing.T) {
	store := setupLegacyDB(t)

	exists, err := store.columnExists("messages", "recorded_at")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.columnExists("conversations", "session")
	require.NoError(t, err)
	assert.True(t, exists)
}

// setupLegacyDB recreates messages without the migrated columns and reruns migrations.
func setupLegacyDB(t *testing.T) *SQLStore {
	t.Helper()
	s := setupTestStore(t)
	_, err := s.db.Exec(`
		DROP TABLE messages;
		CREATE TABLE messages (
			id TEXT PRIMARY KEY, conversation_id TEXT NOT NULL, external_id TEXT,
			sender TEXT NOT NULL, content TEXT NOT NULL, type TEXT NOT NULL DEFAULT 'text',
			status TEXT NOT NULL, created_at TEXT NOT NULL
		);
	`)
	require.NoError(t, err)
	require.NoError(t, s.runMigrations())
	return s
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, ClampLimit(0, 20, 100))
	assert.Equal(t, 1, ClampLimit(-5, 20, 100))
	assert.Equal(t, 100, ClampLimit(1000, 20, 100))
	assert.Equal(t, 7, ClampLimit(7, 20, 100))
}

func TestParseCursor(t *testing.T) {
	got, id, err := ParseCursor("2026-03-01T14:00:00-03:00")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T17:00:00.000Z", got)
	assert.Empty(t, id)

	got, id, err = ParseCursor("2026-03-01T17:00:00.000Z~wamid.7")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T17:00:00.000Z", got)
	assert.Equal(t, "wamid.7", id)

	got, _, err = ParseCursor("  ")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, _, err = ParseCursor("yesterday")
	assert.Error(t, err)
	_, _, err = ParseCursor("yesterday~wamid.7")
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "hello there", Preview("  hello \n there ", TypeText, nil))

	long := strings.Repeat("a", 200)
	p := Preview(long, TypeText, nil)
	assert.Equal(t, PreviewLimit+1, len([]rune(p)))
	assert.True(t, strings.HasSuffix(p, "…"))

	assert.Equal(t, "Image: scan.jpg", Preview("", TypeImage, []Attachment{{Name: "scan.jpg"}}))
	assert.Equal(t, "[audio]", Preview("[audio]", TypeAudio, nil))
}

func TestResolveMessageID(t *testing.T) {
	assert.Equal(t, "m1", ResolveMessageID(" m1 ", "ext"))
	assert.Equal(t, "ext", ResolveMessageID("", "ext"))
	generated := ResolveMessageID("", "")
	assert.Len(t, generated, 36)
	assert.NotEqual(t, generated, ResolveMessageID("", ""))
}
