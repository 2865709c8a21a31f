// Package store provides persistent storage for conversations and their message log.
//
// # Architecture
//
// Store is the interface consumed by the conversation service and the
// provider gateway. SQLStore implements it on sqlx and runs against either
// SQLite (modernc.org/sqlite, the default) or PostgreSQL (lib/pq). Queries are
// written with ? placeholders and rebound per driver.
//
// # Data Models
//
//   - Conversation: one thread with an external contact, carrying a
//     denormalized last-message projection and an unread counter
//   - Message: an append-only log entry keyed by id, correlated with the
//     provider through ExternalID
//   - Responsible: an operator whose display fields are copied into a
//     conversation when it is assigned. Rows are written by the
//     `chat-gateway responsible` command
//
// # Timestamps
//
// Timestamps are stored as fixed-width UTC text
// (2006-01-02T15:04:05.000Z) so string comparison matches time order in
// both dialects. The messages.created_at column holds the message time;
// recorded_at holds when the row was written.
//
// # Idempotency
//
// RecordMessage inserts with ON CONFLICT(id) DO NOTHING. A redelivered
// message returns the stored row and does not touch the conversation.
// The insert and the projection update are separate statements, so a crash
// between them leaves the projection one message behind the log. The message
// log is authoritative.
//
// # Pagination
//
// Message pages are keyed by created_at, newest first, with id as the tie
// breaker. A cursor is the oldest returned timestamp; when the following
// message has the same timestamp it becomes "timestamp~id".
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - *chaterr.ValidationError: malformed input, with the offending field
//
// # Testing
//
// Tests run against a real SQLite database in t.TempDir().
package store
