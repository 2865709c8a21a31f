// Package conversation is the layer between the HTTP surface and storage.
//
// # Service
//
// The Service owns every state change of a conversation:
//
//   - Ensure, Create and Update maintain conversation records
//   - List optionally syncs chats from the provider before reading the store
//   - RecordIncoming and RecordOutgoing store normalized messages
//   - HandleWebhook ingests a whole provider delivery, one event at a time
//   - ApplyStatus moves delivery statuses forward, never backwards
//   - SendMessage sends through the provider and records the result
//   - MarkRead and SetTyping drive read state and typing indicators
//
// # Record first, then announce
//
// Changes are written to the store before anything is broadcast. Realtime
// events are a hint to refresh; a client that misses one reloads from the
// store and sees the same state.
//
// # Idempotency
//
// Providers deliver webhooks at least once. Message ids come from the
// provider, so a redelivered message hits the store's idempotent insert and
// is reported as a duplicate without side effects. A short-lived dedupe
// cache skips the store round-trip for deliveries seen moments ago.
package conversation
