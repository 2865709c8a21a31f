// Package realtime pushes conversation state changes to connected operator clients.
//
// The Hub keeps a registry of clients, each with a bounded event buffer.
// Broadcasts never block: a client whose buffer is full is evicted and its
// stream ends, so one stalled browser tab cannot slow the others. Persisted
// state stays the source of truth; clients that reconnect reload it.
//
// Serve streams a client's events as server-sent events:
//
//	event: message:new
//	data: {"conversationId":"...","message":{...}}
//
// and writes a ping event every heartbeat interval.
//
// Typing indicators are tracked per (conversation, user). A typing signal
// starts or restarts an inactivity timer; the timer or an explicit stop
// returns the pair to idle and broadcasts typing=false with reason "timeout"
// or "stopped".
package realtime
