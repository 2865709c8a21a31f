// ABOUTME: Typing indicator state machine per conversation and user
// ABOUTME: Typing expires after an inactivity window; stale timers are ignored by generation

package realtime

import "time"

// Reasons carried by typing stop events
const (
	TypingStopped = "stopped"
	TypingTimeout = "timeout"
)

type typingKey struct {
	conversationID string
	userID         string
}

type typingState struct {
	gen   uint64
	name  string
	timer *time.Timer
}

// TypingEvent is the payload of a typing broadcast
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Name           string `json:"name,omitempty"`
	Typing         bool   `json:"typing"`
	Reason         string `json:"reason,omitempty"`
}

// SetTyping applies a typing signal. A true signal enters or stays in the
// typing state and restarts the expiry timer; only the transition from idle
// is broadcast. A false signal from the typing state broadcasts a stop.
func (h *Hub) SetTyping(conversationID, userID, name string, typing bool) {
	key := typingKey{conversationID: conversationID, userID: userID}

	h.mu.Lock()
	st, active := h.typing[key]
	if !typing {
		if active {
			st.timer.Stop()
			delete(h.typing, key)
		}
		h.mu.Unlock()
		if active {
			h.Broadcast(EventTyping, TypingEvent{
				ConversationID: conversationID, UserID: userID, Name: st.name, Reason: TypingStopped,
			}, "")
		}
		return
	}

	if active {
		st.timer.Stop()
	} else {
		st = &typingState{}
		h.typing[key] = st
	}
	st.gen++
	st.name = name
	gen := st.gen
	st.timer = time.AfterFunc(h.typingTimeout, func() { h.expireTyping(key, gen) })
	h.mu.Unlock()

	if !active {
		h.Broadcast(EventTyping, TypingEvent{
			ConversationID: conversationID, UserID: userID, Name: name, Typing: true,
		}, "")
	}
}

// expireTyping runs from the timer goroutine. A timer replaced by a newer
// signal may still fire; its generation no longer matches and it does nothing.
func (h *Hub) expireTyping(key typingKey, gen uint64) {
	h.mu.Lock()
	st, ok := h.typing[key]
	if !ok || st.gen != gen {
		h.mu.Unlock()
		return
	}
	delete(h.typing, key)
	h.mu.Unlock()

	h.Broadcast(EventTyping, TypingEvent{
		ConversationID: key.conversationID, UserID: key.userID, Name: st.name, Reason: TypingTimeout,
	}, "")
}

// IsTyping reports whether the pair is currently in the typing state.
func (h *Hub) IsTyping(conversationID, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.typing[typingKey{conversationID: conversationID, userID: userID}]
	return ok
}
