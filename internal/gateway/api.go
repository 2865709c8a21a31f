// ABOUTME: HTTP handlers for conversations, messages, read state, typing and the realtime stream
// ABOUTME: Handlers translate requests into conversation.Service calls and render JSON results

package gateway

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lexdesk/chat-gateway/internal/auth"
	"github.com/lexdesk/chat-gateway/internal/conversation"
	"github.com/lexdesk/chat-gateway/internal/realtime"
	"github.com/lexdesk/chat-gateway/internal/store"
)

// SendMessageRequest is the body of POST /api/conversations/{id}/messages
type SendMessageRequest struct {
	Content     string             `json:"content"`
	Type        string             `json:"type"`
	Attachments []store.Attachment `json:"attachments"`
}

// TypingRequest is the body of POST /api/conversations/{id}/typing
type TypingRequest struct {
	Typing bool `json:"typing"`
}

// ConversationList is the body of GET /api/conversations
type ConversationList struct {
	Conversations []*store.Conversation `json:"conversations"`
}

func (s *server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	local, err := queryBool(r, "local")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	convs, err := s.Conversations.List(r.Context(), conversation.ListParams{
		Session:   r.URL.Query().Get("session"),
		Limit:     limit,
		LocalOnly: local,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if convs == nil {
		convs = []*store.Conversation{}
	}
	writeJSON(w, http.StatusOK, ConversationList{Conversations: convs})
}

func (s *server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var in store.ConversationInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, s.logger, err)
		return
	}
	conv, err := s.Conversations.Create(r.Context(), in)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.Conversations.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	changes := map[string]any{}
	if err := decodeBody(r, &changes); err != nil {
		writeError(w, s.logger, err)
		return
	}
	conv, err := s.Conversations.Update(r.Context(), mux.Vars(r)["id"], changes)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	page, err := s.Conversations.GetMessages(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	msg, err := s.Conversations.SendMessage(r.Context(), conversation.SendRequest{
		ConversationID: mux.Vars(r)["id"],
		Content:        req.Content,
		Type:           req.Type,
		Attachments:    req.Attachments,
		ClientID:       r.Header.Get(realtime.ClientHeader),
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	conv, err := s.Conversations.MarkRead(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *server) handleTyping(w http.ResponseWriter, r *http.Request) {
	var req TypingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	id := auth.MustFromContext(r.Context())
	if err := s.Conversations.SetTyping(r.Context(), mux.Vars(r)["id"], id.UserID, id.Name, req.Typing); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	err := s.Stream.Serve(r.Context(), w, id.UserID, id.Name)
	if errors.Is(err, realtime.ErrStreamingUnsupported) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Code: "internal"})
		return
	}
	if err != nil {
		s.logger.Debug().Err(err).Str("user_id", id.UserID).Msg("realtime stream ended")
	}
}
