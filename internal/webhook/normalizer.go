// ABOUTME: Converts arbitrary provider webhook payloads into canonical message and status events
// ABOUTME: Walks nested objects and arrays cycle-safely, classifying nodes by structural predicates

package webhook

import (
	"fmt"
	"net/url"
	"path"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/lexdesk/chat-gateway/internal/store"
)

// maxDepth bounds the walk for pathological payloads.
const maxDepth = 32

// IncomingMessage is a canonical message event. FromMe marks messages the
// operator side sent (echoes), which are recorded as outgoing.
type IncomingMessage struct {
	ConversationID string             `json:"conversationId"`
	MessageID      string             `json:"messageId"`
	ExternalID     string             `json:"externalId,omitempty"`
	Content        string             `json:"content"`
	Timestamp      time.Time          `json:"timestamp"`
	Type           string             `json:"type"`
	SenderName     string             `json:"senderName,omitempty"`
	Phone          string             `json:"phone,omitempty"`
	Avatar         string             `json:"avatar,omitempty"`
	Session        string             `json:"session,omitempty"`
	FromMe         bool               `json:"fromMe"`
	Attachments    []store.Attachment `json:"attachments,omitempty"`
}

// StatusUpdate is a canonical delivery status event
type StatusUpdate struct {
	ExternalID string `json:"externalId"`
	Status     string `json:"status"`
}

// Events is the normalized result of one webhook payload
type Events struct {
	Messages []IncomingMessage
	Statuses []StatusUpdate
}

// Empty reports whether nothing was recognized.
func (e Events) Empty() bool {
	return len(e.Messages) == 0 && len(e.Statuses) == 0
}

// Normalizer extracts canonical events using a fixed candidate table.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	candidates Candidates
	now        func() time.Time
}

// New creates a normalizer. extra prepends candidate paths per logical field.
func New(extra map[string][]string) *Normalizer {
	return &Normalizer{candidates: NewCandidates(extra), now: time.Now}
}

// walkContext carries values inherited from enclosing wrapper objects.
type walkContext struct {
	event   string
	session string
}

type walker struct {
	n       *Normalizer
	visited map[uintptr]bool
	out     Events
	now     time.Time
}

// Normalize walks payload (the result of decoding JSON into any) and returns
// every message and status event it can resolve. Unresolvable candidates are
// dropped without error.
func (n *Normalizer) Normalize(payload any) Events {
	w := &walker{n: n, visited: make(map[uintptr]bool), now: n.now()}
	w.walk(payload, walkContext{}, 0)
	return w.out
}

func (w *walker) walk(node any, ctx walkContext, depth int) {
	if depth > maxDepth {
		return
	}
	switch v := node.(type) {
	case []any:
		if len(v) == 0 || !w.enter(v) {
			return
		}
		for _, item := range v {
			w.walk(item, ctx, depth+1)
		}
	case map[string]any:
		if !w.enter(v) {
			return
		}
		w.visitObject(v, ctx, depth)
	}
}

// enter marks a map or slice as visited and reports whether it is new.
func (w *walker) enter(v any) bool {
	ptr := reflect.ValueOf(v).Pointer()
	if w.visited[ptr] {
		return false
	}
	w.visited[ptr] = true
	return true
}

func (w *walker) visitObject(obj map[string]any, ctx walkContext, depth int) {
	c := w.n.candidates
	if ev := firstString(obj, c[FieldEvent]); ev != "" {
		ctx.event = strings.ToLower(ev)
	}
	if s := firstString(obj, c[FieldSession]); s != "" {
		ctx.session = s
	}

	statusEvent := isStatusEvent(ctx.event)

	if !statusEvent && w.isMessageLike(obj) {
		if msg, ok := w.n.message(obj, ctx, w.now); ok {
			w.out.Messages = append(w.out.Messages, msg)
			return
		}
	}
	if statusEvent || w.isStatusLike(obj) {
		if st, ok := w.n.status(obj); ok {
			w.out.Statuses = append(w.out.Statuses, st)
			return
		}
	}

	// Wrapper keys first so nested payloads inherit context in a stable order.
	seen := make(map[string]bool, len(wrapperKeys))
	for _, k := range wrapperKeys {
		if child, ok := obj[k]; ok {
			seen[k] = true
			w.walk(child, ctx, depth+1)
		}
	}
	for _, k := range sortedKeys(obj) {
		if seen[k] {
			continue
		}
		w.walk(obj[k], ctx, depth+1)
	}
}

// isStatusEvent matches event names such as message.ack, messages.update or
// status by their dot or underscore separated words.
func isStatusEvent(event string) bool {
	words := strings.FieldsFunc(event, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == ':' || r == '/'
	})
	for _, w := range words {
		switch w {
		case "ack", "status", "statuses", "receipt", "update":
			return true
		}
	}
	return false
}

// isMessageLike: a conversation-id-like field, a body-like field or a nested message object.
func (w *walker) isMessageLike(obj map[string]any) bool {
	c := w.n.candidates
	if firstString(obj, c[FieldConversationID]) != "" || firstString(obj, c[FieldOutgoingConversationID]) != "" {
		return true
	}
	if firstString(obj, c[FieldContent]) != "" {
		return true
	}
	_, nested := obj["message"].(map[string]any)
	return nested
}

// isStatusLike: an ack, status or state field.
func (w *walker) isStatusLike(obj map[string]any) bool {
	return firstValue(obj, w.n.candidates[FieldStatus]) != nil
}

func (n *Normalizer) message(obj map[string]any, ctx walkContext, now time.Time) (IncomingMessage, bool) {
	c := n.candidates
	fromMe := anyBool(obj, c[FieldFromMe])

	convPaths := c[FieldConversationID]
	if fromMe {
		convPaths = c[FieldOutgoingConversationID]
	}
	msg := IncomingMessage{
		ConversationID: firstString(obj, convPaths),
		MessageID:      firstString(obj, c[FieldMessageID]),
		ExternalID:     firstString(obj, c[FieldExternalID]),
		Content:        firstString(obj, c[FieldContent]),
		Timestamp:      ParseTimestamp(firstValue(obj, c[FieldTimestamp]), now),
		Type:           NormalizeType(firstString(obj, c[FieldType])),
		SenderName:     firstString(obj, c[FieldSenderName]),
		Avatar:         firstString(obj, c[FieldAvatar]),
		Session:        ctx.session,
		FromMe:         fromMe,
	}
	if msg.ConversationID == "" {
		return IncomingMessage{}, false
	}
	msg.Phone = PhoneFromChatID(msg.ConversationID)

	msg.Attachments = n.attachments(obj, msg.MessageID)
	if len(msg.Attachments) > 0 && msg.Type != store.TypeImage && msg.Type != store.TypeAudio {
		msg.Type = store.TypeImage
		if msg.Attachments[0].Type == store.TypeAudio {
			msg.Type = store.TypeAudio
		}
	}
	if msg.Type == "" {
		msg.Type = store.TypeText
	}

	if msg.Content == "" {
		if len(msg.Attachments) == 0 {
			return IncomingMessage{}, false
		}
		msg.Content = store.MediaPlaceholder(msg.Type)
	}
	return msg, true
}

func (n *Normalizer) status(obj map[string]any) (StatusUpdate, bool) {
	c := n.candidates
	id := firstString(obj, c[FieldStatusID])
	raw := firstValue(obj, c[FieldStatus])
	if id == "" || raw == nil {
		return StatusUpdate{}, false
	}
	return StatusUpdate{ExternalID: id, Status: NormalizeStatus(raw)}, true
}

// attachments collects an explicit attachment array, falling back to a single
// direct media URL.
func (n *Normalizer) attachments(obj map[string]any, messageID string) []store.Attachment {
	c := n.candidates
	var out []store.Attachment

	if list, ok := firstValue(obj, c[FieldAttachments]).([]any); ok {
		for i, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if att, ok := attachmentFrom(entry, messageID, i); ok {
				out = append(out, att)
			}
		}
	}
	if len(out) > 0 {
		return out
	}

	mediaURL := firstString(obj, c[FieldMediaURL])
	if mediaURL == "" {
		return nil
	}
	return []store.Attachment{{
		ID:   attachmentID(messageID, 0),
		Type: attachmentType(firstString(obj, c[FieldMediaType]), firstString(obj, c[FieldType])),
		URL:  mediaURL,
		Name: nameOr(firstString(obj, c[FieldMediaName]), mediaURL),
	}}
}

func attachmentFrom(entry map[string]any, messageID string, i int) (store.Attachment, bool) {
	u := firstString(entry, []string{"url", "link", "mediaUrl", "media_url", "src"})
	if u == "" {
		return store.Attachment{}, false
	}
	id := firstString(entry, []string{"id", "attachmentId"})
	if id == "" {
		id = attachmentID(messageID, i)
	}
	return store.Attachment{
		ID:   id,
		Type: attachmentType(firstString(entry, []string{"mimetype", "mimeType", "contentType"}), firstString(entry, []string{"type"})),
		URL:  u,
		Name: nameOr(firstString(entry, []string{"name", "filename", "fileName", "title"}), u),
	}, true
}

func attachmentID(messageID string, i int) string {
	if messageID == "" {
		return fmt.Sprintf("att-%d", i)
	}
	return fmt.Sprintf("%s-%d", messageID, i)
}

// attachmentType prefers the MIME type, then the declared type; unknowns are "file".
func attachmentType(mime, declared string) string {
	mime = strings.ToLower(mime)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return store.TypeImage
	case strings.HasPrefix(mime, "audio/"):
		return store.TypeAudio
	}
	if t := NormalizeType(declared); t == store.TypeImage || t == store.TypeAudio {
		return t
	}
	return "file"
}

// nameOr returns name, or the last path segment of rawURL.
func nameOr(name, rawURL string) string {
	if name != "" {
		return name
	}
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		if base := path.Base(u.Path); base != "/" && base != "." {
			return base
		}
	}
	return "attachment"
}

// PhoneFromChatID extracts the digits of a personal chat id such as 5511999@c.us.
func PhoneFromChatID(chatID string) string {
	user, domain, found := strings.Cut(chatID, "@")
	if !found || (domain != "c.us" && domain != "s.whatsapp.net") {
		return ""
	}
	user, _, _ = strings.Cut(user, ":")
	for _, r := range user {
		if r < '0' || r > '9' {
			return ""
		}
	}
	if user == "" {
		return ""
	}
	return "+" + user
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
