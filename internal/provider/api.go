// ABOUTME: Provider endpoints: session listing, chat listing, sending and media download
// ABOUTME: Responses are parsed best-effort with gjson since providers disagree on shapes

package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/lexdesk/chat-gateway/internal/chaterr"
	"github.com/lexdesk/chat-gateway/internal/store"
)

// maxSessionFanout bounds concurrent per-session chat listings.
const maxSessionFanout = 4

// Chat is a provider-side conversation summary
type Chat struct {
	ID          string
	Name        string
	Picture     string
	Session     string
	UnreadCount int
	LastMessage *ChatMessage
}

// ChatMessage is the last message attached to a provider chat listing
type ChatMessage struct {
	ID        string
	Content   string
	FromMe    bool
	Timestamp time.Time
}

// SendRequest is an outbound message
type SendRequest struct {
	Session     string
	ChatID      string
	Content     string
	Type        string
	Attachments []store.Attachment
}

// SendResult carries what the provider reported about a sent message.
// ExternalID is empty and Timestamp zero when the response omitted them.
type SendResult struct {
	ExternalID string
	Timestamp  time.Time
}

// ValidateOutgoing rejects type and attachment combinations the provider cannot send.
func ValidateOutgoing(msgType string, attachments []store.Attachment) error {
	switch msgType {
	case "", store.TypeText:
		if len(attachments) > 0 {
			return chaterr.Validation("attachments", "text messages cannot carry attachments")
		}
	case store.TypeImage:
		if len(attachments) != 1 {
			return chaterr.Validation("attachments", "image messages need exactly one attachment")
		}
		if attachments[0].URL == "" {
			return chaterr.Validation("attachments", "attachment url is required")
		}
	case store.TypeAudio:
		return chaterr.Validation("type", "sending audio is not supported")
	default:
		return chaterr.Validation("type", "unknown message type %q", msgType)
	}
	return nil
}

// Sessions resolves the sessions to query. An explicit session wins; otherwise
// locally known sessions are used, then the provider's session listing. No
// resolvable session is a validation error.
func (g *Gateway) Sessions(ctx context.Context, session string) ([]string, error) {
	if session = strings.TrimSpace(session); session != "" {
		return []string{session}, nil
	}

	if g.sessions != nil {
		known, err := g.sessions.ListKnownSessions(ctx)
		if err != nil {
			return nil, err
		}
		if len(known) > 0 {
			return known, nil
		}
	}

	remote, err := g.listRemoteSessions(ctx)
	if err != nil {
		return nil, err
	}
	if len(remote) == 0 {
		return nil, chaterr.Validation("session", "no provider session is known")
	}
	return remote, nil
}

func (g *Gateway) listRemoteSessions(ctx context.Context) ([]string, error) {
	s, err := g.ready(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := g.do(ctx, request{
		op:     "list sessions",
		method: http.MethodGet,
		url:    s.BaseURL + "/api/sessions",
		apiKey: s.APIKey,
	})
	if err != nil {
		return nil, err
	}

	var out []string
	for _, item := range gjson.ParseBytes(resp.Body()).Array() {
		name := item.Get("name").String()
		if name == "" {
			name = item.Get("session").String()
		}
		if name == "" && item.Type == gjson.String {
			name = item.String()
		}
		if name != "" {
			out = append(out, name)
		}
	}
	return out, nil
}

// ListChats lists chats for session, or for every resolvable session when
// session is empty. Sessions are queried concurrently; results keep session order.
func (g *Gateway) ListChats(ctx context.Context, session string, limit int) ([]Chat, error) {
	s, err := g.ready(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := g.Sessions(ctx, session)
	if err != nil {
		return nil, err
	}

	results := make([][]Chat, len(sessions))
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxSessionFanout)
	for i, sess := range sessions {
		eg.Go(func() error {
			chats, err := g.listSessionChats(egCtx, s, sess, limit)
			if err != nil {
				return err
			}
			mu.Lock()
			results[i] = chats
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var all []Chat
	for _, chats := range results {
		all = append(all, chats...)
	}
	return all, nil
}

func (g *Gateway) listSessionChats(ctx context.Context, s Settings, session string, limit int) ([]Chat, error) {
	q := map[string]string{}
	if limit > 0 {
		q["limit"] = strconv.Itoa(limit)
	}
	resp, err := g.do(ctx, request{
		op:     "list chats",
		method: http.MethodGet,
		url:    s.BaseURL + "/api/" + url.PathEscape(session) + "/chats",
		query:  q,
		apiKey: s.APIKey,
	})
	if err != nil {
		return nil, err
	}
	return parseChats(resp.Body(), session), nil
}

// parseChats accepts either a bare array or one wrapped under chats or data.
func parseChats(body []byte, session string) []Chat {
	root := gjson.ParseBytes(body)
	list := root
	if !root.IsArray() {
		for _, key := range []string{"chats", "data"} {
			if v := root.Get(key); v.IsArray() {
				list = v
				break
			}
		}
	}

	var chats []Chat
	for _, item := range list.Array() {
		id := firstOf(item, "id._serialized", "id", "jid", "chatId")
		if id == "" {
			continue
		}
		chat := Chat{
			ID:          id,
			Name:        firstOf(item, "name", "pushName", "contact.name", "subject"),
			Picture:     firstOf(item, "picture", "profilePicUrl", "avatar"),
			Session:     session,
			UnreadCount: int(item.Get("unreadCount").Int()),
		}
		if last := item.Get("lastMessage"); last.IsObject() {
			chat.LastMessage = &ChatMessage{
				ID:        firstOf(last, "id._serialized", "id", "key.id"),
				Content:   firstOf(last, "body", "text", "caption"),
				FromMe:    last.Get("fromMe").Bool(),
				Timestamp: epoch(last.Get("timestamp")),
			}
		}
		chats = append(chats, chat)
	}
	return chats
}

// Send posts a message to the provider. Images go through the image endpoint
// with their caption; everything else is sent as text.
func (g *Gateway) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := ValidateOutgoing(req.Type, req.Attachments); err != nil {
		return nil, err
	}
	s, err := g.ready(ctx)
	if err != nil {
		return nil, err
	}

	r := request{method: http.MethodPost, apiKey: s.APIKey}
	if req.Type == store.TypeImage {
		att := req.Attachments[0]
		r.op = "send image"
		r.url = s.BaseURL + "/api/sendImage"
		r.body = map[string]any{
			"session": req.Session,
			"chatId":  req.ChatID,
			"caption": req.Content,
			"file":    map[string]string{"url": att.URL, "filename": att.Name},
		}
	} else {
		r.op = "send text"
		r.url = s.BaseURL + "/api/sendText"
		r.body = map[string]string{
			"session": req.Session,
			"chatId":  req.ChatID,
			"text":    req.Content,
		}
	}

	resp, err := g.do(ctx, r)
	if err != nil {
		return nil, err
	}
	body := gjson.ParseBytes(resp.Body())
	return &SendResult{
		ExternalID: firstOf(body, "id._serialized", "id.id", "id", "key.id", "messageId"),
		Timestamp:  epoch(firstResult(body, "timestamp", "messageTimestamp")),
	}, nil
}

// DownloadMedia fetches a media or avatar URL. Relative URLs resolve against
// the provider base URL, and the API key is only sent to the provider's host.
func (g *Gateway) DownloadMedia(ctx context.Context, rawURL string) ([]byte, string, error) {
	s, err := g.ready(ctx)
	if err != nil {
		return nil, "", err
	}
	target, sameHost, err := resolveMediaURL(s.BaseURL, rawURL)
	if err != nil {
		return nil, "", chaterr.Validation("url", "invalid media url: %v", err)
	}
	r := request{op: "download media", method: http.MethodGet, url: target}
	if sameHost {
		r.apiKey = s.APIKey
	}
	resp, err := g.do(ctx, r)
	if err != nil {
		return nil, "", err
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

func resolveMediaURL(base, raw string) (string, bool, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", false, err
	}
	u, err := b.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false, &url.Error{Op: "parse", URL: raw, Err: errUnsupportedScheme}
	}
	return u.String(), strings.EqualFold(u.Host, b.Host), nil
}

// firstResult returns the first path holding a non-empty scalar.
func firstResult(v gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		r := v.Get(p)
		if r.Exists() && !r.IsObject() && !r.IsArray() && r.String() != "" {
			return r
		}
	}
	return gjson.Result{}
}

func firstOf(v gjson.Result, paths ...string) string {
	return firstResult(v, paths...).String()
}

// epoch reads seconds or milliseconds; absent values give the zero time.
func epoch(r gjson.Result) time.Time {
	if !r.Exists() {
		return time.Time{}
	}
	n := r.Int()
	switch {
	case n <= 0:
		return time.Time{}
	case n > 1e12:
		return time.UnixMilli(n).UTC()
	default:
		return time.Unix(n, 0).UTC()
	}
}
