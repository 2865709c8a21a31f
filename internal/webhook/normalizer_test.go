// ABOUTME: Tests for webhook payload normalization
// ABOUTME: Covers envelope shapes, timestamps, statuses, echoes, attachments, cycles and configured paths

package webhook

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestNormalizer(extra map[string][]string) *Normalizer {
	n := New(extra)
	n.now = func() time.Time { return testNow }
	return n
}

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

const bareMessage = `{
	"id": "wamid.1",
	"from": "5511999887766@c.us",
	"body": "Hello, I need help with my contract",
	"timestamp": 1767225600,
	"type": "chat",
	"pushName": "Ana",
	"session": "default"
}`

func TestNormalize_EnvelopeShapesAreEquivalent(t *testing.T) {
	n := newTestNormalizer(nil)

	shapes := map[string]string{
		"events envelope": `{"events": [{"event": "message", "session": "default", "payload": ` + bareMessage + `}]}`,
		"bare array":      `[` + bareMessage + `]`,
		"bare object":     bareMessage,
	}

	want := IncomingMessage{
		ConversationID: "5511999887766@c.us",
		MessageID:      "wamid.1",
		ExternalID:     "wamid.1",
		Content:        "Hello, I need help with my contract",
		Timestamp:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Type:           "text",
		SenderName:     "Ana",
		Phone:          "+5511999887766",
		Session:        "default",
	}

	for name, raw := range shapes {
		t.Run(name, func(t *testing.T) {
			events := n.Normalize(decode(t, raw))
			require.Len(t, events.Messages, 1)
			assert.Empty(t, events.Statuses)
			assert.Equal(t, want, events.Messages[0])
		})
	}
}

func TestNormalize_SessionInheritedFromEnvelope(t *testing.T) {
	n := newTestNormalizer(nil)
	events := n.Normalize(decode(t, `{
		"event": "message",
		"session": "office-2",
		"payload": {"id": "m1", "chatId": "c1", "text": "hi"}
	}`))
	require.Len(t, events.Messages, 1)
	assert.Equal(t, "office-2", events.Messages[0].Session)
}

func TestNormalize_TimestampUnits(t *testing.T) {
	n := newTestNormalizer(nil)
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, ts := range map[string]string{
		"seconds":      `1767225600`,
		"milliseconds": `1767225600000`,
		"numeric text": `"1767225600"`,
		"iso":          `"2026-01-01T00:00:00Z"`,
	} {
		t.Run(name, func(t *testing.T) {
			events := n.Normalize(decode(t, `{"chatId": "c1", "text": "x", "timestamp": `+ts+`}`))
			require.Len(t, events.Messages, 1)
			assert.True(t, want.Equal(events.Messages[0].Timestamp), "got %v", events.Messages[0].Timestamp)
		})
	}

	t.Run("missing uses now", func(t *testing.T) {
		events := n.Normalize(decode(t, `{"chatId": "c1", "text": "x"}`))
		require.Len(t, events.Messages, 1)
		assert.Equal(t, testNow, events.Messages[0].Timestamp)
	})
}

func TestNormalize_Statuses(t *testing.T) {
	n := newTestNormalizer(nil)

	tests := []struct {
		name string
		raw  string
		want StatusUpdate
	}{
		{
			"ack event",
			`{"event": "message.ack", "payload": {"id": "wamid.1", "from": "5511@c.us", "ack": 3}}`,
			StatusUpdate{ExternalID: "wamid.1", Status: "read"},
		},
		{
			"device ack",
			`{"event": "message.ack", "payload": {"id": {"_serialized": "wamid.2"}, "ack": 2}}`,
			StatusUpdate{ExternalID: "wamid.2", Status: "delivered"},
		},
		{
			"bare status word",
			`{"id": "wamid.3", "status": "DELIVERY_ACK"}`,
			StatusUpdate{ExternalID: "wamid.3", Status: "delivered"},
		},
		{
			"unknown status",
			`{"messageId": "wamid.4", "state": "mystery"}`,
			StatusUpdate{ExternalID: "wamid.4", Status: "sent"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := n.Normalize(decode(t, tt.raw))
			assert.Empty(t, events.Messages)
			require.Len(t, events.Statuses, 1)
			assert.Equal(t, tt.want, events.Statuses[0])
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, "sent", NormalizeStatus(float64(1)))
	assert.Equal(t, "delivered", NormalizeStatus(float64(2)))
	assert.Equal(t, "read", NormalizeStatus(float64(4)))
	assert.Equal(t, "read", NormalizeStatus("seen"))
	assert.Equal(t, "delivered", NormalizeStatus("2"))
	assert.Equal(t, "sent", NormalizeStatus(nil))
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, "text", NormalizeType("chat"))
	assert.Equal(t, "image", NormalizeType("imageMessage"))
	assert.Equal(t, "audio", NormalizeType("ptt"))
	assert.Equal(t, "", NormalizeType("location"))
}

func TestNormalize_FromMeUsesRecipient(t *testing.T) {
	n := newTestNormalizer(nil)
	events := n.Normalize(decode(t, `{
		"id": "wamid.9",
		"fromMe": true,
		"from": "5511000000000@c.us",
		"to": "5511888777666@c.us",
		"body": "Your hearing is on Monday"
	}`))
	require.Len(t, events.Messages, 1)
	msg := events.Messages[0]
	assert.True(t, msg.FromMe)
	assert.Equal(t, "5511888777666@c.us", msg.ConversationID)
}

func TestNormalize_AnyTrueFromMeFlagWins(t *testing.T) {
	n := newTestNormalizer(nil)
	tests := map[string]string{
		"key flag after false top-level": `{"id": "M1", "fromMe": false, "key": {"fromMe": true},
			"from": "5511000000000@c.us", "to": "5511888777666@c.us", "body": "Signed copy attached"}`,
		"string and numeric flags": `{"id": "M2", "fromMe": "false", "isFromMe": 1,
			"from": "5511000000000@c.us", "to": "5511888777666@c.us", "body": "Signed copy attached"}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			events := n.Normalize(decode(t, raw))
			require.Len(t, events.Messages, 1)
			msg := events.Messages[0]
			assert.True(t, msg.FromMe)
			assert.Equal(t, "5511888777666@c.us", msg.ConversationID)
		})
	}

	events := n.Normalize(decode(t, `{"id": "M3", "fromMe": false, "key": {"fromMe": "no"},
		"from": "5511888777666@c.us", "body": "Thanks"}`))
	require.Len(t, events.Messages, 1)
	assert.False(t, events.Messages[0].FromMe)
}

func TestNormalize_NestedBaileysMessage(t *testing.T) {
	n := newTestNormalizer(nil)
	events := n.Normalize(decode(t, `{
		"instance": "firm",
		"data": {
			"key": {"remoteJid": "5511777@s.whatsapp.net", "fromMe": false, "id": "B1"},
			"pushName": "Carlos",
			"message": {"conversation": "Good morning"},
			"messageTimestamp": 1767225600
		}
	}`))
	require.Len(t, events.Messages, 1)
	msg := events.Messages[0]
	assert.Equal(t, "5511777@s.whatsapp.net", msg.ConversationID)
	assert.Equal(t, "B1", msg.MessageID)
	assert.Equal(t, "Good morning", msg.Content)
	assert.Equal(t, "Carlos", msg.SenderName)
	assert.Equal(t, "firm", msg.Session)
	assert.Equal(t, "+5511777", msg.Phone)
}

func TestNormalize_MediaFallback(t *testing.T) {
	n := newTestNormalizer(nil)
	events := n.Normalize(decode(t, `{
		"id": "m1",
		"chatId": "c1",
		"hasMedia": true,
		"media": {"url": "https://cdn.example.com/files/photo.jpg", "mimetype": "image/jpeg"}
	}`))
	require.Len(t, events.Messages, 1)
	msg := events.Messages[0]
	assert.Equal(t, "image", msg.Type)
	assert.Equal(t, "[image]", msg.Content)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "m1-0", msg.Attachments[0].ID)
	assert.Equal(t, "image", msg.Attachments[0].Type)
	assert.Equal(t, "photo.jpg", msg.Attachments[0].Name)
}

func TestNormalize_ExplicitAttachmentsDriveType(t *testing.T) {
	n := newTestNormalizer(nil)
	events := n.Normalize(decode(t, `{
		"id": "m2",
		"chatId": "c1",
		"body": "voice note attached",
		"attachments": [
			{"url": "https://cdn.example.com/a.ogg", "type": "audio"},
			{"name": "missing url"}
		]
	}`))
	require.Len(t, events.Messages, 1)
	msg := events.Messages[0]
	assert.Equal(t, "audio", msg.Type)
	assert.Equal(t, "voice note attached", msg.Content)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "a.ogg", msg.Attachments[0].Name)
}

func TestNormalize_DropsUnresolvable(t *testing.T) {
	n := newTestNormalizer(nil)
	assert.True(t, n.Normalize(decode(t, `{"foo": "bar", "nested": {"x": 1}}`)).Empty())
	assert.True(t, n.Normalize(decode(t, `{"chatId": "c1"}`)).Empty())
	assert.True(t, n.Normalize(decode(t, `[]`)).Empty())
	assert.True(t, n.Normalize(nil).Empty())
	assert.True(t, n.Normalize("just text").Empty())
}

func TestNormalize_CyclicStructures(t *testing.T) {
	n := newTestNormalizer(nil)
	msg := map[string]any{"chatId": "c1", "text": "loop"}

	a := map[string]any{}
	b := map[string]any{"back": a, "payload": msg}
	a["next"] = b

	list := make([]any, 2)
	list[0] = list
	list[1] = a

	events := n.Normalize(list)
	require.Len(t, events.Messages, 1)
	assert.Equal(t, "loop", events.Messages[0].Content)
}

func TestNormalize_DepthIsBounded(t *testing.T) {
	n := newTestNormalizer(nil)
	var node any = map[string]any{"chatId": "deep", "text": "x"}
	for i := 0; i < maxDepth+5; i++ {
		node = map[string]any{"wrap": node}
	}
	assert.True(t, n.Normalize(node).Empty())
}

func TestNormalize_ConfiguredCandidates(t *testing.T) {
	raw := `{"meta": {"thread": "T-1"}, "body": "custom provider"}`

	assert.True(t, newTestNormalizer(nil).Normalize(decode(t, raw)).Empty())

	n := newTestNormalizer(map[string][]string{FieldConversationID: {"meta.thread"}})
	events := n.Normalize(decode(t, raw))
	require.Len(t, events.Messages, 1)
	assert.Equal(t, "T-1", events.Messages[0].ConversationID)
}

func TestNewCandidatesPrependsAndDedupes(t *testing.T) {
	c := NewCandidates(map[string][]string{FieldContent: {"msg.txt", "body", ""}})
	assert.Equal(t, "msg.txt", c[FieldContent][0])
	assert.Equal(t, "body", c[FieldContent][1])

	count := 0
	for _, p := range c[FieldContent] {
		if p == "body" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.NotContains(t, defaultCandidates[FieldContent], "msg.txt")
}
