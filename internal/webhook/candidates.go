// ABOUTME: Ordered candidate property paths for every logical webhook field
// ABOUTME: Lookup is first-non-empty-wins; configured paths are tried before the built-in ones

package webhook

// Logical field names, also used as keys for configured candidate paths.
const (
	FieldConversationID         = "conversationId"
	FieldOutgoingConversationID = "outgoingConversationId"
	FieldMessageID              = "messageId"
	FieldExternalID             = "externalId"
	FieldTimestamp              = "timestamp"
	FieldContent                = "content"
	FieldType                   = "type"
	FieldSenderName             = "senderName"
	FieldFromMe                 = "fromMe"
	FieldSession                = "session"
	FieldEvent                  = "event"
	FieldAttachments            = "attachments"
	FieldMediaURL               = "mediaUrl"
	FieldMediaName              = "mediaName"
	FieldMediaType              = "mediaType"
	FieldStatus                 = "status"
	FieldStatusID               = "statusId"
	FieldAvatar                 = "avatar"
)

// Wrapper keys under which providers nest the real payload.
var wrapperKeys = []string{"events", "payload", "data", "messages"}

var chatIDPaths = []string{
	"chatId", "chat_id", "conversationId", "conversation_id",
	"remoteJid", "key.remoteJid", "chat.id", "chat.jid",
}

// defaultCandidates holds the built-in lookup order. The order encodes which
// provider's naming is preferred when several are present.
var defaultCandidates = map[string][]string{
	FieldConversationID:         append(append([]string{}, chatIDPaths...), "from", "author"),
	FieldOutgoingConversationID: append(append([]string{}, chatIDPaths...), "to", "from"),
	FieldMessageID: {
		"messageId", "message_id", "id._serialized", "id", "key.id", "id.id",
	},
	FieldExternalID: {
		"externalId", "external_id", "id._serialized", "id", "key.id", "id.id", "messageId", "message_id",
	},
	FieldTimestamp: {
		"timestamp", "messageTimestamp", "t", "createdAt", "created_at", "date", "time",
	},
	FieldContent: {
		"body", "text", "text.body", "content", "caption",
		"message.conversation", "message.extendedTextMessage.text",
		"message.imageMessage.caption", "message.text", "message.body",
	},
	FieldType: {
		"type", "messageType", "message_type",
	},
	FieldSenderName: {
		"senderName", "pushName", "notifyName", "_data.notifyName",
		"sender.pushname", "sender.name", "contact.name", "chat.name",
	},
	FieldFromMe: {
		"fromMe", "key.fromMe", "from_me", "id.fromMe", "isFromMe",
	},
	FieldSession: {
		"session", "instance", "instanceName", "sessionId",
	},
	FieldEvent: {
		"event", "eventType", "event_type",
	},
	FieldAttachments: {
		"attachments", "medias",
	},
	FieldMediaURL: {
		"mediaUrl", "media_url", "media.url", "mediaURL", "fileUrl",
		"message.imageMessage.url", "message.audioMessage.url",
	},
	FieldMediaName: {
		"media.filename", "filename", "fileName", "media.name",
	},
	FieldMediaType: {
		"media.mimetype", "mimetype", "mimeType", "media.mimeType",
	},
	FieldStatus: {
		"ack", "status", "state", "ackName", "receipt.status", "update.status",
	},
	FieldStatusID: {
		"id._serialized", "id", "key.id", "keyId", "messageId", "message_id",
	},
	FieldAvatar: {
		"avatar", "profilePicUrl", "picture", "chat.picture", "sender.profilePicUrl",
	},
}

// Candidates is the resolved lookup order per logical field.
type Candidates map[string][]string

// NewCandidates merges extra paths in front of the built-in ones.
// Extra entries for unknown field names are kept so a custom resolver can use them.
func NewCandidates(extra map[string][]string) Candidates {
	c := make(Candidates, len(defaultCandidates)+len(extra))
	for field, paths := range defaultCandidates {
		c[field] = append([]string{}, paths...)
	}
	for field, paths := range extra {
		merged := make([]string, 0, len(paths)+len(c[field]))
		seen := make(map[string]bool, len(paths))
		for _, p := range append(append([]string{}, paths...), c[field]...) {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			merged = append(merged, p)
		}
		c[field] = merged
	}
	return c
}
