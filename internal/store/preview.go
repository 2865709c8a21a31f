// ABOUTME: Preview text for the conversation list's last-message projection
// ABOUTME: Truncates long text and labels media messages by their first attachment

package store

import "strings"

// PreviewLimit is the maximum preview length in runes, excluding the ellipsis.
const PreviewLimit = 160

// MediaPlaceholder is the preview used for media without a named attachment,
// and the content stored for media messages that carry no caption.
func MediaPlaceholder(msgType string) string {
	return "[" + msgType + "]"
}

var mediaLabels = map[string]string{
	TypeImage: "Image",
	TypeAudio: "Audio",
}

// Preview builds the list preview for a message.
func Preview(content, msgType string, attachments []Attachment) string {
	if label, ok := mediaLabels[msgType]; ok {
		if len(attachments) > 0 {
			if name := strings.TrimSpace(attachments[0].Name); name != "" {
				return truncate(label + ": " + name)
			}
		}
		return MediaPlaceholder(msgType)
	}
	return truncate(strings.Join(strings.Fields(content), " "))
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= PreviewLimit {
		return s
	}
	return strings.TrimRight(string(r[:PreviewLimit]), " ") + "…"
}
