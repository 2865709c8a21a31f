// ABOUTME: Pure helpers over decoded JSON values: dotted-path lookup and scalar coercion
// ABOUTME: Also normalizes timestamps, message types and delivery statuses

package webhook

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lexdesk/chat-gateway/internal/store"
)

// lookup follows a dotted path through nested objects. Numeric segments index arrays.
func lookup(obj map[string]any, path string) any {
	var cur any = obj
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[seg]
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}
	return cur
}

// scalarString renders strings and numbers; other kinds yield "".
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// firstString returns the first candidate resolving to a non-empty scalar.
func firstString(obj map[string]any, paths []string) string {
	for _, p := range paths {
		if s := scalarString(lookup(obj, p)); s != "" {
			return s
		}
	}
	return ""
}

// firstValue returns the first candidate that is present and non-empty.
func firstValue(obj map[string]any, paths []string) any {
	for _, p := range paths {
		v := lookup(obj, p)
		if !isEmpty(v) {
			return v
		}
	}
	return nil
}

// anyBool reports whether any candidate resolves to a true boolean-like value.
// A false candidate does not hide a true one further down the list.
func anyBool(obj map[string]any, paths []string) bool {
	for _, p := range paths {
		switch v := lookup(obj, p).(type) {
		case bool:
			if v {
				return true
			}
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil && b {
				return true
			}
		case float64:
			if v != 0 {
				return true
			}
		}
	}
	return false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

// msThreshold separates epoch seconds from epoch milliseconds.
const msThreshold = 1e12

// ParseTimestamp accepts epoch seconds, epoch milliseconds, numeric strings,
// ISO-8601 strings and time.Time values. Anything else yields now.
func ParseTimestamp(v any, now time.Time) time.Time {
	switch t := v.(type) {
	case time.Time:
		if !t.IsZero() {
			return t.UTC()
		}
	case float64:
		if ts, ok := fromEpoch(t); ok {
			return ts
		}
	case json.Number:
		if f, err := t.Float64(); err == nil {
			if ts, ok := fromEpoch(f); ok {
				return ts
			}
		}
	case int64:
		if ts, ok := fromEpoch(float64(t)); ok {
			return ts
		}
	case int:
		if ts, ok := fromEpoch(float64(t)); ok {
			return ts
		}
	case string:
		s := strings.TrimSpace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if ts, ok := fromEpoch(f); ok {
				return ts
			}
			break
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC()
			}
		}
	}
	return now.UTC()
}

func fromEpoch(f float64) (time.Time, bool) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	if f > msThreshold {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

var statusSynonyms = map[string]string{
	"sent":         store.StatusSent,
	"server":       store.StatusSent,
	"server_ack":   store.StatusSent,
	"pending":      store.StatusSent,
	"queued":       store.StatusSent,
	"delivered":    store.StatusDelivered,
	"delivery_ack": store.StatusDelivered,
	"device":       store.StatusDelivered,
	"received":     store.StatusDelivered,
	"read":         store.StatusRead,
	"read_ack":     store.StatusRead,
	"seen":         store.StatusRead,
	"viewed":       store.StatusRead,
	"played":       store.StatusRead,
}

// NormalizeStatus maps provider ack codes and status words onto the three
// delivery statuses. Numeric acks follow the 1=server, 2=device, 3+=read
// convention. Unknown values map to sent.
func NormalizeStatus(v any) string {
	if s, ok := v.(string); ok {
		s = strings.ToLower(strings.TrimSpace(s))
		if mapped, ok := statusSynonyms[s]; ok {
			return mapped
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return store.StatusSent
		}
	}
	code, err := strconv.ParseFloat(scalarString(v), 64)
	if err != nil {
		return store.StatusSent
	}
	switch {
	case code >= 3:
		return store.StatusRead
	case code == 2:
		return store.StatusDelivered
	default:
		return store.StatusSent
	}
}

// NormalizeType maps provider message type names onto text, image or audio.
// It returns "" for types it does not recognize.
func NormalizeType(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	switch {
	case v == "":
		return ""
	case v == "chat" || v == "text" || v == "conversation" || v == "extendedtextmessage":
		return store.TypeText
	case strings.HasPrefix(v, "image") || v == "sticker" || v == "imagemessage" || v == "stickermessage":
		return store.TypeImage
	case strings.HasPrefix(v, "audio") || v == "ptt" || v == "voice" || v == "audiomessage":
		return store.TypeAudio
	default:
		return ""
	}
}
