// ABOUTME: Validation of partial conversation updates into column assignments
// ABOUTME: Each recognized field has its own parser; unknown keys are ignored

package store

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lexdesk/chat-gateway/internal/chaterr"
)

type columnAssignment struct {
	column string
	value  any
}

type columnAssignments []columnAssignment

// responsibleID returns the responsible assignment, if present. A nil id clears it.
func (a columnAssignments) responsibleID() (*int64, bool) {
	for _, c := range a {
		if c.column != "responsible_id" {
			continue
		}
		if c.value == nil {
			return nil, true
		}
		id := c.value.(int64)
		return &id, true
	}
	return nil, false
}

type fieldParser func(key string, raw any, now func() time.Time) (any, error)

var conversationFields = []struct {
	key    string
	column string
	parse  fieldParser
}{
	{"name", "name", parseStringOrNull},
	{"avatar", "avatar", parseStringOrNull},
	{"statusText", "status_text", parseStringOrNull},
	{"description", "description", parseStringOrNull},
	{"phone", "phone", parseStringOrNull},
	{"pinned", "pinned", parseBool},
	{"isPrivate", "is_private", parseBool},
	{"responsibleId", "responsible_id", parseIntOrNull},
	{"clientId", "client_id", parseIntOrNull},
	{"tags", "tags", parseTags},
	{"customAttributes", "custom_attributes", parseCustomAttributes},
	{"notes", "notes", parseNotes},
}

// parseConversationChanges validates changes in a stable field order.
func parseConversationChanges(changes map[string]any, now func() time.Time) (columnAssignments, error) {
	var out columnAssignments
	for _, f := range conversationFields {
		raw, ok := changes[f.key]
		if !ok {
			continue
		}
		v, err := f.parse(f.key, raw, now)
		if err != nil {
			return nil, err
		}
		out = append(out, columnAssignment{f.column, v})
	}
	return out, nil
}

func parseStringOrNull(key string, raw any, _ func() time.Time) (any, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	default:
		return nil, chaterr.Validation(key, "must be a string or null")
	}
}

func parseBool(key string, raw any, _ func() time.Time) (any, error) {
	b, ok := raw.(bool)
	if !ok {
		return nil, chaterr.Validation(key, "must be a boolean")
	}
	return boolInt(b), nil
}

func parseIntOrNull(key string, raw any, _ func() time.Time) (any, error) {
	if raw == nil {
		return nil, nil
	}
	id, ok := toInt64(raw)
	if !ok {
		return nil, chaterr.Validation(key, "must be an integer or null")
	}
	return id, nil
}

// toInt64 accepts JSON numbers with no fractional part that fit in an
// int64, and numeric strings.
func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which is out of range.
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// NormalizeTags trims, drops blanks, de-duplicates case-insensitively
// (first spelling wins) and sorts case-insensitively.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}

func parseTags(key string, raw any, _ func() time.Time) (any, error) {
	if raw == nil {
		return "[]", nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, chaterr.Validation(key, "must be an array of strings")
	}
	tags := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, chaterr.Validation(key, "must be an array of strings")
		}
		tags = append(tags, s)
	}
	return encodeJSON(NormalizeTags(tags), "[]")
}

func parseCustomAttributes(key string, raw any, _ func() time.Time) (any, error) {
	if raw == nil {
		return "[]", nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, chaterr.Validation(key, "must be an array")
	}
	attrs := make([]CustomAttribute, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, chaterr.Validation(key, "entry %d must be an object", i)
		}
		attr := CustomAttribute{
			ID:    stringField(obj, "id"),
			Label: stringField(obj, "label"),
			Value: stringField(obj, "value"),
		}
		if attr.ID == "" || attr.Label == "" || attr.Value == "" {
			return nil, chaterr.Validation(key, "entry %d requires id, label and value", i)
		}
		attrs = append(attrs, attr)
	}
	return encodeJSON(attrs, "[]")
}

func parseNotes(key string, raw any, now func() time.Time) (any, error) {
	if raw == nil {
		return "[]", nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, chaterr.Validation(key, "must be an array")
	}
	notes := make([]Note, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, chaterr.Validation(key, "entry %d must be an object", i)
		}
		note := Note{
			ID:      stringField(obj, "id"),
			Author:  stringField(obj, "author"),
			Content: stringField(obj, "content"),
		}
		if note.ID == "" || note.Author == "" || note.Content == "" {
			return nil, chaterr.Validation(key, "entry %d requires id, author and content", i)
		}

		ts := stringField(obj, "createdAt")
		if ts == "" {
			ts = stringField(obj, "timestamp")
		}
		if ts == "" {
			note.CreatedAt = now().UTC()
		} else {
			t, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return nil, chaterr.Validation(key, "entry %d has an invalid timestamp %q", i, ts)
			}
			note.CreatedAt = t.UTC()
		}
		notes = append(notes, note)
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
	return encodeJSON(notes, "[]")
}

// stringField reads obj[key] as a trimmed string; numbers are formatted.
func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
