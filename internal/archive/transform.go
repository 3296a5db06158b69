package archive

import (
	"encoding/json"
	"fmt"
	"strconv"

	"mastodon-to-sqlite/internal/mastodon"
)

var (
	accountFields = []string{"id", "username", "url", "display_name", "note"}
	statusFields  = []string{"id", "created_at", "content"}
)

// TransformAccount projects a raw account onto the columns stored in the
// accounts table. Missing keys are left out. The input is never modified.
func TransformAccount(raw mastodon.Record) mastodon.Record {
	return project(raw, accountFields)
}

// TransformStatus projects a raw status onto the columns stored in the
// statuses table. The author's id is lifted out of the nested account object
// into account_id and the nested object itself is dropped.
func TransformStatus(raw mastodon.Record) mastodon.Record {
	out := project(raw, statusFields)

	if account, ok := nestedAccount(raw); ok {
		if id, ok := account["id"]; ok {
			out["account_id"] = id
		}
	} else if id, ok := raw["account_id"]; ok {
		// already transformed
		out["account_id"] = id
	}

	return out
}

func project(raw mastodon.Record, fields []string) mastodon.Record {
	out := make(mastodon.Record, len(fields))
	for _, field := range fields {
		if v, ok := raw[field]; ok {
			out[field] = v
		}
	}
	return out
}

// nestedAccount returns the author object embedded in a status
func nestedAccount(raw mastodon.Record) (mastodon.Record, bool) {
	switch account := raw["account"].(type) {
	case mastodon.Record:
		return account, true
	case map[string]any:
		return mastodon.Record(account), true
	default:
		return nil, false
	}
}

// stringField reads a column value as text. Absent and null values map to
// nil; numeric identifiers keep their exact digits.
func stringField(r mastodon.Record, key string) *string {
	v, ok := r[key]
	if !ok || v == nil {
		return nil
	}

	var s string
	switch v := v.(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	default:
		s = fmt.Sprint(v)
	}
	return &s
}

// RecordID returns the record's id as text, or "" when it has none
func RecordID(r mastodon.Record) string {
	if id := stringField(r, "id"); id != nil {
		return *id
	}
	return ""
}
