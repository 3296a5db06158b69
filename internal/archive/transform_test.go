package archive

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mastodon-to-sqlite/internal/mastodon"
)

func decodeRecord(t *testing.T, raw string) mastodon.Record {
	t.Helper()
	var r mastodon.Record
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return r
}

const rawAccount = `{
	"id": "109302",
	"username": "myles",
	"acct": "myles@mastodon.example",
	"display_name": "Myles",
	"locked": false,
	"bot": false,
	"discoverable": true,
	"group": false,
	"created_at": "2022-11-08T00:00:00.000Z",
	"note": "<p>Hello</p>",
	"url": "https://mastodon.example/@myles",
	"avatar": "https://files.example/avatar.png",
	"avatar_static": "https://files.example/avatar.png",
	"header": "https://files.example/header.png",
	"header_static": "https://files.example/header.png",
	"followers_count": 120,
	"following_count": 80,
	"statuses_count": 512,
	"last_status_at": "2024-03-01",
	"emojis": [],
	"fields": [{"name": "Web", "value": "example.com"}],
	"source": {"privacy": "public"}
}`

func TestTransformAccount(t *testing.T) {
	raw := decodeRecord(t, rawAccount)
	require.GreaterOrEqual(t, len(raw), 20)

	out := TransformAccount(raw)
	assert.Equal(t, mastodon.Record{
		"id":           "109302",
		"username":     "myles",
		"url":          "https://mastodon.example/@myles",
		"display_name": "Myles",
		"note":         "<p>Hello</p>",
	}, out)

	// Pure projection
	assert.Len(t, raw, 22)
	assert.Contains(t, raw, "avatar")

	assert.Equal(t, out, TransformAccount(TransformAccount(raw)))
}

func TestTransformAccountMissingKeys(t *testing.T) {
	out := TransformAccount(mastodon.Record{"id": "1", "bot": true})
	assert.Equal(t, mastodon.Record{"id": "1"}, out)

	assert.Empty(t, TransformAccount(mastodon.Record{}))
}

func TestTransformStatus(t *testing.T) {
	raw := decodeRecord(t, `{
		"id": "9001",
		"created_at": "2024-03-01T12:00:00.000Z",
		"content": "<p>toot</p>",
		"visibility": "public",
		"reblogs_count": 3,
		"account": {"id": "42", "username": "author"}
	}`)

	out := TransformStatus(raw)
	assert.Equal(t, mastodon.Record{
		"id":         "9001",
		"created_at": "2024-03-01T12:00:00.000Z",
		"content":    "<p>toot</p>",
		"account_id": "42",
	}, out)
	assert.NotContains(t, out, "account")

	assert.Equal(t, out, TransformStatus(out))
	assert.Contains(t, raw, "account")
}

func TestTransformStatusNumericAccountID(t *testing.T) {
	raw := mastodon.Record{"id": "1", "account": map[string]any{"id": json.Number("42")}}

	out := TransformStatus(raw)
	require.Contains(t, out, "account_id")
	assert.Equal(t, "42", *stringField(out, "account_id"))
}

func TestStringField(t *testing.T) {
	r := mastodon.Record{
		"text":   "hi",
		"null":   nil,
		"number": json.Number("109876543210987654"),
		"float":  float64(42),
	}

	assert.Equal(t, "hi", *stringField(r, "text"))
	assert.Nil(t, stringField(r, "null"))
	assert.Nil(t, stringField(r, "missing"))
	assert.Equal(t, "109876543210987654", *stringField(r, "number"))
	assert.Equal(t, "42", *stringField(r, "float"))

	assert.Equal(t, "109876543210987654", RecordID(mastodon.Record{"id": json.Number("109876543210987654")}))
	assert.Equal(t, "", RecordID(mastodon.Record{}))
}
