package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeContentString(t *testing.T) {
	out := normalizeContent(json.RawMessage(`{"content": "plain text"}`))
	assert.Equal(t, "plain text", out)
}

func TestNormalizeContentFragmentList(t *testing.T) {
	out := normalizeContent(json.RawMessage(`{"content": [
		{"type": "text", "text": "first"},
		{"type": "text", "text": "second"},
		{"type": "image", "data": "xyz"}
	]}`))
	assert.Equal(t, "first\nsecond\n{\"type\":\"image\",\"data\":\"xyz\"}", out)
}

func TestNormalizeContentOtherShape(t *testing.T) {
	out := normalizeContent(json.RawMessage(`{"content": {"rows": 3}}`))
	assert.Equal(t, `{"rows":3}`, out)

	// No content field at all: the whole result is serialized.
	out = normalizeContent(json.RawMessage(`{"ok": true}`))
	assert.Equal(t, `{"ok":true}`, out)
}

func TestNormalizeContentNoHTMLEscaping(t *testing.T) {
	out := normalizeContent(json.RawMessage(`{"content": {"cmd": "a < b"}}`))
	assert.Equal(t, `{"cmd":"a < b"}`, out)
}
