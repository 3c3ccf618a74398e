package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waysongjiang/pyopencode/internal/provider"
)

func TestAppendAndOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	sess, err := store.Open("s1")
	require.NoError(t, err)
	require.Empty(t, sess.Messages)

	require.NoError(t, sess.Append(provider.Message{Role: "system", Content: "hi"}))
	require.NoError(t, sess.Append(provider.Message{Role: "user", Content: "hello"}))

	reopened, err := store.Open("s1")
	require.NoError(t, err)
	require.Len(t, reopened.Messages, 2)
	assert.Equal(t, "hello", reopened.Messages[1].Content)
}

func TestOpenIgnoresCorruptTrailingLine(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "s2.jsonl")
	content := `{"role":"system","content":"ok"}
{"role":"user","content":"also ok"}
{"role":"user","content":`
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))

	store, err := NewStore(dir)
	require.NoError(t, err)
	sess, err := store.Open("s2")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
}

func TestReplaceRewritesFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	sess, err := store.Open("s3")
	require.NoError(t, err)

	require.NoError(t, sess.Append(provider.Message{Role: "system", Content: "a"}))
	require.NoError(t, sess.Append(provider.Message{Role: "tool", Content: "orphan", ToolCallID: "x"}))

	require.NoError(t, sess.Replace([]provider.Message{{Role: "system", Content: "a"}}))

	reopened, err := store.Open("s3")
	require.NoError(t, err)
	require.Len(t, reopened.Messages, 1)
}

func TestListReturnsSessionIDs(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	sess, err := store.Open("alpha")
	require.NoError(t, err)
	require.NoError(t, sess.Append(provider.Message{Role: "system", Content: "x"}))

	ids, err := store.List()
	require.NoError(t, err)
	assert.Contains(t, ids, "alpha")
}
