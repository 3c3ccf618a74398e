package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waysongjiang/pyopencode/internal/provider"
)

func TestSanitizeDropsOrphanToolMessages(t *testing.T) {
	msgs := []provider.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "do X"},
		{Role: "assistant", ToolCalls: []provider.ToolCall{{ID: "t1", Name: "read"}}},
		{Role: "tool", ToolCallID: "t1", Content: "file contents"},
		{Role: "assistant", Content: "hi"},
		{Role: "tool", ToolCallID: "orphan", Content: "leftover"},
	}
	out, dropped := Sanitize(msgs)
	assert.Equal(t, 1, dropped)
	assert.Len(t, out, 5)
	assert.Equal(t, "hi", out[4].Content)
}

func TestSanitizeKeepsContiguousToolReplies(t *testing.T) {
	msgs := []provider.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "do X"},
		{Role: "assistant", ToolCalls: []provider.ToolCall{{ID: "t1", Name: "read"}, {ID: "t2", Name: "list"}}},
		{Role: "tool", ToolCallID: "t1", Content: "a"},
		{Role: "tool", ToolCallID: "t2", Content: "b"},
	}
	out, dropped := Sanitize(msgs)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, msgs, out)
}

func TestSanitizeDropsToolAfterUserInterleave(t *testing.T) {
	msgs := []provider.Message{
		{Role: "assistant", ToolCalls: []provider.ToolCall{{ID: "t1", Name: "read"}}},
		{Role: "tool", ToolCallID: "t1", Content: "ok"},
		{Role: "user", Content: "new question"},
		{Role: "tool", ToolCallID: "t1", Content: "late duplicate"},
	}
	out, dropped := Sanitize(msgs)
	assert.Equal(t, 1, dropped)
	assert.Len(t, out, 3)
	assert.Equal(t, "user", out[2].Role)
}

func TestSanitizeDropsToolWithoutID(t *testing.T) {
	msgs := []provider.Message{
		{Role: "assistant", ToolCalls: []provider.ToolCall{{ID: "t1"}}},
		{Role: "tool", Content: "missing id"},
	}
	out, dropped := Sanitize(msgs)
	assert.Equal(t, 1, dropped)
	assert.Len(t, out, 1)
}

func TestSanitizeIsIdempotent(t *testing.T) {
	msgs := []provider.Message{
		{Role: "system", Content: "sys"},
		{Role: "tool", ToolCallID: "orphan", Content: "leftover"},
		{Role: "assistant", ToolCalls: []provider.ToolCall{{ID: "t1"}}},
		{Role: "tool", ToolCallID: "t1", Content: "ok"},
	}
	once, _ := Sanitize(msgs)
	twice, droppedAgain := Sanitize(once)
	assert.Equal(t, 0, droppedAgain)
	assert.Equal(t, once, twice)
}

func TestUniqueToolCallIDs(t *testing.T) {
	unique := []provider.Message{
		{Role: "assistant", ToolCalls: []provider.ToolCall{{ID: "t1"}, {ID: "t2"}}},
	}
	assert.True(t, UniqueToolCallIDs(unique))

	dup := []provider.Message{
		{Role: "assistant", ToolCalls: []provider.ToolCall{{ID: "t1"}}},
		{Role: "assistant", ToolCalls: []provider.ToolCall{{ID: "t1"}}},
	}
	assert.False(t, UniqueToolCallIDs(dup))
}
