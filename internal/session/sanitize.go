package session

import "github.com/waysongjiang/pyopencode/internal/provider"

// Sanitize drops any tool-role message that lacks a tool-call-id, or whose
// id is not answered by the assistant message heading its contiguous
// tool-reply block (an assistant with tool calls, followed only by
// tool-role messages). It returns the cleaned slice and the number of
// messages dropped. Idempotent: sanitizing twice yields the same result
// as once.
func Sanitize(msgs []provider.Message) ([]provider.Message, int) {
	out := make([]provider.Message, 0, len(msgs))
	dropped := 0

	// Index in out of the assistant heading the current tool-reply block,
	// or -1 when the previous kept message is neither an
	// assistant-with-calls nor one of its contiguous tool replies.
	blockHead := -1

	for _, m := range msgs {
		if m.Role != "tool" {
			if m.Role == "assistant" && len(m.ToolCalls) > 0 {
				blockHead = len(out)
			} else {
				blockHead = -1
			}
			out = append(out, m)
			continue
		}
		if m.ToolCallID == "" || blockHead < 0 || !hasToolCall(out[blockHead], m.ToolCallID) {
			dropped++
			continue
		}
		out = append(out, m)
	}
	return out, dropped
}

func hasToolCall(assistant provider.Message, toolCallID string) bool {
	for _, tc := range assistant.ToolCalls {
		if tc.ID == toolCallID {
			return true
		}
	}
	return false
}

// UniqueToolCallIDs reports whether every tool_call_id across all assistant
// messages is unique within the session.
func UniqueToolCallIDs(msgs []provider.Message) bool {
	seen := make(map[string]bool)
	for _, m := range msgs {
		for _, tc := range m.ToolCalls {
			if seen[tc.ID] {
				return false
			}
			seen[tc.ID] = true
		}
	}
	return true
}
