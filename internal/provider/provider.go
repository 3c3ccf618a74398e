// Package provider implements the LLM adapter: a single OpenAI-compatible
// chat/completions transport used in both blocking and streaming mode.
package provider

import (
	"context"
	"encoding/json"
)

// Value is a single dynamic value type standing in for free-form structured
// tool arguments and results (variant of null/bool/number/string/list/map).
// Tools validate the keys they care about locally rather than each
// generating its own argument type.
type Value = json.RawMessage

// Message is the provider-agnostic chat message carried through the turn
// orchestrator and persisted to the session log. Role is one of
// system/user/assistant/tool. Name tags a well-known system injection
// (skill/rules/agent/summary). ToolCallID binds a tool-role message to the
// assistant-role message whose ToolCalls contains it.
type Message struct {
	Role       string     `json:"role"`
	Name       string     `json:"name,omitempty"`
	Content    string     `json:"content,omitempty"`
	Reasoning  string     `json:"reasoning,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is the (id, tool-name, arguments) triple requested by the model.
// ID is the join key between an assistant's request and the tool-role reply.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments Value  `json:"arguments"`
}

// Tool is the wire form of a ToolSpec sent to the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// AssistantTurn is the parsed result of one model call, blocking or streamed.
type AssistantTurn struct {
	Text         string
	Reasoning    string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// StreamEventType identifies the kind of streaming event.
type StreamEventType int

const (
	EventContentDelta StreamEventType = iota
	EventReasoningDelta
	EventToolCallBegin
	EventToolCallDelta
	EventUsage
	EventDone
	EventError
)

// StreamEvent is a single event folded out of the streaming read loop. An
// implementer may instead expose an iterator; the orchestrator only ever
// consumes these through a channel.
type StreamEvent struct {
	Type StreamEventType

	Content string // EventContentDelta / EventReasoningDelta

	ToolCallIndex int    // EventToolCallBegin / EventToolCallDelta
	ToolCallID    string // EventToolCallBegin
	ToolCallName  string // EventToolCallBegin
	ToolCallArgs  string // EventToolCallDelta, a fragment of the arguments string

	InputTokens  int // EventUsage
	OutputTokens int // EventUsage

	Err error // EventError
}

// Adapter is the LLM transport contract: one POST to
// <base_url>/chat/completions, blocking or streaming.
type Adapter interface {
	// Chat performs a single blocking chat/completions call.
	Chat(ctx context.Context, messages []Message, tools []Tool) (AssistantTurn, error)

	// ChatStream performs a streaming chat/completions call. The returned
	// channel is closed after an EventDone or EventError event, or without
	// either once ctx is cancelled.
	ChatStream(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamEvent, error)

	// Close releases idle transport resources.
	Close() error
}
