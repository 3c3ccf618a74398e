package provider

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adapterWith(reasoning ReasoningOptions) *openAIAdapter {
	return NewOpenAI("test", "http://localhost/v1", "key", "model-x", 0.2, reasoning).(*openAIAdapter)
}

func TestWireMessagesToolShape(t *testing.T) {
	a := adapterWith(ReasoningOptions{})
	wire := a.toOpenAIMessages([]Message{
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "t1", Name: "read", Arguments: json.RawMessage(`{"path":"a"}`)}}},
		{Role: "tool", Name: "should-be-dropped", ToolCallID: "t1", Content: "result"},
	})

	require.Len(t, wire, 2)
	require.Len(t, wire[0].ToolCalls, 1)
	assert.Equal(t, "function", wire[0].ToolCalls[0].Type)
	assert.Equal(t, `{"path":"a"}`, wire[0].ToolCalls[0].Function.Arguments)
	assert.Nil(t, wire[0].ReasoningContent)

	assert.Empty(t, wire[1].Name, "tool messages never carry a name")
	assert.Equal(t, "t1", wire[1].ToolCallID)
}

func TestWireMessagesIncludeReasoning(t *testing.T) {
	a := adapterWith(ReasoningOptions{Include: true})
	wire := a.toOpenAIMessages([]Message{
		{Role: "assistant", Reasoning: "thought", ToolCalls: []ToolCall{{ID: "t1", Name: "read"}}},
		{Role: "assistant", Reasoning: "thought", Content: "plain answer"},
	})

	require.NotNil(t, wire[0].ReasoningContent)
	assert.Equal(t, "thought", *wire[0].ReasoningContent)
	assert.Nil(t, wire[1].ReasoningContent, "include mode only touches tool-calling messages")
}

func TestWireMessagesForceReasoningSendsEmptyString(t *testing.T) {
	a := adapterWith(ReasoningOptions{Force: true})
	wire := a.toOpenAIMessages([]Message{
		{Role: "assistant", Content: "answer"},
		{Role: "user", Content: "question"},
	})

	require.NotNil(t, wire[0].ReasoningContent)
	assert.Equal(t, "", *wire[0].ReasoningContent)
	assert.Nil(t, wire[1].ReasoningContent, "only assistant messages carry reasoning")

	raw, err := json.Marshal(wire[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"reasoning_content":""`)
}

func TestParseSSEStream(t *testing.T) {
	input := strings.Join([]string{
		`data: {"choices":[{"delta":{"reasoning_content":"hmm"}}]}`,
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"t1","function":{"name":"read"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"pa"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"th\":\"a\"}"}}]}}]}`,
		`data: not-json-is-skipped`,
		`data: {"usage":{"prompt_tokens":10,"completion_tokens":5},"choices":[]}`,
		`data: [DONE]`,
		"",
	}, "\n")

	ch := make(chan StreamEvent, 32)
	parseSSEStream(context.Background(), strings.NewReader(input), ch)
	close(ch)

	var text, reasoning, toolArgs, toolName, toolID string
	var sawDone bool
	var inTokens int
	for evt := range ch {
		switch evt.Type {
		case EventContentDelta:
			text += evt.Content
		case EventReasoningDelta:
			reasoning += evt.Content
		case EventToolCallBegin:
			toolName = evt.ToolCallName
			toolID = evt.ToolCallID
		case EventToolCallDelta:
			toolArgs += evt.ToolCallArgs
		case EventUsage:
			inTokens = evt.InputTokens
		case EventDone:
			sawDone = true
		}
	}

	assert.Equal(t, "Hello", text)
	assert.Equal(t, "hmm", reasoning)
	assert.Equal(t, "read", toolName)
	assert.Equal(t, "t1", toolID)
	assert.Equal(t, `{"path":"a"}`, toolArgs)
	assert.Equal(t, 10, inTokens)
	assert.True(t, sawDone)
}
