package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// openAIAdapter speaks the OpenAI-compatible chat/completions dialect:
// POST {model, messages, temperature, tools?, tool_choice, stream?} with
// bearer auth. Retries and fallback are the orchestrator's responsibility;
// the adapter surfaces every transport failure as-is.
type openAIAdapter struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client

	// includeReasoning echoes an assistant message's reasoning text back
	// when that message carried tool calls; forceReasoning echoes it on
	// every assistant message (empty string when absent). Some providers
	// require one or the other in thinking mode.
	includeReasoning bool
	forceReasoning   bool
}

// ReasoningOptions configures the reasoning-text passthrough behavior of
// an adapter, set per provider config entry.
type ReasoningOptions struct {
	Include bool
	Force   bool
}

// NewOpenAI constructs the adapter for a given provider config entry.
func NewOpenAI(name, baseURL, apiKey, model string, temperature float64, reasoning ReasoningOptions) Adapter {
	return &openAIAdapter{
		name:             name,
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           apiKey,
		model:            model,
		temperature:      temperature,
		httpClient:       &http.Client{Timeout: 120 * time.Second},
		includeReasoning: reasoning.Include,
		forceReasoning:   reasoning.Force,
	}
}

func (a *openAIAdapter) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}

// chatRequest mirrors openai.ChatCompletionRequest but always serializes
// Stream (the SDK's struct omits false values, which some OpenAI-compatible
// servers require to be present).
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []openai.Tool `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

// wireMessage is the on-the-wire chat message shape. It is kept independent
// of the SDK's ChatCompletionMessage so the reasoning_content passthrough
// and tool_call_id are serialized exactly as intended, regardless of what the
// vendored SDK struct happens to support in a given version.
type wireMessage struct {
	Role             string         `json:"role"`
	Content          string         `json:"content,omitempty"`
	Name             string         `json:"name,omitempty"`
	ReasoningContent *string        `json:"reasoning_content,omitempty"`
	ToolCallID       string         `json:"tool_call_id,omitempty"`
	ToolCalls        []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatResponse struct {
	Choices []struct {
		Message wireResponseMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type wireResponseMessage struct {
	Content          string         `json:"content"`
	ReasoningContent string         `json:"reasoning_content"`
	ToolCalls        []wireToolCall `json:"tool_calls"`
}

// Chat performs one blocking chat/completions call.
func (a *openAIAdapter) Chat(ctx context.Context, messages []Message, tools []Tool) (AssistantTurn, error) {
	req := chatRequest{
		Model:       a.model,
		Messages:    a.toOpenAIMessages(messages),
		Temperature: float32(a.temperature),
		Stream:      false,
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = "auto"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return AssistantTurn{}, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := a.doRequest(ctx, body)
	if err != nil {
		return AssistantTurn{}, err
	}

	var decoded chatResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return AssistantTurn{}, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return AssistantTurn{}, errors.New("no response choices")
	}

	msg := decoded.Choices[0].Message
	turn := AssistantTurn{
		Text:         msg.Content,
		Reasoning:    msg.ReasoningContent,
		InputTokens:  decoded.Usage.PromptTokens,
		OutputTokens: decoded.Usage.CompletionTokens,
	}
	for _, tc := range msg.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		turn.ToolCalls = append(turn.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(args),
		})
	}
	return turn, nil
}

// doRequest performs one non-streaming HTTP POST. Transient (5xx/429)
// responses and network errors raise a uniform transport error; the
// orchestrator owns retry/backoff.
func (a *openAIAdapter) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	url := a.baseURL + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	log.Debug().Str("provider", a.name).Str("model", a.model).Str("url", url).Msg("llm.request")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport error: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := string(payload)
		if len(excerpt) > 2000 {
			excerpt = excerpt[:2000]
		}
		return nil, fmt.Errorf("chat completion status %d: %s", resp.StatusCode, strings.TrimSpace(excerpt))
	}

	log.Debug().Str("provider", a.name).Int("status", resp.StatusCode).Msg("llm.response")
	return payload, nil
}

// ChatStream performs one streaming chat/completions call, parsing SSE
// lines prefixed "data: " and terminating on "data: [DONE]".
func (a *openAIAdapter) ChatStream(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamEvent, error) {
	req := chatRequest{
		Model:       a.model,
		Messages:    a.toOpenAIMessages(messages),
		Temperature: float32(a.temperature),
		Stream:      true,
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = "auto"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := a.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	log.Debug().Str("provider", a.name).Str("model", a.model).Msg("llm.request (stream)")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport error: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		excerpt := string(payload)
		if len(excerpt) > 2000 {
			excerpt = excerpt[:2000]
		}
		return nil, fmt.Errorf("stream request status %d: %s", resp.StatusCode, strings.TrimSpace(excerpt))
	}

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		parseSSEStream(ctx, resp.Body, ch)
	}()
	return ch, nil
}

// --- SSE parsing ---

type chatCompletionStreamResponse struct {
	Choices []chatCompletionStreamChoice `json:"choices"`
	Usage   *chatCompletionUsage         `json:"usage,omitempty"`
}

type chatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatCompletionStreamChoice struct {
	Delta        chatCompletionStreamDelta `json:"delta"`
	FinishReason *string                   `json:"finish_reason"`
}

type chatCompletionStreamDelta struct {
	Role             string                   `json:"role,omitempty"`
	Content          string                   `json:"content,omitempty"`
	ReasoningContent string                   `json:"reasoning_content,omitempty"`
	ToolCalls        []chatCompletionToolCall `json:"tool_calls,omitempty"`
}

type chatCompletionToolCall struct {
	Index    int                    `json:"index"`
	ID       string                 `json:"id"`
	Function chatCompletionFunction `json:"function"`
}

type chatCompletionFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// parseSSEStream reads SSE lines from reader and emits one StreamEvent per
// delta; the caller accumulates text, reasoning text and the partial tool
// calls keyed by delta index.
func parseSSEStream(ctx context.Context, reader io.Reader, ch chan<- StreamEvent) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			trySend(ctx, ch, StreamEvent{Type: EventDone})
			return
		}

		var chunk chatCompletionStreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Warn().Err(err).Str("data", data).Msg("llm: failed to parse SSE chunk")
			continue
		}
		if chunk.Usage != nil {
			trySend(ctx, ch, StreamEvent{
				Type:         EventUsage,
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			})
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if !emitDelta(ctx, ch, chunk.Choices[0].Delta) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		trySend(ctx, ch, StreamEvent{Type: EventError, Err: err})
		return
	}
	trySend(ctx, ch, StreamEvent{Type: EventDone})
}

func emitDelta(ctx context.Context, ch chan<- StreamEvent, delta chatCompletionStreamDelta) bool {
	if delta.ReasoningContent != "" {
		if !trySend(ctx, ch, StreamEvent{Type: EventReasoningDelta, Content: delta.ReasoningContent}) {
			return false
		}
	}
	if delta.Content != "" {
		if !trySend(ctx, ch, StreamEvent{Type: EventContentDelta, Content: delta.Content}) {
			return false
		}
	}
	for _, tc := range delta.ToolCalls {
		if tc.Function.Name != "" || tc.ID != "" {
			if !trySend(ctx, ch, StreamEvent{
				Type: EventToolCallBegin, ToolCallIndex: tc.Index,
				ToolCallID: tc.ID, ToolCallName: tc.Function.Name,
			}) {
				return false
			}
		}
		if tc.Function.Arguments != "" {
			if !trySend(ctx, ch, StreamEvent{
				Type: EventToolCallDelta, ToolCallIndex: tc.Index,
				ToolCallArgs: tc.Function.Arguments,
			}) {
				return false
			}
		}
	}
	return true
}

func trySend(ctx context.Context, ch chan<- StreamEvent, evt StreamEvent) bool {
	select {
	case ch <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

// --- message/tool conversion ---

func (a *openAIAdapter) toOpenAIMessages(messages []Message) []wireMessage {
	result := make([]wireMessage, len(messages))
	for i, m := range messages {
		msg := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		// The "name" key is not part of tool messages in many
		// OpenAI-compatible APIs.
		if m.Role == "tool" {
			msg.Name = ""
		}
		if m.Role == "assistant" && (a.forceReasoning || (a.includeReasoning && len(m.ToolCalls) > 0)) {
			reasoning := m.Reasoning
			msg.ReasoningContent = &reasoning
		}
		if len(m.ToolCalls) > 0 {
			msg.ToolCalls = make([]wireToolCall, len(m.ToolCalls))
			for j, tc := range m.ToolCalls {
				msg.ToolCalls[j] = wireToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: wireFunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
		}
		result[i] = msg
	}
	return result
}

func toOpenAITools(tools []Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	emptyParams := json.RawMessage(`{"type":"object","properties":{}}`)
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = emptyParams
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return result
}
