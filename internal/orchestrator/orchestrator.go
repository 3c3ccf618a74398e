// Package orchestrator implements the agent turn state machine: it
// assembles prompts under compaction, drives the LLM (blocking or
// streaming), validates the tool-call protocol, gates side effects through
// the permission engine, executes tools (local or MCP-bridged), and
// guarantees the on-disk conversation is always replayable.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/waysongjiang/pyopencode/internal/delta"
	"github.com/waysongjiang/pyopencode/internal/eventlog"
	"github.com/waysongjiang/pyopencode/internal/permission"
	"github.com/waysongjiang/pyopencode/internal/promptbuilder"
	"github.com/waysongjiang/pyopencode/internal/provider"
	"github.com/waysongjiang/pyopencode/internal/session"
	"github.com/waysongjiang/pyopencode/internal/tools"
)

// ContinueSentinel as a user prompt means "append nothing; resume pending
// tool calls and continue the loop".
const ContinueSentinel = "/continue"

// AppContext carries everything one turn needs. There is no global state:
// per-turn overrides (e.g. a command's model) are applied to a local copy
// before the turn starts.
type AppContext struct {
	Cwd       string
	Provider  provider.Adapter
	Tools     *tools.Registry
	Gate      *permission.Gate
	Session   *session.Session
	Events    *eventlog.Log
	Policy    promptbuilder.Policy
	RulesText string

	// AgentPrompt is the active profile's system prompt fragment.
	AgentPrompt string

	// Outline supplies the current project symbol outline for the agent
	// injection; nil disables it.
	Outline func() string

	// Scratchpad mirrors the session's todo list for prompt recitation;
	// nil disables it.
	Scratchpad *tools.Scratchpad

	// Deltas groups this turn's file pre-images for undo; nil disables
	// recording.
	Deltas *delta.Tracker

	// Stream switches the LLM call to streaming mode; OnToken (optional)
	// receives each content token as it arrives.
	Stream  bool
	OnToken func(string)

	// Stdin/Stdout are the interactive channel used by the question tool
	// and permission prompts.
	Stdin  io.Reader
	Stdout io.Writer
}

// llmRetries and llmBackoff govern transient LLM transport failures.
const llmRetries = 3

func llmBackoff(attempt int) time.Duration {
	return time.Duration(float64(500*time.Millisecond) * float64(int(1)<<attempt))
}

// protocolViolation is the panic payload for bug-class invariant breaks.
// These are never swallowed into the conversation; RunTurn converts them
// into a fatal error.
type protocolViolation struct{ msg string }

// RunTurn executes one agent turn: optional resume of pending tool calls,
// optional user append, then the build-call-persist-execute loop until the
// model returns a final text or maxSteps is exhausted. On return the
// session file satisfies the message invariants, even on error.
func RunTurn(ctx context.Context, app *AppContext, userPrompt string, maxSteps int, resume bool) (answer string, err error) {
	defer func() {
		if r := recover(); r != nil {
			if pv, ok := r.(protocolViolation); ok {
				err = fmt.Errorf("protocol violation: %s", pv.msg)
				return
			}
			panic(r)
		}
	}()

	if maxSteps <= 0 {
		maxSteps = 25
	}

	sanitizeLoaded(app)

	if app.Deltas != nil {
		app.Deltas.SetSession(app.Session.ID)
		app.Deltas.BeginTurn(int64(len(app.Session.Messages)) + 1)
	}

	if resume {
		if err := resumePending(ctx, app); err != nil {
			return "", err
		}
	}

	if userPrompt != "" && userPrompt != ContinueSentinel {
		if err := app.Session.Append(provider.Message{Role: "user", Content: userPrompt}); err != nil {
			return "", err
		}
	}

	for step := 0; step < maxSteps; step++ {
		built := promptbuilder.Build(ctx, app.Provider, promptbuilder.Input{
			Cwd:         app.Cwd,
			Messages:    app.Session.Messages,
			Policy:      app.Policy,
			RulesText:   app.RulesText,
			AgentPrompt: app.AgentPrompt,
			Outline:     outline(app),
			Scratchpad:  scratchpad(app),
		})
		if built.NewSummary != nil {
			if err := app.Session.Append(*built.NewSummary); err != nil {
				return "", err
			}
		}

		turn, llmErr := callLLM(ctx, app, built.Messages)
		if llmErr != nil {
			errText := "LLM error: " + llmErr.Error()
			if err := app.Session.Append(provider.Message{Role: "assistant", Content: errText}); err != nil {
				return "", err
			}
			return errText, nil
		}

		if len(turn.ToolCalls) > 0 {
			calls := synthesizeIDs(turn.ToolCalls, app.Session.ID, step)
			if err := app.Session.Append(provider.Message{
				Role:      "assistant",
				Reasoning: turn.Reasoning,
				ToolCalls: calls,
			}); err != nil {
				return "", err
			}
			for _, call := range calls {
				if err := executeToolCall(ctx, app, call, false); err != nil {
					return "", err
				}
			}
			continue
		}

		if err := app.Session.Append(provider.Message{
			Role:      "assistant",
			Content:   turn.Text,
			Reasoning: turn.Reasoning,
		}); err != nil {
			return "", err
		}
		if turn.Text == "" {
			// The model produced only reasoning; ask again.
			emit(app, eventlog.TypeLLMEmptyResponse, nil)
			continue
		}
		return turn.Text, nil
	}

	if text := lastAssistant(app.Session.Messages); text != "" {
		return text, nil
	}
	return fmt.Sprintf("Reached max steps (%d) without a final answer.", maxSteps), nil
}

// sanitizeLoaded repairs a loaded session that carries orphan tool
// messages, persisting the repair before any new append.
func sanitizeLoaded(app *AppContext) {
	cleaned, dropped := session.Sanitize(app.Session.Messages)
	if dropped == 0 {
		return
	}
	if err := app.Session.Replace(cleaned); err != nil {
		log.Warn().Err(err).Str("session", app.Session.ID).Msg("orchestrator: failed to persist sanitized session")
		app.Session.Messages = cleaned
	}
	emit(app, eventlog.TypeSessionCleanedInvalidTool, map[string]interface{}{"count": dropped})
}

// resumePending executes tool calls persisted by a prior assistant whose
// replies were not all written before process exit. Resume is permitted
// only when nothing but tool replies follows that assistant.
func resumePending(ctx context.Context, app *AppContext) error {
	msgs := app.Session.Messages

	assistantIdx := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role == "user" {
			return nil
		}
		if m.Role == "assistant" && len(m.ToolCalls) > 0 {
			assistantIdx = i
			break
		}
	}
	if assistantIdx < 0 {
		return nil
	}

	answered := make(map[string]bool)
	for i := assistantIdx + 1; i < len(msgs); i++ {
		if msgs[i].Role != "tool" {
			emit(app, eventlog.TypeResumeAbortedNonToolAfterAsst, map[string]interface{}{
				"assistant_index": assistantIdx,
				"found_role":      msgs[i].Role,
			})
			return nil
		}
		answered[msgs[i].ToolCallID] = true
	}

	var pending []provider.ToolCall
	for _, tc := range msgs[assistantIdx].ToolCalls {
		if !answered[tc.ID] {
			pending = append(pending, tc)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	ids := make([]string, len(pending))
	for i, tc := range pending {
		ids[i] = tc.ID
	}
	emit(app, eventlog.TypeResumePendingTools, map[string]interface{}{"count": len(pending), "ids": ids})

	for _, call := range pending {
		if err := executeToolCall(ctx, app, call, true); err != nil {
			return err
		}
	}
	return nil
}

// callLLM performs one model call with retry/backoff on transport errors.
func callLLM(ctx context.Context, app *AppContext, messages []provider.Message) (provider.AssistantTurn, error) {
	providerTools := app.Tools.ProviderTools()

	var lastErr error
	for attempt := 0; attempt < llmRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(llmBackoff(attempt - 1)):
			case <-ctx.Done():
				return provider.AssistantTurn{}, ctx.Err()
			}
		}

		emit(app, eventlog.TypeLLMRequest, map[string]interface{}{
			"messages": len(messages),
			"tools":    len(providerTools),
			"attempt":  attempt,
			"stream":   app.Stream,
		})

		started := time.Now()
		var (
			turn provider.AssistantTurn
			err  error
		)
		if app.Stream {
			turn, err = streamLLM(ctx, app, messages, providerTools)
		} else {
			turn, err = app.Provider.Chat(ctx, messages, providerTools)
		}
		if err == nil {
			emit(app, eventlog.TypeLLMResponse, map[string]interface{}{
				"elapsed_ms":    time.Since(started).Milliseconds(),
				"tool_calls":    len(turn.ToolCalls),
				"text_chars":    len(turn.Text),
				"input_tokens":  turn.InputTokens,
				"output_tokens": turn.OutputTokens,
			})
			return turn, nil
		}

		lastErr = err
		emit(app, eventlog.TypeLLMError, map[string]interface{}{"attempt": attempt, "error": err.Error()})
		log.Warn().Err(err).Int("attempt", attempt).Msg("orchestrator: LLM call failed")
		if ctx.Err() != nil {
			return provider.AssistantTurn{}, ctx.Err()
		}
	}
	return provider.AssistantTurn{}, lastErr
}

// streamLLM folds the streaming event channel into one AssistantTurn,
// invoking OnToken for each content delta on the read path.
func streamLLM(ctx context.Context, app *AppContext, messages []provider.Message, providerTools []provider.Tool) (provider.AssistantTurn, error) {
	ch, err := app.Provider.ChatStream(ctx, messages, providerTools)
	if err != nil {
		return provider.AssistantTurn{}, err
	}

	var turn provider.AssistantTurn
	type partial struct {
		id, name, args string
	}
	byIndex := make(map[int]*partial)
	var order []int

	for evt := range ch {
		switch evt.Type {
		case provider.EventContentDelta:
			turn.Text += evt.Content
			if app.OnToken != nil {
				app.OnToken(evt.Content)
			}
		case provider.EventReasoningDelta:
			turn.Reasoning += evt.Content
		case provider.EventToolCallBegin:
			p, ok := byIndex[evt.ToolCallIndex]
			if !ok {
				p = &partial{}
				byIndex[evt.ToolCallIndex] = p
				order = append(order, evt.ToolCallIndex)
			}
			if evt.ToolCallID != "" {
				p.id = evt.ToolCallID
			}
			if evt.ToolCallName != "" {
				p.name = evt.ToolCallName
			}
		case provider.EventToolCallDelta:
			if p, ok := byIndex[evt.ToolCallIndex]; ok {
				p.args += evt.ToolCallArgs
			}
		case provider.EventUsage:
			if evt.InputTokens > turn.InputTokens {
				turn.InputTokens = evt.InputTokens
			}
			if evt.OutputTokens > turn.OutputTokens {
				turn.OutputTokens = evt.OutputTokens
			}
		case provider.EventError:
			return provider.AssistantTurn{}, evt.Err
		case provider.EventDone:
		}
	}

	for _, idx := range order {
		p := byIndex[idx]
		args := json.RawMessage(p.args)
		if !json.Valid(args) || len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		turn.ToolCalls = append(turn.ToolCalls, provider.ToolCall{ID: p.id, Name: p.name, Arguments: args})
	}
	return turn, nil
}

// synthesizeIDs fills in any missing tool-call ids so the id join between
// request and reply always holds.
func synthesizeIDs(calls []provider.ToolCall, sessionID string, step int) []provider.ToolCall {
	out := make([]provider.ToolCall, len(calls))
	copy(out, calls)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = fmt.Sprintf("tc_%s_%d_%d_%s", sessionID, step, i, uuid.NewString()[:8])
		}
	}
	return out
}

// executeToolCall resolves, permission-gates, and runs one tool call, then
// appends its tool-role reply. Missing and denied tools still get a
// synthetic reply so the protocol stays satisfied.
func executeToolCall(ctx context.Context, app *AppContext, call provider.ToolCall, resumed bool) error {
	tool, ok := app.Tools.Get(call.Name)
	if !ok {
		emit(app, eventlog.TypeToolMissing, map[string]interface{}{"tool": call.Name})
		return appendToolReply(app, call.ID, fmt.Sprintf("Tool %s not found.", call.Name))
	}

	spec := tool.Spec()
	preview := argsPreview(call.Arguments)
	if !app.Gate.Check(spec.Class, spec.Name, preview) {
		emit(app, eventlog.TypeToolDenied, map[string]interface{}{"tool": spec.Name, "class": spec.Class})
		return appendToolReply(app, call.ID, fmt.Sprintf("Tool %s was denied by user permissions.", spec.Name))
	}

	emit(app, eventlog.TypeToolCall, map[string]interface{}{"tool": spec.Name, "args": preview, "resumed": resumed})

	started := time.Now()
	result, execErr := safeExecute(ctx, app, tool, call)
	elapsed := time.Since(started).Milliseconds()

	resultType := eventlog.TypeToolResult
	if resumed {
		resultType = eventlog.TypeResumeToolResult
	}

	if execErr != nil {
		emit(app, resultType, map[string]interface{}{"tool": spec.Name, "elapsed_ms": elapsed, "error": execErr.Error()})
		return appendToolReply(app, call.ID, fmt.Sprintf("Error: %s", execErr.Error()))
	}

	result = promptbuilder.TruncateText(result, app.Policy.MaxToolResultChars)
	emit(app, resultType, map[string]interface{}{"tool": spec.Name, "elapsed_ms": elapsed, "chars": len(result)})
	return appendToolReply(app, call.ID, result)
}

// safeExecute converts a tool panic into an error reply instead of
// crashing the turn.
func safeExecute(ctx context.Context, app *AppContext, tool tools.Tool, call provider.ToolCall) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()
	return tool.Execute(ctx, tools.Context{
		Cwd:       app.Cwd,
		SessionID: app.Session.ID,
		Stdin:     app.Stdin,
		Stdout:    app.Stdout,
	}, call.Arguments)
}

// appendToolReply appends a tool-role message after asserting the protocol
// invariant: the assistant heading the current tool-reply block must have
// requested this id. A violation here is a bug in the orchestrator, never
// swallowed.
func appendToolReply(app *AppContext, toolCallID, content string) error {
	if toolCallID == "" {
		panic(protocolViolation{msg: "tool reply without a tool_call_id"})
	}

	msgs := app.Session.Messages
	i := len(msgs) - 1
	for i >= 0 && msgs[i].Role == "tool" {
		i--
	}
	if i < 0 || msgs[i].Role != "assistant" || !containsCall(msgs[i].ToolCalls, toolCallID) {
		panic(protocolViolation{msg: fmt.Sprintf("tool reply %s has no requesting assistant at the session tail", toolCallID)})
	}

	return app.Session.Append(provider.Message{Role: "tool", ToolCallID: toolCallID, Content: content})
}

func containsCall(calls []provider.ToolCall, id string) bool {
	for _, tc := range calls {
		if tc.ID == id {
			return true
		}
	}
	return false
}

func lastAssistant(msgs []provider.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" && msgs[i].Content != "" {
			return msgs[i].Content
		}
	}
	return ""
}

func argsPreview(args provider.Value) string {
	s := string(args)
	if len(s) > 2000 {
		s = s[:2000] + "\n... (truncated)"
	}
	return s
}

func outline(app *AppContext) string {
	if app.Outline == nil {
		return ""
	}
	return app.Outline()
}

func scratchpad(app *AppContext) string {
	if app.Scratchpad == nil {
		return ""
	}
	return app.Scratchpad.Content()
}

func emit(app *AppContext, eventType string, data interface{}) {
	if app.Events == nil {
		return
	}
	app.Events.Emit(time.Now().Unix(), eventType, data)
}
