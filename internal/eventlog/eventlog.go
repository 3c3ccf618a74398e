// Package eventlog implements the per-session structured observability
// trail: a parallel line-delimited JSON file, best-effort only. A write
// failure here must never abort a turn.
package eventlog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Known event types emitted by the turn orchestrator.
const (
	TypeLLMRequest                    = "llm.request"
	TypeLLMResponse                   = "llm.response"
	TypeLLMError                      = "llm.error"
	TypeLLMEmptyResponse              = "llm.empty_response"
	TypeToolCall                      = "tool.call"
	TypeToolResult                    = "tool.result"
	TypeToolDenied                    = "tool.denied"
	TypeToolMissing                   = "tool.missing"
	TypeResumePendingTools            = "resume.pending_tools"
	TypeResumeToolResult              = "resume.tool_result"
	TypeResumeAbortedNonToolAfterAsst = "resume.aborted_non_tool_after_assistant"
	TypeSessionCleanedInvalidTool     = "session.cleaned_invalid_tool_messages"
)

// Event is one line of the event log.
type Event struct {
	Timestamp int64       `json:"ts"`
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
}

// Log appends events for a single session-id to its own file.
type Log struct {
	path string
	mu   sync.Mutex
}

func Open(dir, sessionID string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		// Even directory creation failure is swallowed at the call site via
		// Emit's no-op-on-error contract; returning the error here lets the
		// caller decide whether a missing event dir is worth logging once.
		return nil, err
	}
	return &Log{path: filepath.Join(dir, sessionID+".events.jsonl")}, nil
}

// Emit writes one event, never returning an error to the caller: a failed
// write is logged at warn level and otherwise ignored. Observability must
// never abort a turn.
func (l *Log) Emit(ts int64, eventType string, data interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(Event{Timestamp: ts, Type: eventType, Data: data})
	if err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("eventlog: marshal failed")
		return
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Msg("eventlog: open failed")
		return
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		log.Warn().Err(err).Msg("eventlog: write failed")
	}
}

// Tail reads up to the last n events from the log file (n<=0 means all).
func Tail(path string, n int) ([]Event, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var events []Event
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var e Event
		if err := dec.Decode(&e); err != nil {
			break
		}
		events = append(events, e)
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}
