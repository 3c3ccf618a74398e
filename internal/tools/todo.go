package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Scratchpad holds the agent's current plan/notes in memory so it can be
// injected at the tail of the prompt without a disk round-trip
// on every turn. It mirrors, but does not replace, the on-disk per-session
// todo list: todoread/todowrite persist durably so replay and process
// restarts see the same list, while the scratchpad stays cheap to read on
// every prompt build.
type Scratchpad struct {
	mu      sync.RWMutex
	content string
}

// Content returns the current scratchpad text.
func (s *Scratchpad) Content() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content
}

func (s *Scratchpad) set(content string) {
	s.mu.Lock()
	s.content = content
	s.mu.Unlock()
}

// TodoItem is a single entry in a session's todo list.
type TodoItem struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status string `json:"status"` // pending | in_progress | completed
}

// TodoStore persists one JSON todo list per session under a user-data
// directory, keyed by session id.
type TodoStore struct {
	mu  sync.Mutex
	dir string
}

func NewTodoStore(dir string) *TodoStore {
	return &TodoStore{dir: dir}
}

func (s *TodoStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".todos.json")
}

func (s *TodoStore) load(sessionID string) ([]TodoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []TodoItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *TodoStore) save(sessionID string, items []TodoItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(sessionID), raw, 0o644)
}

// --- todoread ---

// TodoReadTool returns the current session's todo list.
type TodoReadTool struct {
	Store *TodoStore
}

func (TodoReadTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "todoread",
		Description: "Read the current session's todo list.",
		Parameters:  rawSchema(`{"type": "object", "properties": {}}`),
		Class:       "read",
	}
}

func (t TodoReadTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	items, err := t.Store.load(tc.SessionID)
	if err != nil {
		return "", fmt.Errorf("todoread: %w", err)
	}
	if len(items) == 0 {
		return "(no todos)", nil
	}
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("todoread: %w", err)
	}
	return string(raw), nil
}

// --- todowrite ---

// TodoWriteTool replaces the session's todo list and refreshes the
// in-memory scratchpad mirror with a flattened view of it.
type TodoWriteTool struct {
	Store      *TodoStore
	Scratchpad *Scratchpad
}

type todoWriteArgs struct {
	Items []TodoItem `json:"items"`
}

func (TodoWriteTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "todowrite",
		Description: "Replace the current session's todo list. Use this to track goals, progress, and next steps for tasks with 3+ steps.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"items": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"id":     {"type": "string"},
							"text":   {"type": "string"},
							"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]}
						},
						"required": ["text", "status"]
					}
				}
			},
			"required": ["items"]
		}`),
		Class: "edit",
	}
}

func (t TodoWriteTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a todoWriteArgs
	if err := unmarshalArgs("todowrite", args, &a); err != nil {
		return "", err
	}
	if err := t.Store.save(tc.SessionID, a.Items); err != nil {
		return "", fmt.Errorf("todowrite: %w", err)
	}
	if t.Scratchpad != nil {
		t.Scratchpad.set(formatScratchpad(a.Items))
	}
	return fmt.Sprintf("saved %d todo item(s)", len(a.Items)), nil
}

func formatScratchpad(items []TodoItem) string {
	if len(items) == 0 {
		return ""
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	return string(raw)
}
