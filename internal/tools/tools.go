// Package tools implements the built-in tool registry: named callable
// effects (list, glob, grep, read, write, edit, multiedit, patch, bash,
// webfetch, todoread, todowrite, skill, question, lsp, websearch), each an
// instance of the Tool interface registered by name.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/waysongjiang/pyopencode/internal/provider"
)

// Value is the single dynamic value type used for tool arguments, matching
// provider.Value (a json.RawMessage). Tools validate the keys they care
// about locally against their own schema rather than each tool generating
// its own argument type.
type Value = provider.Value

// Context carries the per-call environment a tool executes in: the
// resolved project root, the active session id (for todoread/todowrite and
// the delta tracker's undo scoping), and the interactive stdio the
// question tool and permission gate prompts read/write.
type Context struct {
	Cwd       string
	SessionID string
	Stdin     io.Reader
	Stdout    io.Writer
}

// ToolSpec is the wire-visible description of a tool: name, human
// description, JSON-schema parameters, and the permission class that gates
// invocation.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Class       string // read | edit | bash | mcp
}

// Tool is the contract every built-in and MCP-bridged tool satisfies.
type Tool interface {
	Spec() ToolSpec
	Execute(ctx context.Context, tc Context, args Value) (string, error)
}

// Registry is a name-keyed, read-only-after-startup map of tools. Lookup
// returns a bool rather than an error because a missing tool is an
// expected case: models hallucinate tool names.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its own spec name. Registering the same name
// twice replaces the earlier tool and preserves its position in Specs().
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Spec().Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get resolves a tool by name. ok is false when the model named a tool
// that isn't registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns every registered ToolSpec in registration order.
func (r *Registry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Spec())
	}
	return out
}

// ProviderTools converts every registered spec to the wire form the LLM
// adapter sends as the "tools" field of a chat/completions request.
func (r *Registry) ProviderTools() []provider.Tool {
	specs := r.Specs()
	out := make([]provider.Tool, len(specs))
	for i, s := range specs {
		out[i] = provider.Tool{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
	}
	return out
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// unmarshalArgs decodes a tool's JSON arguments into dst, wrapping any
// error with the tool name so ExecuteTools can surface a readable reply.
func unmarshalArgs(name string, args Value, dst interface{}) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return fmt.Errorf("%s: invalid arguments: %w", name, err)
	}
	return nil
}
