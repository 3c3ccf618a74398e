// Package mcp spawns external tool servers as child processes and speaks
// line-delimited JSON-RPC 2.0 to them over stdio, surfacing their tools in
// the local registry under a name prefix.
package mcp

import (
	"encoding/json"
	"strings"
)

// Tool is a remote tool definition returned by tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the result of tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams are the parameters for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// callToolResult is the loosely-shaped reply of tools/call. Content is
// kept raw because servers return a string, a list of typed fragments, or
// anything else.
type callToolResult struct {
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"isError,omitempty"`
}

// contentFragment is one entry of a list-shaped content field.
type contentFragment struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// normalizeContent flattens a tools/call reply into text: a string is used
// verbatim; a list of {type, text} fragments is joined by newline (non-text
// fragments are JSON-serialized); any other shape is JSON-serialized whole.
func normalizeContent(result json.RawMessage) string {
	var wrapped callToolResult
	if err := json.Unmarshal(result, &wrapped); err != nil || len(wrapped.Content) == 0 {
		return rawJSONString(result)
	}

	var s string
	if err := json.Unmarshal(wrapped.Content, &s); err == nil {
		return s
	}

	var fragments []json.RawMessage
	if err := json.Unmarshal(wrapped.Content, &fragments); err == nil {
		parts := make([]string, 0, len(fragments))
		for _, f := range fragments {
			var frag contentFragment
			if err := json.Unmarshal(f, &frag); err == nil && frag.Type == "text" {
				parts = append(parts, frag.Text)
			} else {
				parts = append(parts, rawJSONString(f))
			}
		}
		return strings.Join(parts, "\n")
	}

	return rawJSONString(wrapped.Content)
}

func rawJSONString(raw json.RawMessage) string {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(raw); err != nil {
		return string(raw)
	}
	return strings.TrimRight(buf.String(), "\n")
}
