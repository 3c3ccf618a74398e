package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/waysongjiang/pyopencode/internal/delta"
	"github.com/waysongjiang/pyopencode/internal/filesearch"
	"github.com/waysongjiang/pyopencode/internal/hashline"
)

// --- list ---

// ListTool enumerates a directory, optionally recursively, bounded to a
// maximum entry count.
type ListTool struct{}

type listArgs struct {
	Path      string `json:"path,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
	MaxItems  int    `json:"max_items,omitempty"`
}

const defaultMaxListItems = 500

func (ListTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "list",
		Description: "Enumerate a directory under the project root, optionally recursively. Bounded to a maximum number of entries.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"path":      {"type": "string", "description": "Directory to list, relative to the project root. Defaults to the root itself."},
				"recursive": {"type": "boolean", "description": "Recurse into subdirectories. Default false."},
				"max_items": {"type": "integer", "description": "Maximum number of entries to return. Default 500."}
			}
		}`),
		Class: "read",
	}
}

func (ListTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a listArgs
	if err := unmarshalArgs("list", args, &a); err != nil {
		return "", err
	}
	maxItems := a.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxListItems
	}
	root, err := resolvePath(tc.Cwd, a.Path)
	if err != nil {
		return "", err
	}

	var entries []string
	if a.Recursive {
		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if path == root {
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}
			if d.IsDir() && d.Name() == ".git" {
				return filepath.SkipDir
			}
			entries = append(entries, relPathDisplay(rel, d.IsDir()))
			if len(entries) >= maxItems {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && err != filepath.SkipAll {
			return "", fmt.Errorf("list: %w", err)
		}
	} else {
		dirEntries, err := os.ReadDir(root)
		if err != nil {
			return "", fmt.Errorf("list: %w", err)
		}
		for _, d := range dirEntries {
			entries = append(entries, relPathDisplay(d.Name(), d.IsDir()))
			if len(entries) >= maxItems {
				break
			}
		}
	}
	sort.Strings(entries)
	if len(entries) == 0 {
		return "(empty)", nil
	}
	return strings.Join(entries, "\n"), nil
}

func relPathDisplay(rel string, isDir bool) string {
	if isDir {
		return rel + "/"
	}
	return rel
}

// --- glob ---

// GlobTool matches a glob pattern relative to cwd, supporting "**" for
// arbitrary directory depth, bounded to a maximum result count.
type GlobTool struct{}

type globArgs struct {
	Pattern  string `json:"pattern"`
	MaxItems int    `json:"max_items,omitempty"`
}

func (GlobTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "glob",
		Description: "Find files under the project root matching a glob pattern (supports ** for recursive matching). Bounded to a maximum number of results.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"pattern":   {"type": "string", "description": "Glob pattern, e.g. \"**/*.go\" or \"src/*.json\"."},
				"max_items": {"type": "integer", "description": "Maximum number of matches to return. Default 500."}
			},
			"required": ["pattern"]
		}`),
		Class: "read",
	}
}

func (GlobTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a globArgs
	if err := unmarshalArgs("glob", args, &a); err != nil {
		return "", err
	}
	if a.Pattern == "" {
		return "", fmt.Errorf("glob: pattern is required")
	}
	maxItems := a.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxListItems
	}

	root, err := filepath.Abs(tc.Cwd)
	if err != nil {
		return "", err
	}
	matcher := globToRegexp(a.Pattern)

	var matches []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if matcher.MatchString(rel) {
			matches = append(matches, rel)
			if len(matches) >= maxItems {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return "", fmt.Errorf("glob: %w", err)
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return "(no matches)", nil
	}
	return strings.Join(matches, "\n"), nil
}

// globToRegexp converts a shell-style glob (with "**" meaning "any number
// of path segments") into an anchored regexp. "*" matches within a single
// segment, "?" matches a single character.
func globToRegexp(pattern string) *regexp.Regexp {
	pattern = filepath.ToSlash(pattern)
	var b strings.Builder
	b.WriteString("^")
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch {
		case strings.HasPrefix(pattern[i:], "**/"):
			b.WriteString("(.*/)?")
			i += 3
		case strings.HasPrefix(pattern[i:], "**"):
			b.WriteString(".*")
			i += 2
		case c == '*':
			b.WriteString("[^/]*")
			i++
		case c == '?':
			b.WriteString("[^/]")
			i++
		case strings.ContainsRune(`.+()|[]{}^$\`, rune(c)):
			b.WriteByte('\\')
			b.WriteByte(c)
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		// Fall back to a pattern that matches nothing rather than panicking
		// on a malformed glob from the model.
		return regexp.MustCompile(`$^`)
	}
	return re
}

// --- grep ---

// GrepTool searches file contents for a regex or literal substring,
// bounded to a maximum number of matches.
type GrepTool struct{}

type grepArgs struct {
	Pattern       string `json:"pattern"`
	Path          string `json:"path,omitempty"`
	Literal       bool   `json:"literal,omitempty"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
	MaxResults    int    `json:"max_results,omitempty"`
}

func (GrepTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "grep",
		Description: "Search file contents under a path for a regex (or literal substring) pattern. Bounded to a maximum number of matches.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"pattern":        {"type": "string", "description": "Regex pattern, or a literal substring when literal=true."},
				"path":           {"type": "string", "description": "Directory to search, relative to the project root. Defaults to the root."},
				"literal":        {"type": "boolean", "description": "Treat pattern as a literal substring instead of a regex."},
				"case_sensitive": {"type": "boolean", "description": "Match case exactly. Default false."},
				"max_results":    {"type": "integer", "description": "Maximum number of matches to return. Default 200."}
			},
			"required": ["pattern"]
		}`),
		Class: "read",
	}
}

const defaultMaxGrepResults = 200

func (GrepTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a grepArgs
	if err := unmarshalArgs("grep", args, &a); err != nil {
		return "", err
	}
	if a.Pattern == "" {
		return "", fmt.Errorf("grep: pattern is required")
	}
	root, err := resolvePath(tc.Cwd, a.Path)
	if err != nil {
		return "", err
	}
	maxResults := a.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxGrepResults
	}

	pattern := a.Pattern
	if a.Literal {
		pattern = regexp.QuoteMeta(pattern)
	}
	if !a.CaseSensitive {
		pattern = "(?i)" + pattern
	}

	matches, err := filesearch.Grep(ctx, root, pattern, maxResults)
	if err != nil {
		return "", fmt.Errorf("grep: %w", err)
	}
	if len(matches) == 0 {
		return "(no matches)", nil
	}
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "%s:%d: %s\n", m.Path, m.Line, m.Text)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// --- read ---

// ReadTool reads a file, optionally restricted to a 1-based inclusive line
// range, bounded to a maximum number of characters.
type ReadTool struct{}

type readArgs struct {
	Path     string `json:"path"`
	Start    int    `json:"start,omitempty"`
	End      int    `json:"end,omitempty"`
	MaxChars int    `json:"max_chars,omitempty"`
	Annotate bool   `json:"annotate,omitempty"`
}

const defaultMaxReadChars = 50000

func (ReadTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "read",
		Description: "Read a file, optionally restricted to a 1-based inclusive line range. Bounded to a maximum number of characters.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"path":      {"type": "string", "description": "Path to the file, relative to the project root."},
				"start":     {"type": "integer", "description": "Optional 1-based inclusive start line."},
				"end":       {"type": "integer", "description": "Optional 1-based inclusive end line."},
				"max_chars": {"type": "integer", "description": "Maximum characters to return. Default 50000."},
				"annotate":  {"type": "boolean", "description": "Tag each returned line as linenum:hash|content so a later edit can be checked against the hash you last saw."}
			},
			"required": ["path"]
		}`),
		Class: "read",
	}
}

func (ReadTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a readArgs
	if err := unmarshalArgs("read", args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		return "", fmt.Errorf("read: path is required")
	}
	abs, err := resolvePath(tc.Cwd, a.Path)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	content := string(raw)
	lines := strings.Split(content, "\n")

	selected, startLine, err := selectLineRange(lines, a.Start, a.End)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}

	out := selected
	if a.Annotate {
		out = hashline.FormatTagged(hashline.TagLines(selected, startLine))
	}

	maxChars := a.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxReadChars
	}
	return truncateHeadTail(out, maxChars), nil
}

// selectLineRange returns the substring of lines [start,end] (1-based,
// inclusive) joined by "\n", and the resolved start line. start<=0 means
// "from the beginning"; end<=0 means "through the end".
func selectLineRange(lines []string, start, end int) (string, int, error) {
	if start <= 0 && end <= 0 {
		return strings.Join(lines, "\n"), 1, nil
	}
	if start <= 0 {
		start = 1
	}
	if start < 1 || start > len(lines) {
		return "", 0, fmt.Errorf("start line %d out of range (file has %d lines)", start, len(lines))
	}
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return "", 0, fmt.Errorf("start line %d is after end line %d", start, end)
	}
	return strings.Join(lines[start-1:end], "\n"), start, nil
}

// truncateHeadTail trims s to maxChars, keeping a head and tail portion
// around a truncation marker. Errors usually live at the tail of long
// output, so both ends are worth keeping.
func truncateHeadTail(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	const marker = "\n\n...[truncated]...\n\n"
	half := (maxChars - len([]rune(marker))) / 2
	if half < 0 {
		half = 0
	}
	return string(runes[:half]) + marker + string(runes[len(runes)-half:])
}

// --- write ---

// WriteTool overwrites or creates a file with the given content, optionally
// creating parent directories.
type WriteTool struct {
	Deltas *delta.Tracker
	Notify *FileChangeNotifier
}

type writeArgs struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	MakeDirs  bool   `json:"make_dirs,omitempty"`
}

func (WriteTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "write",
		Description: "Overwrite or create a file with the given content.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"path":      {"type": "string", "description": "Path to the file, relative to the project root."},
				"content":   {"type": "string", "description": "Full file content."},
				"make_dirs": {"type": "boolean", "description": "Create parent directories if they don't exist."}
			},
			"required": ["path", "content"]
		}`),
		Class: "edit",
	}
}

func (t WriteTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a writeArgs
	if err := unmarshalArgs("write", args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		return "", fmt.Errorf("write: path is required")
	}
	abs, err := resolvePath(tc.Cwd, a.Path)
	if err != nil {
		return "", err
	}
	if a.MakeDirs {
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return "", fmt.Errorf("write: make_dirs: %w", err)
		}
	}

	before, readErr := os.ReadFile(abs)

	if err := os.WriteFile(abs, []byte(a.Content), 0o644); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	if t.Deltas != nil {
		if readErr == nil {
			t.Deltas.RecordModify(abs, before)
		} else {
			t.Deltas.RecordCreate(abs)
		}
	}
	t.Notify.changed(ctx, abs)
	return fmt.Sprintf("wrote %s (%d bytes)", a.Path, len(a.Content)), nil
}

func rawSchema(s string) []byte {
	return []byte(s)
}
