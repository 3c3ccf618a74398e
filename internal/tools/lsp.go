package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/waysongjiang/pyopencode/internal/lsp"
	"github.com/waysongjiang/pyopencode/internal/treesitter"
)

// LSPTool serves local code navigation (definition, references, hover,
// symbols, diagnostics) on a structured language target. Diagnostics are
// served by a real language server through the LSP manager where one is
// configured for the file type; definition/references/symbols fall back to
// the tree-sitter project index when no server is available (or always,
// for operations the manager doesn't expose a generic request API for).
type LSPTool struct {
	Manager *lsp.Manager
	Index   *treesitter.Index
}

type lspArgs struct {
	Operation string `json:"operation"` // definition | references | hover | symbols | diagnostics
	Path      string `json:"path"`
	Symbol    string `json:"symbol,omitempty"`
	Line      int    `json:"line,omitempty"`
}

const defaultDiagnosticsTimeout = 5 * time.Second

func (t *LSPTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "lsp",
		Description: "Local code navigation: definition, references, hover, symbols, diagnostics on a file.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"operation": {"type": "string", "enum": ["definition", "references", "hover", "symbols", "diagnostics"]},
				"path":      {"type": "string", "description": "File to operate on, relative to the project root."},
				"symbol":    {"type": "string", "description": "Symbol name, for definition/references/hover."},
				"line":      {"type": "integer", "description": "1-based line hint, for definition/references/hover."}
			},
			"required": ["operation", "path"]
		}`),
		Class: "read",
	}
}

func (t *LSPTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a lspArgs
	if err := unmarshalArgs("lsp", args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		return "", fmt.Errorf("lsp: path is required")
	}
	abs, err := resolvePath(tc.Cwd, a.Path)
	if err != nil {
		return "", err
	}

	switch a.Operation {
	case "diagnostics":
		return t.diagnostics(ctx, a.Path, abs)
	case "symbols":
		return t.symbols(a.Path)
	case "definition":
		return t.definition(a.Path, a.Symbol)
	case "references":
		return t.references(a.Path, a.Symbol)
	case "hover":
		return t.hover(a.Path, a.Symbol)
	default:
		return "", fmt.Errorf("lsp: unknown operation %q", a.Operation)
	}
}

func (t *LSPTool) diagnostics(ctx context.Context, relPath, abs string) (string, error) {
	if t.Manager == nil {
		return "(no language server configured)", nil
	}
	diags := t.Manager.NotifyAndWait(ctx, abs, defaultDiagnosticsTimeout)
	out := lsp.FormatDiagnostics(relPath, diags)
	if out == "" {
		return "(no diagnostics)", nil
	}
	return out, nil
}

// symbols lists the tree-sitter symbol outline for a single file.
func (t *LSPTool) symbols(relPath string) (string, error) {
	if t.Index == nil {
		return "", fmt.Errorf("lsp: symbol index unavailable")
	}
	syms := t.Index.Symbols(relPath)
	if len(syms) == 0 {
		return "(no symbols)", nil
	}
	return treesitter.FormatOutline(map[string][]treesitter.Symbol{relPath: syms}), nil
}

// definition finds the declaration site of a named symbol via the
// tree-sitter index, searching the named file first then the whole
// project. This is the fallback path when no language server
// exposes a generic "go to definition" request.
func (t *LSPTool) definition(relPath, symbolName string) (string, error) {
	if symbolName == "" {
		return "", fmt.Errorf("lsp: symbol is required for definition")
	}
	if t.Index == nil {
		return "", fmt.Errorf("lsp: symbol index unavailable")
	}
	if match, file := findSymbol(t.Index, relPath, symbolName); match != nil {
		return fmt.Sprintf("%s:%d: %s %s", file, match.StartLine, match.Kind, match.Signature), nil
	}
	return "(not found)", nil
}

// references finds every occurrence of a symbol name in the indexed
// project's parsed symbol list. This reports declaration sites only
// (tree-sitter's structural extraction doesn't resolve call sites); a real
// language server's "references" would include call sites too.
func (t *LSPTool) references(relPath, symbolName string) (string, error) {
	if symbolName == "" {
		return "", fmt.Errorf("lsp: symbol is required for references")
	}
	if t.Index == nil {
		return "", fmt.Errorf("lsp: symbol index unavailable")
	}
	var b strings.Builder
	count := 0
	for _, file := range t.Index.Files() {
		for _, sym := range t.Index.Symbols(file) {
			if symbolMatches(sym, symbolName) {
				fmt.Fprintf(&b, "%s:%d: %s %s\n", file, sym.StartLine, sym.Kind, sym.Signature)
				count++
			}
		}
	}
	if count == 0 {
		return "(not found)", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (t *LSPTool) hover(relPath, symbolName string) (string, error) {
	if symbolName == "" {
		return "", fmt.Errorf("lsp: symbol is required for hover")
	}
	if t.Index == nil {
		return "", fmt.Errorf("lsp: symbol index unavailable")
	}
	if match, file := findSymbol(t.Index, relPath, symbolName); match != nil {
		return fmt.Sprintf("%s (%s)\n%s\nlines %d-%d in %s", match.Name, match.Kind, match.Signature, match.StartLine, match.EndLine, file), nil
	}
	return "(not found)", nil
}

func symbolMatches(s treesitter.Symbol, name string) bool {
	if s.Name == name {
		return true
	}
	for _, c := range s.Children {
		if symbolMatches(c, name) {
			return true
		}
	}
	return false
}

// findSymbol looks for name in relPath's own symbols first, then scans the
// whole index. Returns the first match and the file it was found in.
func findSymbol(idx *treesitter.Index, relPath, name string) (*treesitter.Symbol, string) {
	if sym := searchFile(idx.Symbols(relPath), name); sym != nil {
		return sym, relPath
	}
	for _, file := range idx.Files() {
		if file == relPath {
			continue
		}
		if sym := searchFile(idx.Symbols(file), name); sym != nil {
			return sym, file
		}
	}
	return nil, ""
}

func searchFile(syms []treesitter.Symbol, name string) *treesitter.Symbol {
	for i := range syms {
		if syms[i].Name == name {
			return &syms[i]
		}
		if found := searchFile(syms[i].Children, name); found != nil {
			return found
		}
	}
	return nil
}
