// Package treesitter extracts a structural symbol map from project source
// via tree-sitter. The map feeds the prompt builder's project outline, the
// lsp tool's navigation fallback, and is refreshed by the write-path
// tools' change notifier.
package treesitter

// SymbolKind labels what a Symbol declares. The string form is what the
// outline and the lsp tool print.
type SymbolKind string

const (
	KindPackage   SymbolKind = "pkg"
	KindImport    SymbolKind = "import"
	KindFunction  SymbolKind = "func"
	KindMethod    SymbolKind = "method"
	KindType      SymbolKind = "type"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindConst     SymbolKind = "const"
	KindVar       SymbolKind = "var"
)

// Symbol is one extracted declaration. Struct fields and interface
// methods hang off their parent as Children.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	Signature string // e.g. "func (s *Shell) Exec(ctx context.Context, command string)"
	StartLine int    // 1-based
	EndLine   int    // 1-based
	Receiver  string // method receiver type; empty otherwise
	Children  []Symbol
}
