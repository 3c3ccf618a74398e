package treesitter

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

func grammarFor(path string) *sitter.Language {
	if strings.ToLower(filepath.Ext(path)) == ".go" {
		return golang.GetLanguage()
	}
	return nil
}

// Supported reports whether a grammar is available for the file.
func Supported(path string) bool {
	return grammarFor(path) != nil
}

// ParseFile reads and parses one file into its top-level symbols.
func ParseFile(path string) ([]Symbol, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSource(path, src)
}

// ParseSource parses source bytes into top-level symbols. An unsupported
// file yields no symbols and no error; the index just skips it.
func ParseSource(path string, src []byte) ([]Symbol, error) {
	lang := grammarFor(path)
	if lang == nil {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	// Node type names below come from the tree-sitter Go grammar.
	var syms []Symbol
	root := tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		switch node.Type() {
		case "package_clause":
			// The package name is a named child, not a field.
			if name := node.NamedChild(0); name != nil && name.Type() == "package_identifier" {
				syms = append(syms, spanSymbol(node, name.Content(src), KindPackage))
			}
		case "import_declaration":
			syms = append(syms, spanSymbol(node, strings.TrimSpace(node.Content(src)), KindImport))
		case "function_declaration":
			syms = append(syms, callableSymbol(node, src, nil))
		case "method_declaration":
			syms = append(syms, callableSymbol(node, src, node.ChildByFieldName("receiver")))
		case "type_declaration":
			syms = append(syms, typeSymbols(node, src)...)
		case "const_declaration":
			syms = append(syms, valueSymbols(node, src, "const_spec", KindConst)...)
		case "var_declaration":
			syms = append(syms, valueSymbols(node, src, "var_spec", KindVar)...)
		}
	}
	return syms, nil
}

func spanSymbol(node *sitter.Node, name string, kind SymbolKind) Symbol {
	return Symbol{
		Name:      name,
		Kind:      kind,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
	}
}

// callableSymbol builds the symbol for a func or method declaration; a
// non-nil receiver node makes it a method.
func callableSymbol(node *sitter.Node, src []byte, receiver *sitter.Node) Symbol {
	sym := spanSymbol(node, "", KindFunction)
	if name := node.ChildByFieldName("name"); name != nil {
		sym.Name = name.Content(src)
	}

	var sig strings.Builder
	sig.WriteString("func ")
	if receiver != nil {
		sym.Kind = KindMethod
		sym.Receiver = receiverType(receiver, src)
		sig.WriteString(receiver.Content(src))
		sig.WriteByte(' ')
	}
	sig.WriteString(sym.Name)
	if params := node.ChildByFieldName("parameters"); params != nil {
		sig.WriteString(params.Content(src))
	}
	if result := node.ChildByFieldName("result"); result != nil {
		sig.WriteByte(' ')
		sig.WriteString(result.Content(src))
	}
	sym.Signature = sig.String()
	return sym
}

// receiverType digs the receiver's type out of its parameter list, so
// "(s *Shell)" yields "*Shell".
func receiverType(receiver *sitter.Node, src []byte) string {
	for i := 0; i < int(receiver.ChildCount()); i++ {
		child := receiver.Child(i)
		if child.Type() == "parameter_declaration" {
			if tn := child.ChildByFieldName("type"); tn != nil {
				return tn.Content(src)
			}
		}
	}
	return ""
}

// typeSymbols expands one type declaration, which may carry several specs
// ("type ( A struct{...}; B = C )"). Struct fields and interface methods
// become children of their type symbol.
func typeSymbols(node *sitter.Node, src []byte) []Symbol {
	var syms []Symbol
	for i := 0; i < int(node.ChildCount()); i++ {
		spec := node.Child(i)
		if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
			continue
		}

		sym := spanSymbol(spec, "", KindType)
		if name := spec.ChildByFieldName("name"); name != nil {
			sym.Name = name.Content(src)
		}
		if tn := spec.ChildByFieldName("type"); tn != nil {
			switch tn.Type() {
			case "struct_type":
				sym.Kind = KindStruct
				sym.Children = structFields(tn, src)
			case "interface_type":
				sym.Kind = KindInterface
				sym.Children = interfaceMethods(tn, src)
			}
			sym.Signature = "type " + sym.Name + " " + tn.Type()
		}
		syms = append(syms, sym)
	}
	return syms
}

func structFields(node *sitter.Node, src []byte) []Symbol {
	body := node.ChildByFieldName("body")
	if body == nil {
		// Older grammar revisions expose the field list as a plain child.
		for i := 0; i < int(node.ChildCount()); i++ {
			if c := node.Child(i); c.Type() == "field_declaration_list" {
				body = c
				break
			}
		}
	}
	if body == nil {
		return nil
	}

	var fields []Symbol
	for i := 0; i < int(body.ChildCount()); i++ {
		decl := body.Child(i)
		if decl.Type() != "field_declaration" {
			continue
		}
		name := decl.ChildByFieldName("name")
		if name == nil {
			continue
		}
		field := spanSymbol(decl, name.Content(src), KindVar)
		if tn := decl.ChildByFieldName("type"); tn != nil {
			field.Signature = field.Name + " " + tn.Content(src)
		}
		fields = append(fields, field)
	}
	return fields
}

func interfaceMethods(node *sitter.Node, src []byte) []Symbol {
	var methods []Symbol
	for i := 0; i < int(node.ChildCount()); i++ {
		elem := node.Child(i)
		// The grammar renamed method_spec to method_elem; accept both.
		if elem.Type() != "method_elem" && elem.Type() != "method_spec" {
			continue
		}
		if name := elem.ChildByFieldName("name"); name != nil {
			m := spanSymbol(elem, name.Content(src), KindMethod)
			m.Signature = elem.Content(src)
			methods = append(methods, m)
		}
	}
	return methods
}

func valueSymbols(node *sitter.Node, src []byte, specType string, kind SymbolKind) []Symbol {
	var syms []Symbol
	for i := 0; i < int(node.ChildCount()); i++ {
		spec := node.Child(i)
		if spec.Type() != specType {
			continue
		}
		if name := spec.ChildByFieldName("name"); name != nil {
			syms = append(syms, spanSymbol(spec, name.Content(src), kind))
		}
	}
	return syms
}
