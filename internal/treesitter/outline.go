package treesitter

import (
	"fmt"
	"sort"
	"strings"
)

// MaxOutlineBytes caps the rendered outline so the agent system injection
// doesn't crowd out the conversation. ~16KB covers roughly a hundred Go
// files at outline density.
const MaxOutlineBytes = 16 * 1024

// FormatOutline renders a per-file symbol snapshot as the compact outline
// injected into the agent system prompt, e.g.:
//
//	# Project Symbols
//	internal/session/session.go:
//	  type: Store (struct), Session (struct)
//	  *Session: Append, Replace
//	  fn: NewStore
func FormatOutline(snap map[string][]Symbol) string {
	if len(snap) == 0 {
		return ""
	}

	paths := make([]string, 0, len(snap))
	for p := range snap {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	b.WriteString("# Project Symbols\n")
	for _, path := range paths {
		body := renderFile(snap[path])
		if body == "" {
			continue
		}
		entry := path + ":\n" + body
		if b.Len()+len(entry) > MaxOutlineBytes {
			fmt.Fprintf(&b, "# ... truncated (%d files total)\n", len(paths))
			break
		}
		b.WriteString(entry)
	}
	return b.String()
}

// renderFile groups one file's symbols into "types, methods by receiver,
// functions, consts, vars" lines. Packages and imports carry no outline
// value and are dropped.
func renderFile(syms []Symbol) string {
	var types, funcs, consts, vars []string
	methods := map[string][]string{}

	for _, s := range syms {
		switch s.Kind {
		case KindFunction:
			funcs = append(funcs, s.Name)
		case KindMethod:
			recv := s.Receiver
			if recv == "" {
				recv = "?"
			}
			methods[recv] = append(methods[recv], s.Name)
		case KindStruct:
			types = append(types, s.Name+" (struct)")
		case KindInterface:
			types = append(types, s.Name+" (interface)")
		case KindType:
			types = append(types, s.Name)
		case KindConst:
			consts = append(consts, s.Name)
		case KindVar:
			vars = append(vars, s.Name)
		}
	}

	var b strings.Builder
	writeGroup := func(label string, names []string) {
		if len(names) > 0 {
			fmt.Fprintf(&b, "  %s: %s\n", label, strings.Join(names, ", "))
		}
	}

	writeGroup("type", types)
	receivers := make([]string, 0, len(methods))
	for r := range methods {
		receivers = append(receivers, r)
	}
	sort.Strings(receivers)
	for _, r := range receivers {
		writeGroup(r, methods[r])
	}
	writeGroup("fn", funcs)
	writeGroup("const", consts)
	writeGroup("var", vars)
	return b.String()
}
