package treesitter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSource = `package sample

import "fmt"

const Version = "1.0"

var Debug bool

type Server struct {
	addr string
}

type Handler interface {
	Handle(req string) string
}

func Run() {
	fmt.Println("hello")
}

func (s *Server) Start() error {
	return nil
}
`

func TestParseSourceExtractsDeclarations(t *testing.T) {
	syms, err := ParseSource("sample.go", []byte(sampleSource))
	require.NoError(t, err)

	byKind := map[SymbolKind][]Symbol{}
	for _, s := range syms {
		byKind[s.Kind] = append(byKind[s.Kind], s)
	}

	require.Len(t, byKind[KindPackage], 1)
	assert.Equal(t, "sample", byKind[KindPackage][0].Name)
	require.Len(t, byKind[KindConst], 1)
	assert.Equal(t, "Version", byKind[KindConst][0].Name)
	require.Len(t, byKind[KindVar], 1)
	assert.Equal(t, "Debug", byKind[KindVar][0].Name)

	require.Len(t, byKind[KindStruct], 1)
	server := byKind[KindStruct][0]
	assert.Equal(t, "Server", server.Name)
	require.Len(t, server.Children, 1)
	assert.Equal(t, "addr", server.Children[0].Name)

	require.Len(t, byKind[KindInterface], 1)
	handler := byKind[KindInterface][0]
	assert.Equal(t, "Handler", handler.Name)
	require.Len(t, handler.Children, 1)
	assert.Equal(t, "Handle", handler.Children[0].Name)

	require.Len(t, byKind[KindFunction], 1)
	assert.Equal(t, "Run", byKind[KindFunction][0].Name)
	assert.Contains(t, byKind[KindFunction][0].Signature, "func Run()")

	require.Len(t, byKind[KindMethod], 1)
	start := byKind[KindMethod][0]
	assert.Equal(t, "Start", start.Name)
	assert.Equal(t, "*Server", start.Receiver)
	assert.NotZero(t, start.StartLine)
}

func TestParseSourceUnsupportedLanguage(t *testing.T) {
	syms, err := ParseSource("script.py", []byte("print('hi')"))
	require.NoError(t, err)
	assert.Empty(t, syms)
}

func TestFormatOutlineGroupsByReceiver(t *testing.T) {
	snap := map[string][]Symbol{
		"main.go": {
			{Name: "main", Kind: KindPackage},
			{Name: "main", Kind: KindFunction},
			{Name: "Server", Kind: KindStruct},
			{Name: "Start", Kind: KindMethod, Receiver: "*Server"},
			{Name: "Stop", Kind: KindMethod, Receiver: "*Server"},
		},
	}
	out := FormatOutline(snap)
	assert.Contains(t, out, "main.go:")
	assert.Contains(t, out, "type: Server (struct)")
	assert.Contains(t, out, "*Server: Start, Stop")
	assert.Contains(t, out, "fn: main")
}

func TestFormatOutlineEmptySnapshot(t *testing.T) {
	assert.Empty(t, FormatOutline(nil))
}

func TestIndexBuildAndUpdate(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "sample.go")
	require.NoError(t, os.WriteFile(path, []byte(sampleSource), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("not code"), 0o644))

	idx := NewIndex(root)
	require.NoError(t, idx.Build())
	require.Equal(t, []string{"sample.go"}, idx.Files())
	assert.NotEmpty(t, idx.Symbols("sample.go"))

	require.NoError(t, os.WriteFile(path, []byte("package sample\n\nfunc Only() {}\n"), 0o644))
	idx.UpdateFile(path)

	var names []string
	for _, s := range idx.Symbols("sample.go") {
		if s.Kind == KindFunction {
			names = append(names, s.Name)
		}
	}
	assert.Equal(t, []string{"Only"}, names)

	outline := FormatOutline(idx.Snapshot())
	assert.Contains(t, outline, "fn: Only")
}
