package tools

import (
	"context"

	"github.com/waysongjiang/pyopencode/internal/lsp"
	"github.com/waysongjiang/pyopencode/internal/treesitter"
)

// FileChangeNotifier fans a completed file write out to the live project
// services: the tree-sitter symbol index re-parses the file and the LSP
// manager tells any running language server the file changed. Both are
// optional and best-effort.
type FileChangeNotifier struct {
	Index *treesitter.Index
	LSP   *lsp.Manager
}

func (n *FileChangeNotifier) changed(ctx context.Context, absPath string) {
	if n == nil {
		return
	}
	if n.Index != nil {
		n.Index.UpdateFile(absPath)
	}
	if n.LSP != nil {
		n.LSP.TouchFile(ctx, absPath)
	}
}
