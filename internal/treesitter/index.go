package treesitter

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/waysongjiang/pyopencode/internal/filesearch"
)

// maxIndexedFileSize skips generated monsters; their symbols would drown
// the outline anyway.
const maxIndexedFileSize = 1 << 20

// Index is the project-wide symbol map, keyed by path relative to the
// project root. Built once at startup, refreshed per file by the
// write-path tools' change notifier.
type Index struct {
	mu    sync.RWMutex
	root  string
	files map[string][]Symbol
}

func NewIndex(root string) *Index {
	return &Index{root: root, files: make(map[string][]Symbol)}
}

// Build walks the project and parses every supported file, honoring the
// root's .gitignore.
func (idx *Index) Build() error {
	ignore := filesearch.LoadIgnore(idx.root)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	return filepath.WalkDir(idx.root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		rel, err := filepath.Rel(idx.root, path)
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || ignore.Ignored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore.Ignored(rel, false) || !Supported(path) {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxIndexedFileSize {
			return nil
		}

		if syms, err := ParseFile(path); err == nil && len(syms) > 0 {
			idx.files[rel] = syms
		}
		return nil
	})
}

// UpdateFile re-parses one file after a write. A file that no longer
// parses (or was deleted) drops out of the index.
func (idx *Index) UpdateFile(absPath string) {
	rel, err := filepath.Rel(idx.root, absPath)
	if err != nil || !Supported(absPath) {
		return
	}
	syms, err := ParseFile(absPath)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err != nil || len(syms) == 0 {
		delete(idx.files, rel)
		return
	}
	idx.files[rel] = syms
}

// Files returns the indexed paths in no particular order.
func (idx *Index) Files() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	paths := make([]string, 0, len(idx.files))
	for p := range idx.files {
		paths = append(paths, p)
	}
	return paths
}

// Symbols returns one file's symbols.
func (idx *Index) Symbols(relPath string) []Symbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.files[relPath]
}

// Snapshot copies the whole map for outline rendering.
func (idx *Index) Snapshot() map[string][]Symbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string][]Symbol, len(idx.files))
	for path, syms := range idx.files {
		out[path] = syms
	}
	return out
}
