package delta

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// TreeFile is one file's state in a tree capture: enough metadata to
// detect a change and, for small files, the content needed to reverse it.
type TreeFile struct {
	ModTime time.Time
	Size    int64
	Content []byte // nil when the file was too big to stash
}

// maxStashedFileSize bounds the per-file pre-image kept for undo.
const maxStashedFileSize = 1 << 20

// heavyDirs are skipped when capturing a tree around a bash call; nothing
// under them is undoable project state.
var heavyDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true,
	".venv": true, "vendor": true, ".cache": true, ".next": true,
	"dist": true, "build": true, "target": true,
}

// CaptureTree records the state of every file under root, keyed by
// relative path. Taken before a bash call so arbitrary shell writes can
// be detected and undone afterward.
func CaptureTree(root string) map[string]TreeFile {
	capture := make(map[string]TreeFile)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if heavyDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		tf := TreeFile{ModTime: info.ModTime(), Size: info.Size()}
		if tf.Size <= maxStashedFileSize {
			tf.Content, _ = os.ReadFile(path)
		}
		capture[rel] = tf
		return nil
	})
	return capture
}

// RecordTreeChanges re-captures root and records a delta for every file
// that appeared, changed, or vanished since pre. A vanished file is
// recorded as a modify so undo restores it; one whose pre-image was too
// big to stash is unrecoverable and skipped.
func (t *Tracker) RecordTreeChanges(root string, pre map[string]TreeFile) {
	post := CaptureTree(root)

	for rel, now := range post {
		abs := filepath.Join(root, rel)
		was, existed := pre[rel]
		switch {
		case !existed:
			t.RecordCreate(abs)
		case was.ModTime != now.ModTime || was.Size != now.Size:
			t.RecordModify(abs, was.Content)
		}
	}
	for rel, was := range pre {
		if _, still := post[rel]; !still && was.Content != nil {
			t.RecordModify(filepath.Join(root, rel), was.Content)
		}
	}
}
