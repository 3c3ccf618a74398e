package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a tool-supplied path resolves outside the
// tool context's cwd, whether lexically (../, absolute paths) or through a
// symlink under the root pointing elsewhere.
var ErrPathEscape = errors.New("path escapes working directory")

// resolvePath joins file against root (if relative), follows symlinks, and
// rejects any result that isn't root itself or a descendant of it. The
// symlink resolution matters: a link inside the root aimed at /etc would
// pass a lexical check and then be read or written for real.
func resolvePath(root, file string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(rootAbs); err == nil {
		rootAbs = resolved
	}

	abs := file
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(rootAbs, abs)
	}
	abs, err = filepath.Abs(abs)
	if err != nil {
		return "", err
	}
	abs, err = evalExistingPrefix(abs)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return abs, nil
}

// evalExistingPrefix resolves symlinks in the longest existing ancestor of
// path and rejoins the not-yet-created remainder, so write targets that
// don't exist yet still get their parent directories resolved. A dangling
// symlink along the way is an error rather than a pass-through: writing
// "through" it would create the file wherever the link points.
func evalExistingPrefix(path string) (string, error) {
	remainder := ""
	for p := path; ; {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		if info, lerr := os.Lstat(p); lerr == nil && info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("dangling symlink: %s", p)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path, nil
		}
		remainder = filepath.Join(filepath.Base(p), remainder)
		p = parent
	}
}
