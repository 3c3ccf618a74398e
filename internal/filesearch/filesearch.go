// Package filesearch implements the content search behind the grep tool:
// a gitignore-aware walk of the project tree with regexp matching against
// file contents, bounded by a match budget.
package filesearch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Match is one matching line.
type Match struct {
	Path string // relative to the search root
	Line int    // 1-based
	Text string
}

// maxSearchableFileSize bounds per-file reads; anything bigger is skipped
// as presumably generated or binary.
const maxSearchableFileSize = 8 << 20

// Grep searches file contents under root for pattern, honoring the root's
// .gitignore, and returns at most maxMatches matches. maxMatches <= 0
// means unbounded.
func Grep(ctx context.Context, root, pattern string, maxMatches int) ([]Match, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	ignore := LoadIgnore(root)

	var matches []Match
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || ignore.Ignored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore.Ignored(rel, false) {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxSearchableFileSize {
			return nil
		}

		matches = append(matches, grepFile(path, rel, re, budget(maxMatches, len(matches)))...)
		if maxMatches > 0 && len(matches) >= maxMatches {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return nil, err
	}
	return matches, nil
}

func budget(max, used int) int {
	if max <= 0 {
		return 0
	}
	return max - used
}

// grepFile scans one file line by line. A NUL byte in any scanned line marks
// the file binary and discards its matches; lines after the match budget is
// reached are not scanned.
func grepFile(absPath, relPath string, re *regexp.Regexp, remaining int) []Match {
	f, err := os.Open(absPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	var matches []Match
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if strings.IndexByte(line, 0) >= 0 {
			return nil
		}
		if re.MatchString(line) {
			matches = append(matches, Match{Path: relPath, Line: n, Text: line})
			if remaining > 0 && len(matches) >= remaining {
				return matches
			}
		}
	}
	return matches
}
