// Package hashline tags file lines with short content hashes so that an
// edit can be checked against the exact text the model last read. A read
// with annotate=true returns "num:hash|content" lines; an edit that names
// the hashes it expects is rejected when the file changed underneath it.
package hashline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashLen is the hex length of a line hash. One byte of SHA-256 is enough
// to catch a stale read; collisions just mean a rare missed rejection.
const HashLen = 2

// Hash computes the short content hash of one line.
func Hash(line string) string {
	sum := sha256.Sum256([]byte(line))
	return hex.EncodeToString(sum[:HashLen/2])
}

// TaggedLine is one line with its 1-based number and content hash.
type TaggedLine struct {
	Num     int
	Hash    string
	Content string
}

// Tag renders the line in the "num:hash|content" wire form.
func (t TaggedLine) Tag() string {
	return fmt.Sprintf("%d:%s|%s", t.Num, t.Hash, t.Content)
}

// TagLines splits content into lines and tags each, numbering from
// startLine (values < 1 are treated as 1).
func TagLines(content string, startLine int) []TaggedLine {
	if startLine < 1 {
		startLine = 1
	}
	lines := strings.Split(content, "\n")
	tagged := make([]TaggedLine, len(lines))
	for i, line := range lines {
		tagged[i] = TaggedLine{Num: startLine + i, Hash: Hash(line), Content: line}
	}
	return tagged
}

// FormatTagged joins tagged lines into the block returned to the model.
func FormatTagged(tagged []TaggedLine) string {
	parts := make([]string, len(tagged))
	for i, t := range tagged {
		parts[i] = t.Tag()
	}
	return strings.Join(parts, "\n")
}

// CheckAnchor verifies that the 1-based line num of lines still hashes to
// want. An empty want skips the check.
func CheckAnchor(lines []string, num int, want string) error {
	if want == "" {
		return nil
	}
	if num < 1 || num > len(lines) {
		return fmt.Errorf("line %d out of range (file has %d lines)", num, len(lines))
	}
	got := Hash(lines[num-1])
	if got != want {
		return fmt.Errorf("line %d changed since it was read (hash %s, expected %s): %q; re-read the file for fresh hashes",
			num, got, want, lines[num-1])
	}
	return nil
}
