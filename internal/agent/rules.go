package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/waysongjiang/pyopencode/internal/config"
)

// RuleDoc is one discovered rule document.
type RuleDoc struct {
	Scope   string // "global", "project", or "extra"
	Path    string
	Content string
}

// ruleFileNames are probed in order within each scope; the first hit wins
// for that scope.
var ruleFileNames = []string{"AGENTS.md", "RULES.md"}

// ResolveRules probes the global config dir then the project root for rule
// documents, plus any explicit extra files from the behavior config, and
// returns the discovered docs together with their concatenation under
// scope/path headers.
func ResolveRules(cwd string, behavior *config.Behavior) ([]RuleDoc, string) {
	var docs []RuleDoc

	if globalDir, err := config.DataDir(); err == nil {
		if doc, ok := probeScope("global", globalDir); ok {
			docs = append(docs, doc)
		}
	}
	if doc, ok := probeScope("project", cwd); ok {
		docs = append(docs, doc)
	}
	if behavior != nil {
		for _, path := range behavior.RulesFiles {
			if content := readFileIfExists(path); content != "" {
				docs = append(docs, RuleDoc{Scope: "extra", Path: path, Content: content})
			}
		}
	}
	return docs, combineRules(docs)
}

func probeScope(scope, dir string) (RuleDoc, bool) {
	for _, name := range ruleFileNames {
		path := filepath.Join(dir, name)
		if content := readFileIfExists(path); content != "" {
			return RuleDoc{Scope: scope, Path: path, Content: content}, true
		}
	}
	return RuleDoc{}, false
}

func combineRules(docs []RuleDoc) string {
	var parts []string
	for _, d := range docs {
		header := fmt.Sprintf("[%s] %s", d.Scope, d.Path)
		parts = append(parts, header, strings.Repeat("-", len(header)), d.Content, "")
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func readFileIfExists(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
