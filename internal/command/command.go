// Package command loads reusable prompt templates: markdown files with an
// optional YAML front-matter block, discovered from global and project
// commands/ directories plus inline behavior-config entries.
package command

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/waysongjiang/pyopencode/internal/config"
)

// Spec is one loaded command template.
type Spec struct {
	Name        string
	Description string
	Agent       string
	Model       string
	MaxSteps    int // 0 means "no override"
	Prompt      string
	SourcePath  string // empty for inline config entries
}

// frontMatter is the recognized key set of the leading `--- ... ---` block.
type frontMatter struct {
	Description string `yaml:"description"`
	Agent       string `yaml:"agent"`
	Model       string `yaml:"model"`
	MaxSteps    int    `yaml:"max_steps"`
}

// parseFrontMatter splits an optional leading front-matter block from the
// body. Text without a block parses as (zero meta, whole text).
func parseFrontMatter(text string) (frontMatter, string) {
	var meta frontMatter
	lines := strings.Split(text, "\n")
	if len(lines) < 3 || strings.TrimSpace(lines[0]) != "---" {
		return meta, text
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "---" {
			continue
		}
		block := strings.Join(lines[1:i], "\n")
		if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
			// A malformed block is treated as body text, not an error:
			// command files are user-authored and a broken header should
			// not make the command disappear.
			return frontMatter{}, text
		}
		return meta, strings.Join(lines[i+1:], "\n")
	}
	return frontMatter{}, text
}

func loadFile(path string) (Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, err
	}
	meta, body := parseFrontMatter(string(raw))
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Spec{
		Name:        name,
		Description: meta.Description,
		Agent:       meta.Agent,
		Model:       meta.Model,
		MaxSteps:    meta.MaxSteps,
		Prompt:      strings.TrimSpace(body),
		SourcePath:  path,
	}, nil
}

func globalCommandDirs() []string {
	dir, err := config.DataDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(dir, "commands")}
}

func projectCommandDirs(cwd string) []string {
	return []string{
		filepath.Join(cwd, ".pyopencode", "commands"),
		filepath.Join(cwd, "commands"),
	}
}

// Discover returns all available commands by name. Merge order: global
// dirs < project dirs < inline behavior-config entries; later sources
// override earlier ones by name.
func Discover(cwd string, behavior *config.Behavior) map[string]Spec {
	out := make(map[string]Spec)

	scanDir := func(dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := filepath.Ext(e.Name())
			if ext == ".md" || ext == ".txt" {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			if spec, err := loadFile(filepath.Join(dir, name)); err == nil {
				out[spec.Name] = spec
			}
		}
	}

	for _, dir := range globalCommandDirs() {
		scanDir(dir)
	}
	for _, dir := range projectCommandDirs(cwd) {
		scanDir(dir)
	}
	if behavior != nil {
		for name, cc := range behavior.Commands {
			out[name] = Spec{
				Name:        name,
				Description: cc.Description,
				Agent:       cc.Agent,
				Model:       cc.Model,
				MaxSteps:    cc.MaxSteps,
				Prompt:      strings.TrimSpace(cc.Prompt),
			}
		}
	}
	return out
}

// Load resolves a single named command.
func Load(cwd, name string, behavior *config.Behavior) (Spec, error) {
	cmds := Discover(cwd, behavior)
	spec, ok := cmds[name]
	if !ok {
		names := make([]string, 0, len(cmds))
		for n := range cmds {
			names = append(names, n)
		}
		sort.Strings(names)
		return Spec{}, fmt.Errorf("unknown command %q (available: %s)", name, strings.Join(names, ", "))
	}
	return spec, nil
}

// Render substitutes {{key}} placeholders in the command's prompt from
// args. Unresolved placeholders are left intact.
func (s Spec) Render(args map[string]string) string {
	text := s.Prompt
	for k, v := range args {
		text = strings.ReplaceAll(text, "{{"+k+"}}", v)
	}
	return text
}
