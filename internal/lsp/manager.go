package lsp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	powernapconfig "github.com/charmbracelet/x/powernap/pkg/config"
	powernap "github.com/charmbracelet/x/powernap/pkg/lsp"
	"github.com/charmbracelet/x/powernap/pkg/lsp/protocol"
	"github.com/rs/zerolog/log"
)

// initTimeout bounds a language server's initialize handshake.
const initTimeout = 15 * time.Second

// maxDiagnosticsShown caps how many diagnostics a single tool reply lists.
const maxDiagnosticsShown = 20

// skipAutoStart lists generic commands that should not be auto-started.
// These interpreters/runners may trigger package downloads or run wrong binaries.
var skipAutoStart = map[string]bool{
	"npx":     true,
	"node":    true,
	"python":  true,
	"python3": true,
	"java":    true,
	"ruby":    true,
	"perl":    true,
	"dotnet":  true,
	"bun":     true,
}

// Manager starts and caches language servers for one project root, keyed
// by server name. Servers start lazily, the first time a file of their
// language is touched by an edit/write tool or the lsp tool.
type Manager struct {
	cfgMgr *powernapconfig.Manager
	root   string

	mu      sync.Mutex
	clients map[string]*Client // serverName -> client
	broken  map[string]bool    // servers that failed to start
}

// NewManager creates a manager rooted at the project directory, using
// powernap's built-in server defaults.
func NewManager(projectRoot string) *Manager {
	// Silence powernap's slog output: stderr carries our permission and
	// question prompts, and our own logging goes through zerolog to the
	// agent log file.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cm := powernapconfig.NewManager()
	_ = cm.LoadDefaults()
	return &Manager{
		cfgMgr:  cm,
		root:    projectRoot,
		clients: make(map[string]*Client),
		broken:  make(map[string]bool),
	}
}

// TouchFile ensures the right language servers are running for this file
// and pushes its current content. Non-blocking on diagnostics — the
// write-path tools call this fire-and-forget; errors are logged, not
// returned.
func (m *Manager) TouchFile(ctx context.Context, absPath string) {
	for _, c := range m.ensureClients(ctx, absPath) {
		if err := c.openFile(ctx, absPath); err != nil {
			log.Error().Err(err).Str("server", c.serverName).Msg("lsp: touch failed")
		}
	}
}

// NotifyAndWait pushes a file change to every matching language server and
// waits for diagnostics. Returns aggregated diagnostics across servers.
func (m *Manager) NotifyAndWait(ctx context.Context, absPath string, timeout time.Duration) []protocol.Diagnostic {
	clients := m.ensureClients(ctx, absPath)
	if len(clients) == 0 {
		return nil
	}

	var all []protocol.Diagnostic
	for _, c := range clients {
		diags, err := c.notifyAndWait(ctx, absPath, timeout)
		if err != nil {
			log.Error().Err(err).Str("server", c.serverName).Msg("lsp: notifyAndWait")
			continue
		}
		all = append(all, diags...)
	}
	log.Debug().Int("total", len(all)).Str("file", absPath).Msg("lsp: aggregated diagnostics")
	return all
}

// StopAll gracefully shuts down all running language servers.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		if err := c.close(ctx); err != nil {
			log.Error().Err(err).Str("server", c.serverName).Msg("lsp: stop failed")
		}
	}
}

// serverToStart holds info needed to start a language server outside the lock.
type serverToStart struct {
	name    string
	cfg     *powernapconfig.ServerConfig
	root    string
	cmdPath string
}

// ensureClients finds or starts language servers for the given file.
func (m *Manager) ensureClients(ctx context.Context, absPath string) []*Client {
	lang := string(powernap.DetectLanguage(absPath))
	if lang == "" {
		return nil
	}

	servers := m.cfgMgr.GetServers()

	// Phase 1: under lock, collect existing clients and identify servers to start.
	m.mu.Lock()
	var result []*Client
	var pending []serverToStart

	for name, cfg := range servers {
		if !matchesFileType(cfg, lang) {
			continue
		}
		if m.broken[name] {
			continue
		}
		if c, ok := m.clients[name]; ok {
			result = append(result, c)
			continue
		}
		if skipAutoStart[cfg.Command] {
			m.broken[name] = true
			continue
		}
		cmdPath := lookPath(cfg.Command)
		if cmdPath == "" {
			m.broken[name] = true
			continue
		}
		root := findRoot(absPath, cfg.RootMarkers)
		if root == "" {
			// No marker found anywhere above the file: treat the project
			// directory the agent runs against as the workspace root.
			root = m.root
		}
		pending = append(pending, serverToStart{name: name, cfg: cfg, root: root, cmdPath: cmdPath})
	}
	m.mu.Unlock()

	// Phase 2: start servers without holding the lock (blocking I/O).
	for _, s := range pending {
		c, err := m.startClient(ctx, s)

		m.mu.Lock()
		if err != nil {
			log.Error().Err(err).Str("server", s.name).Msg("lsp: start failed")
			m.broken[s.name] = true
		} else {
			m.clients[s.name] = c
			result = append(result, c)
		}
		m.mu.Unlock()
	}

	return result
}

// startClient spawns and initializes a single language server.
func (m *Manager) startClient(ctx context.Context, s serverToStart) (*Client, error) {
	rootURI := string(protocol.URIFromPath(s.root))

	pcfg := powernap.ClientConfig{
		Command:     s.cmdPath,
		Args:        s.cfg.Args,
		RootURI:     rootURI,
		Environment: s.cfg.Environment,
		Settings:    s.cfg.Settings,
		InitOptions: s.cfg.InitOptions,
		WorkspaceFolders: []protocol.WorkspaceFolder{
			{URI: rootURI, Name: filepath.Base(s.root)},
		},
	}

	c, err := newClient(s.name, pcfg)
	if err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	if err := c.initialize(initCtx); err != nil {
		_ = c.close(ctx)
		return nil, fmt.Errorf("initialize: %w", err)
	}

	log.Info().Str("server", s.name).Str("root", s.root).Str("cmd", s.cmdPath).Msg("lsp: server started")
	return c, nil
}

// matchesFileType checks if a server config handles the given language ID.
func matchesFileType(cfg *powernapconfig.ServerConfig, lang string) bool {
	for _, ft := range cfg.FileTypes {
		if ft == lang {
			return true
		}
	}
	return false
}

// findRoot walks up from the file looking for any of the root markers.
func findRoot(absPath string, markers []string) string {
	dir := filepath.Dir(absPath)
	for {
		for _, marker := range markers {
			matches, _ := filepath.Glob(filepath.Join(dir, marker))
			if len(matches) > 0 {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// FormatDiagnostics renders errors and warnings as the text block the lsp
// tool returns to the model. Empty string when there is nothing to show.
func FormatDiagnostics(displayPath string, diags []protocol.Diagnostic) string {
	shown := 0
	total := 0
	var b strings.Builder
	for _, d := range diags {
		sev := int(d.Severity)
		if sev != SeverityError && sev != SeverityWarning {
			continue
		}
		total++
		if shown >= maxDiagnosticsShown {
			continue
		}
		if shown == 0 {
			fmt.Fprintf(&b, "\nLSP diagnostics:\n<diagnostics file=%q>\n", displayPath)
		}
		label := "WARNING"
		if sev == SeverityError {
			label = "ERROR"
		}
		fmt.Fprintf(&b, "%s [%d:%d] %s\n",
			label,
			d.Range.Start.Line+1, // display as 1-indexed
			d.Range.Start.Character+1,
			d.Message,
		)
		shown++
	}
	if shown == 0 {
		return ""
	}
	if total > shown {
		fmt.Fprintf(&b, "... and %d more\n", total-shown)
	}
	b.WriteString("</diagnostics>")
	return b.String()
}

// lookPath finds a command binary, checking PATH first, then common
// language-specific bin directories that may not be in PATH.
func lookPath(command string) string {
	if p, err := exec.LookPath(command); err == nil {
		return p
	}

	// Extra directories where language toolchains install binaries.
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	extras := []string{
		filepath.Join(home, "go", "bin"),
		filepath.Join(home, ".cargo", "bin"),
		filepath.Join(home, ".local", "bin"),
	}
	if gobin := os.Getenv("GOBIN"); gobin != "" {
		extras = append([]string{gobin}, extras...)
	}
	if gopath := os.Getenv("GOPATH"); gopath != "" {
		extras = append([]string{filepath.Join(gopath, "bin")}, extras...)
	}

	for _, dir := range extras {
		p := filepath.Join(dir, command)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}
