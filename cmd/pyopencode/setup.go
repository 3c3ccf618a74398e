package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/waysongjiang/pyopencode/internal/agent"
	"github.com/waysongjiang/pyopencode/internal/config"
	"github.com/waysongjiang/pyopencode/internal/delta"
	"github.com/waysongjiang/pyopencode/internal/eventlog"
	"github.com/waysongjiang/pyopencode/internal/lsp"
	"github.com/waysongjiang/pyopencode/internal/mcp"
	"github.com/waysongjiang/pyopencode/internal/orchestrator"
	"github.com/waysongjiang/pyopencode/internal/permission"
	"github.com/waysongjiang/pyopencode/internal/promptbuilder"
	"github.com/waysongjiang/pyopencode/internal/provider"
	"github.com/waysongjiang/pyopencode/internal/session"
	"github.com/waysongjiang/pyopencode/internal/shell"
	"github.com/waysongjiang/pyopencode/internal/tools"
	"github.com/waysongjiang/pyopencode/internal/treesitter"
	"github.com/waysongjiang/pyopencode/internal/webcache"
)

// turnFlags is the shared flag set of every turn-running subcommand.
type turnFlags struct {
	providerName string
	configPath   string
	cwd          string
	sessionID    string
	yes          bool
	noBash       bool
	allowEdit    bool
	maxSteps     int
	agentName    string
	behaviorPath string
	trace        bool
	stream       bool
	resume       bool
}

func addTurnFlags(cmd *cobra.Command, f *turnFlags, defaultMaxSteps int) {
	cmd.Flags().StringVar(&f.providerName, "provider", "", "provider name registered in the YAML config")
	cmd.Flags().StringVar(&f.configPath, "config", "pyopencode.yaml", "YAML provider config path")
	cmd.Flags().StringVar(&f.cwd, "cwd", "", "working directory (project root); defaults to the current directory")
	cmd.Flags().StringVar(&f.sessionID, "session", "", "session id to append to (default creates a new one)")
	cmd.Flags().BoolVar(&f.yes, "yes", false, "auto-approve tools that require confirmation")
	cmd.Flags().BoolVar(&f.noBash, "no-bash", false, "deny the bash tool")
	cmd.Flags().BoolVar(&f.allowEdit, "allow-edit", false, "auto-allow edit tools (write/edit/multiedit/patch)")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", defaultMaxSteps, "max LLM/tool iterations per turn")
	cmd.Flags().StringVar(&f.agentName, "agent", "", "agent profile (general/plan/explore/build/run or custom)")
	cmd.Flags().StringVar(&f.behaviorPath, "behavior-config", "", "explicit behavior JSON path")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "log LLM and tool traffic at debug level")
	cmd.Flags().BoolVar(&f.stream, "stream", false, "stream tokens while generating")
	cmd.Flags().BoolVar(&f.resume, "resume", true, "resume pending tool calls before running")
	_ = cmd.MarkFlagRequired("provider")
}

// appEnv bundles the built AppContext with everything that needs explicit
// teardown when the command finishes.
type appEnv struct {
	app      *orchestrator.AppContext
	behavior *config.Behavior
	profile  agent.Profile
	registry *tools.Registry
	deltas   *delta.Tracker

	adapter    provider.Adapter
	webCache   *webcache.Cache
	lspManager *lsp.Manager
	mcpClients []*mcp.Client
}

func (e *appEnv) close() {
	mcp.CloseAll(e.mcpClients)
	if e.lspManager != nil {
		e.lspManager.StopAll(context.Background())
	}
	if e.webCache != nil {
		e.webCache.Close()
	}
	if e.adapter != nil {
		e.adapter.Close()
	}
}

func resolveCwd(flag string) (string, error) {
	cwd := flag
	if cwd == "" {
		return os.Getwd()
	}
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return "", fmt.Errorf("--cwd must be a directory, got file: %s", abs)
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return "", err
		}
	}
	return abs, nil
}

// modelNeedsReasoningEcho recognizes model families that require the
// previous assistant's reasoning text echoed back alongside tool calls.
// Provider config can set the flags explicitly instead of relying on this.
func modelNeedsReasoningEcho(model string) bool {
	return strings.Contains(strings.ToLower(model), "deepseek")
}

// buildEnv wires the full application context: provider adapter, tool
// registry, permission gate, session, events, MCP servers.
func buildEnv(f turnFlags, modelOverride string) (*appEnv, error) {
	if f.trace {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cwd, err := resolveCwd(f.cwd)
	if err != nil {
		return nil, err
	}

	providers, err := config.LoadProviders(f.configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := providers.Get(f.providerName)
	if err != nil {
		return nil, err
	}

	behavior, err := config.LoadBehavior(cwd, f.behaviorPath)
	if err != nil {
		return nil, err
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return nil, err
	}

	agents := agent.NewRegistry(behavior)
	profileName := f.agentName
	if profileName == "" {
		profileName = behavior.DefaultAgent
	}
	profile := agents.Get(profileName)

	model := cfg.Model
	if profile.Model != "" {
		model = profile.Model
	}
	if modelOverride != "" {
		model = modelOverride
	}
	echo := modelNeedsReasoningEcho(model)
	adapter := provider.NewOpenAI(cfg.Name, cfg.BaseURL, cfg.APIKey, model, cfg.Temperature, provider.ReasoningOptions{
		Include: cfg.IncludeReasoning || echo,
		Force:   cfg.ForceReasoning || echo,
	})

	_, rulesText := agent.ResolveRules(cwd, behavior)

	sessionsDir, err := config.SessionsDir()
	if err != nil {
		return nil, err
	}
	store, err := session.NewStore(sessionsDir)
	if err != nil {
		return nil, err
	}
	sessionID := f.sessionID
	if sessionID == "" {
		sessionID = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	sess, err := store.Open(sessionID)
	if err != nil {
		return nil, err
	}

	var events *eventlog.Log
	if eventsDir, err := config.EventsDir(); err == nil {
		events, _ = eventlog.Open(eventsDir, sessionID)
	}

	var cache *webcache.Cache
	var deltas *delta.Tracker
	if dataDir, err := config.EnsureDataDir(); err == nil {
		cache, err = webcache.Open(filepath.Join(dataDir, "cache.db"), behaviorTTL(behavior))
		if err != nil {
			log.Warn().Err(err).Msg("web cache unavailable")
		} else if deltas, err = delta.New(cache.DB()); err != nil {
			log.Warn().Err(err).Msg("undo tracking unavailable")
			deltas = nil
		}
	}

	tsIndex := treesitter.NewIndex(cwd)
	if err := tsIndex.Build(); err != nil {
		log.Warn().Err(err).Msg("tree-sitter index build failed")
	}
	lspManager := lsp.NewManager(cwd)
	notify := &tools.FileChangeNotifier{Index: tsIndex, LSP: lspManager}

	todosDir, err := config.TodosDir()
	if err != nil {
		return nil, err
	}
	todoStore := tools.NewTodoStore(todosDir)
	scratchpad := &tools.Scratchpad{}

	sh := shell.New(cwd, shell.DefaultBlockFuncs())

	registry := tools.NewRegistry()
	registry.Register(tools.ListTool{})
	registry.Register(tools.GlobTool{})
	registry.Register(tools.GrepTool{})
	registry.Register(tools.ReadTool{})
	registry.Register(tools.WriteTool{Deltas: deltas, Notify: notify})
	registry.Register(tools.EditTool{Deltas: deltas, Notify: notify})
	registry.Register(tools.MultiEditTool{Deltas: deltas, Notify: notify})
	registry.Register(tools.PatchTool{Deltas: deltas, Notify: notify})
	registry.Register(tools.NewBashTool(sh, deltas))
	registry.Register(tools.NewWebFetchTool(cache))
	registry.Register(tools.TodoReadTool{Store: todoStore})
	registry.Register(tools.TodoWriteTool{Store: todoStore, Scratchpad: scratchpad})
	registry.Register(tools.SkillTool{})
	registry.Register(tools.QuestionTool{})
	registry.Register(&tools.LSPTool{Manager: lspManager, Index: tsIndex})
	if exaKey := creds.GetAPIKey("exa_ai"); exaKey != "" {
		registry.Register(tools.NewWebSearchTool(cache, exaKey, ""))
	}

	mcpClients := mcp.StartServers(context.Background(), registry, behavior.MCPServers)

	rules := make([]permission.Rule, 0, len(behavior.Permissions))
	for _, r := range behavior.Permissions {
		rules = append(rules, permission.Rule{Match: r.Match, Decision: permission.Decision(r.Decision)})
	}
	gate := permission.NewGate(permission.NewEngine(rules), f.yes, permission.StdioAsker{In: os.Stdin, Out: os.Stderr})
	gate.ApplyAgentOverrides(profile.PermissionOverrides)
	gate.ApplyCLIFlags(f.yes, f.allowEdit, f.noBash)

	app := &orchestrator.AppContext{
		Cwd:         cwd,
		Provider:    adapter,
		Tools:       registry,
		Gate:        gate,
		Session:     sess,
		Events:      events,
		Policy:      promptbuilder.DefaultPolicy(),
		RulesText:   rulesText,
		AgentPrompt: profile.SystemPrompt,
		Outline: func() string {
			return treesitter.FormatOutline(tsIndex.Snapshot())
		},
		Scratchpad: scratchpad,
		Deltas:     deltas,
		Stream:     f.stream,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
	}
	if f.stream {
		app.OnToken = func(tok string) { fmt.Print(tok) }
	}

	return &appEnv{
		app:        app,
		behavior:   behavior,
		profile:    profile,
		registry:   registry,
		deltas:     deltas,
		adapter:    adapter,
		webCache:   cache,
		lspManager: lspManager,
		mcpClients: mcpClients,
	}, nil
}

func behaviorTTL(b *config.Behavior) time.Duration {
	return time.Duration(b.CacheTTLOrDefault()) * time.Hour
}
