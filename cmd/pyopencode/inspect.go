package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/waysongjiang/pyopencode/internal/command"
	"github.com/waysongjiang/pyopencode/internal/config"
	"github.com/waysongjiang/pyopencode/internal/constants"
	"github.com/waysongjiang/pyopencode/internal/delta"
	"github.com/waysongjiang/pyopencode/internal/eventlog"
	"github.com/waysongjiang/pyopencode/internal/highlight"
	"github.com/waysongjiang/pyopencode/internal/mcp"
	"github.com/waysongjiang/pyopencode/internal/provider"
	"github.com/waysongjiang/pyopencode/internal/session"
	"github.com/waysongjiang/pyopencode/internal/tools"
	"github.com/waysongjiang/pyopencode/internal/webcache"
)

func openSession(id string) (*session.Session, error) {
	dir, err := config.SessionsDir()
	if err != nil {
		return nil, err
	}
	store, err := session.NewStore(dir)
	if err != nil {
		return nil, err
	}
	return store.Open(id)
}

func newReplayCmd() *cobra.Command {
	var sessionID string
	var tail int
	var showSystem bool

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Print persisted messages of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(sessionID)
			if err != nil {
				return err
			}
			msgs := sess.Messages
			if !showSystem {
				filtered := msgs[:0:0]
				for _, m := range msgs {
					if m.Role != "system" {
						filtered = append(filtered, m)
					}
				}
				msgs = filtered
			}
			if tail > 0 && len(msgs) > tail {
				msgs = msgs[len(msgs)-tail:]
			}

			fmt.Printf("session: %s (%d messages)\n\n", sess.ID, len(msgs))
			for _, m := range msgs {
				title := m.Role
				if m.Role == "tool" {
					title = fmt.Sprintf("tool (%s)", m.ToolCallID)
				}
				fmt.Printf("--- %s ---\n", title)
				if len(m.ToolCalls) > 0 {
					for _, tc := range m.ToolCalls {
						fmt.Printf("tool_call %s: %s %s\n", tc.ID, tc.Name, string(tc.Arguments))
					}
				}
				if m.Content != "" {
					fmt.Println(renderContent(m.Content))
				}
				fmt.Println()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to replay")
	cmd.Flags().IntVar(&tail, "tail", 50, "show last N messages")
	cmd.Flags().BoolVar(&showSystem, "show-system", false, "include system messages")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

// renderContent syntax-highlights fenced code blocks for terminal output
// and passes everything else through.
func renderContent(content string) string {
	lines := strings.Split(content, "\n")
	var out []string
	var block []string
	lang := ""
	inBlock := false
	bg := highlight.ThemeBg(constants.SyntaxTheme)

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			if inBlock {
				out = append(out, highlight.Highlight(strings.Join(block, "\n"), lang, constants.SyntaxTheme, bg))
				block = block[:0]
				inBlock = false
			} else {
				lang = strings.TrimSpace(strings.TrimPrefix(line, "```"))
				inBlock = true
			}
			continue
		}
		if inBlock {
			block = append(block, line)
		} else {
			out = append(out, line)
		}
	}
	if inBlock {
		out = append(out, strings.Join(block, "\n"))
	}
	return strings.Join(out, "\n")
}

func newReplayExecCmd() *cobra.Command {
	var f turnFlags
	var dryRun bool
	var start, limit int

	cmd := &cobra.Command{
		Use:   "replay-exec",
		Short: "Re-execute recorded tool calls without any LLM call, flagging result diffs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			env, err := buildEnv(f, "")
			if err != nil {
				return err
			}
			defer env.close()

			msgs := env.app.Session.Messages
			type group struct {
				index    int
				calls    []provider.ToolCall
				answered map[string]string
			}
			var groups []group
			for i, m := range msgs {
				if m.Role != "assistant" || len(m.ToolCalls) == 0 {
					continue
				}
				answered := make(map[string]string)
				for j := i + 1; j < len(msgs) && msgs[j].Role == "tool"; j++ {
					answered[msgs[j].ToolCallID] = msgs[j].Content
				}
				groups = append(groups, group{index: i, calls: m.ToolCalls, answered: answered})
			}

			if start > len(groups) {
				start = len(groups)
			}
			groups = groups[start:]
			if limit > 0 && len(groups) > limit {
				groups = groups[:limit]
			}

			fmt.Printf("session: %s  blocks: %d  dry_run: %v\n\n", env.app.Session.ID, len(groups), dryRun)
			for gi, g := range groups {
				fmt.Printf("--- block %d (assistant index %d) ---\n", start+gi, g.index)
				for _, tc := range g.calls {
					fmt.Printf("call %s: %s %s\n", tc.ID, tc.Name, string(tc.Arguments))
					if dryRun {
						continue
					}

					tool, ok := env.registry.Get(tc.Name)
					if !ok {
						fmt.Printf("  unknown tool: %s\n", tc.Name)
						continue
					}
					spec := tool.Spec()
					if !env.app.Gate.Check(spec.Class, spec.Name, string(tc.Arguments)) {
						fmt.Printf("  denied: %s\n", tc.Name)
						continue
					}

					result, execErr := tool.Execute(cmd.Context(), toolContext(env), tc.Arguments)
					status := "ok"
					if execErr != nil {
						result = "Error: " + execErr.Error()
						status = "error"
					}
					if recorded, has := g.answered[tc.ID]; has && strings.TrimSpace(recorded) != strings.TrimSpace(result) {
						status += " [DIFF]"
					}
					fmt.Printf("  result (%s): %s\n", status, firstLine(result))
				}
				fmt.Println()
			}
			return nil
		},
	}
	addTurnFlags(cmd, &f, 50)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not execute tools; only show what would run")
	cmd.Flags().IntVar(&start, "start", 0, "start from tool-call block K (0-based)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max tool-call blocks to process (0 = all)")
	return cmd
}

func toolContext(env *appEnv) tools.Context {
	return tools.Context{Cwd: env.app.Cwd, SessionID: env.app.Session.ID, Stdin: env.app.Stdin, Stdout: env.app.Stdout}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func newEventsCmd() *cobra.Command {
	var sessionID string
	var tail int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent structured events recorded for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := loadEvents(sessionID, tail)
			if err != nil {
				return err
			}
			for _, e := range events {
				ts := time.Unix(e.Timestamp, 0).Format("2006-01-02 15:04:05")
				data, _ := json.Marshal(e.Data)
				fmt.Printf("%s  %-42s %s\n", ts, e.Type, string(data))
			}
			fmt.Printf("\n%d event(s)\n", len(events))
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to inspect")
	cmd.Flags().IntVar(&tail, "tail", 200, "show last N events")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func loadEvents(sessionID string, tail int) ([]eventlog.Event, error) {
	dir, err := config.EventsDir()
	if err != nil {
		return nil, err
	}
	return eventlog.Tail(filepath.Join(dir, sessionID+".events.jsonl"), tail)
}

func newStatsCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a compact observability summary for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := loadEvents(sessionID, 0)
			if err != nil {
				return err
			}

			counts := map[string]int{}
			var llmLatencies, toolLatencies []float64
			toolFreq := map[string]int{}
			for _, e := range events {
				counts[e.Type]++
				data, _ := e.Data.(map[string]interface{})
				switch e.Type {
				case eventlog.TypeLLMResponse:
					if ms, ok := data["elapsed_ms"].(float64); ok {
						llmLatencies = append(llmLatencies, ms)
					}
				case eventlog.TypeToolResult:
					if ms, ok := data["elapsed_ms"].(float64); ok {
						toolLatencies = append(toolLatencies, ms)
					}
				case eventlog.TypeToolCall:
					if name, ok := data["tool"].(string); ok {
						toolFreq[name]++
					}
				}
			}

			fmt.Printf("session: %s\n", sessionID)
			fmt.Printf("llm_requests: %d  llm_responses: %d  llm_errors: %d\n",
				counts[eventlog.TypeLLMRequest], counts[eventlog.TypeLLMResponse], counts[eventlog.TypeLLMError])
			if avg, ok := mean(llmLatencies); ok {
				fmt.Printf("llm_avg_latency_ms: %.1f\n", avg)
			}
			fmt.Printf("tool_calls: %d  tool_results: %d  tool_denied: %d\n",
				counts[eventlog.TypeToolCall], counts[eventlog.TypeToolResult], counts[eventlog.TypeToolDenied])
			if avg, ok := mean(toolLatencies); ok {
				fmt.Printf("tool_avg_latency_ms: %.1f\n", avg)
			}
			if len(toolFreq) > 0 {
				type kv struct {
					name  string
					count int
				}
				var top []kv
				for name, count := range toolFreq {
					top = append(top, kv{name, count})
				}
				sort.Slice(top, func(i, j int) bool { return top[i].count > top[j].count })
				fmt.Println("top_tools:")
				for i, t := range top {
					if i >= 12 {
						break
					}
					fmt.Printf("  - %s: %d\n", t.name, t.count)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to summarize")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func mean(vals []float64) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals)), true
}

func newCommandsCmd() *cobra.Command {
	var cwdFlag, behaviorPath string

	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List available prompt templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := resolveCwd(cwdFlag)
			if err != nil {
				return err
			}
			behavior, err := config.LoadBehavior(cwd, behaviorPath)
			if err != nil {
				return err
			}
			cmds := command.Discover(cwd, behavior)
			if len(cmds) == 0 {
				fmt.Println("No commands found.")
				return nil
			}
			names := make([]string, 0, len(cmds))
			for name := range cmds {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				spec := cmds[name]
				extra := ""
				if spec.Agent != "" {
					extra = fmt.Sprintf(" (agent=%s)", spec.Agent)
				}
				fmt.Printf("- %s%s %s\n", name, extra, spec.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "working directory (project root)")
	cmd.Flags().StringVar(&behaviorPath, "behavior-config", "", "explicit behavior JSON path")
	return cmd
}

func newMCPCmd() *cobra.Command {
	var cwdFlag, behaviorPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "List configured MCP servers and their discovered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := resolveCwd(cwdFlag)
			if err != nil {
				return err
			}
			behavior, err := config.LoadBehavior(cwd, behaviorPath)
			if err != nil {
				return err
			}
			if len(behavior.MCPServers) == 0 {
				fmt.Println("No MCP servers configured. Add mcp_servers to pyopencode.json.")
				return nil
			}

			for name, sc := range behavior.MCPServers {
				prefix := sc.Prefix
				if prefix == "" {
					prefix = "mcp." + name
				}
				fmt.Printf("%s -> %v (prefix=%s)\n", name, sc.Command, prefix)

				client, err := mcp.Spawn(name, sc.Command, sc.Env, sc.Cwd)
				if err != nil {
					fmt.Printf("  start failed: %v\n", err)
					continue
				}
				remoteTools, err := client.ListTools(context.Background())
				client.Close()
				if err != nil {
					fmt.Printf("  tools/list failed: %v\n", err)
					continue
				}
				for _, t := range remoteTools {
					fmt.Printf("  - %s.%s: %s\n", prefix, t.Name, t.Description)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "working directory (project root)")
	cmd.Flags().StringVar(&behaviorPath, "behavior-config", "", "explicit behavior JSON path")
	return cmd
}

func newUndoCmd() *cobra.Command {
	var sessionID string
	var turn int64

	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Revert the file writes recorded for one turn of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, err := config.EnsureDataDir()
			if err != nil {
				return err
			}
			cache, err := webcache.Open(filepath.Join(dataDir, "cache.db"), 24*time.Hour)
			if err != nil {
				return err
			}
			defer cache.Close()

			tracker, err := delta.New(cache.DB())
			if err != nil {
				return err
			}
			restored, err := tracker.Undo(sessionID, turn)
			if err != nil {
				return err
			}
			if len(restored) == 0 {
				fmt.Println("Nothing to undo for that turn.")
				return nil
			}
			for _, path := range restored {
				fmt.Printf("restored %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().Int64Var(&turn, "turn", 0, "turn id: 1 + the session's message count when the turn began")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("turn")
	return cmd
}
