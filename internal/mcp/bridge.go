package mcp

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/waysongjiang/pyopencode/internal/config"
	"github.com/waysongjiang/pyopencode/internal/tools"
)

// remoteTool adapts one remote tool to the local Tool interface. Its
// permission class is always "mcp".
type remoteTool struct {
	spec   tools.ToolSpec
	client *Client
	remote string
}

func (t *remoteTool) Spec() tools.ToolSpec { return t.spec }

func (t *remoteTool) Execute(ctx context.Context, tc tools.Context, args tools.Value) (string, error) {
	return t.client.CallTool(ctx, t.remote, args)
}

// StartServers spawns every configured server, lists its tools, and
// registers each under "<prefix>.<remote-name>" (prefix defaults to
// "mcp.<server-name>"). Servers start concurrently; one server failing to
// start or list is logged and skipped, never fatal to the others. The
// returned clients must be closed when the turn loop shuts down.
func StartServers(ctx context.Context, registry *tools.Registry, servers map[string]config.MCPServerConfig) []*Client {
	var (
		mu      sync.Mutex
		clients []*Client
	)

	g, gctx := errgroup.WithContext(ctx)
	for name, sc := range servers {
		g.Go(func() error {
			client, err := Spawn(name, sc.Command, sc.Env, sc.Cwd)
			if err != nil {
				log.Warn().Err(err).Str("server", name).Msg("mcp: start failed, skipping")
				return nil
			}
			remoteTools, err := client.ListTools(gctx)
			if err != nil {
				log.Warn().Err(err).Str("server", name).Msg("mcp: tools/list failed, skipping")
				client.Close()
				return nil
			}

			prefix := sc.Prefix
			if prefix == "" {
				prefix = "mcp." + name
			}

			mu.Lock()
			defer mu.Unlock()
			clients = append(clients, client)
			for _, rt := range remoteTools {
				schema := rt.InputSchema
				if len(schema) == 0 {
					schema = []byte(`{"type":"object","properties":{}}`)
				}
				registry.Register(&remoteTool{
					spec: tools.ToolSpec{
						Name:        prefix + "." + rt.Name,
						Description: "[MCP:" + name + "] " + rt.Description,
						Parameters:  schema,
						Class:       "mcp",
					},
					client: client,
					remote: rt.Name,
				})
			}
			log.Info().Str("server", name).Int("tools", len(remoteTools)).Msg("mcp: tools registered")
			return nil
		})
	}
	_ = g.Wait()
	return clients
}

// CloseAll terminates every client, best-effort.
func CloseAll(clients []*Client) {
	for _, c := range clients {
		_ = c.Close()
	}
}
