package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/jsonrpc2"
)

// DefaultRequestTimeout bounds every JSON-RPC request to a server.
const DefaultRequestTimeout = 30 * time.Second

// Client owns one spawned server process and the JSON-RPC connection over
// its stdio. Requests block the caller until the connection's reader
// dispatches the matching reply or the timeout elapses; late replies are
// dropped by the connection.
type Client struct {
	ServerName string

	cmd     *exec.Cmd
	conn    *jsonrpc2.Conn
	timeout time.Duration
}

// stdioPipe joins the child's stdin/stdout into one ReadWriteCloser for
// the JSON-RPC stream.
type stdioPipe struct {
	io.ReadCloser
	io.WriteCloser
}

func (p stdioPipe) Close() error {
	werr := p.WriteCloser.Close()
	rerr := p.ReadCloser.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// noopHandler ignores server-initiated requests and notifications; this
// client only ever issues requests.
type noopHandler struct{}

func (noopHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {}

// Spawn starts the server process and attaches a line-delimited JSON-RPC
// connection to its stdio. The child's stderr passes through to ours so
// server-side panics stay visible.
func Spawn(name string, command []string, env map[string]string, cwd string) (*Client, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("mcp %s: empty command", name)
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = cwd
	cmd.Stderr = os.Stderr
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp %s: stdin pipe: %w", name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp %s: stdout pipe: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp %s: start %q: %w", name, command[0], err)
	}

	stream := jsonrpc2.NewBufferedStream(stdioPipe{ReadCloser: stdout, WriteCloser: stdin}, jsonrpc2.PlainObjectCodec{})
	conn := jsonrpc2.NewConn(context.Background(), stream, noopHandler{})

	log.Info().Str("server", name).Strs("command", command).Msg("mcp: server started")
	return &Client{ServerName: name, cmd: cmd, conn: conn, timeout: DefaultRequestTimeout}, nil
}

// request performs one JSON-RPC call with the client's timeout.
func (c *Client) request(ctx context.Context, method string, params, result interface{}) error {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.conn.Call(cctx, method, params, result); err != nil {
		return fmt.Errorf("mcp %s: %s: %w", c.ServerName, method, err)
	}
	return nil
}

// ListTools fetches the server's tool catalogue.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result ListToolsResult
	if err := c.request(ctx, "tools/list", struct{}{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a remote tool and returns its normalized text content.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	if len(arguments) == 0 {
		arguments = json.RawMessage(`{}`)
	}
	var result json.RawMessage
	if err := c.request(ctx, "tools/call", CallToolParams{Name: name, Arguments: arguments}, &result); err != nil {
		return "", err
	}

	var wrapped callToolResult
	if err := json.Unmarshal(result, &wrapped); err == nil && wrapped.IsError {
		return "", fmt.Errorf("mcp %s: tool %s: %s", c.ServerName, name, normalizeContent(result))
	}
	return normalizeContent(result), nil
}

// Close tears the connection down and terminates the child process. There
// is no graceful shutdown protocol; terminate is the contract.
func (c *Client) Close() error {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil && !isAlreadyFinished(err) {
			log.Warn().Err(err).Str("server", c.ServerName).Msg("mcp: kill failed")
		}
		_ = c.cmd.Wait()
	}
	return nil
}

func isAlreadyFinished(err error) bool {
	return err == os.ErrProcessDone
}
