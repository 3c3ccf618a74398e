// Package lsp runs language servers (via powernap) for the project root
// and surfaces their diagnostics to the lsp tool after file mutations.
package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	powernap "github.com/charmbracelet/x/powernap/pkg/lsp"
	"github.com/charmbracelet/x/powernap/pkg/lsp/protocol"
	"github.com/rs/zerolog/log"
)

// Severity constants matching LSP DiagnosticSeverity.
const (
	SeverityError   = 1
	SeverityWarning = 2
)

// publishDebounce is how long to wait after a publishDiagnostics burst
// before treating the server's output as settled. Servers often publish
// several times while re-analyzing a changed file.
const publishDebounce = 150 * time.Millisecond

// Client wraps one powernap LSP client. Diagnostics arrive asynchronously
// via publishDiagnostics; published is signaled per-URI so a waiter for one
// file isn't woken (or its debounce reset) by chatter about another.
type Client struct {
	inner      *powernap.Client
	serverName string

	mu        sync.Mutex
	diags     map[string][]protocol.Diagnostic // uri -> latest diagnostics
	versions  map[string]int                   // uri -> document version
	published chan string                      // uri that just received diagnostics
}

// newClient spawns a language server process and wires its notifications.
func newClient(serverName string, cfg powernap.ClientConfig) (*Client, error) {
	inner, err := powernap.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("lsp: start %s: %w", serverName, err)
	}

	c := &Client{
		inner:      inner,
		serverName: serverName,
		diags:      make(map[string][]protocol.Diagnostic),
		versions:   make(map[string]int),
		published:  make(chan string, 16),
	}

	// Register publishDiagnostics handler before Initialize.
	inner.RegisterNotificationHandler(
		"textDocument/publishDiagnostics",
		func(_ context.Context, _ string, params json.RawMessage) {
			var p protocol.PublishDiagnosticsParams
			if err := json.Unmarshal(params, &p); err != nil {
				log.Error().Err(err).Str("server", serverName).Msg("lsp: unmarshal diagnostics")
				return
			}
			uri := string(p.URI)
			c.mu.Lock()
			c.diags[uri] = p.Diagnostics
			c.mu.Unlock()
			log.Debug().Str("server", serverName).Str("uri", uri).Int("count", len(p.Diagnostics)).Msg("lsp: diagnostics published")

			// Non-blocking signal; a full channel just means waiters will
			// read the map slightly later.
			select {
			case c.published <- uri:
			default:
			}
		},
	)

	// Stub handlers so the server doesn't error on common requests.
	inner.RegisterHandler("window/workDoneProgress/create",
		func(_ context.Context, _ string, _ json.RawMessage) (any, error) {
			return nil, nil
		},
	)
	inner.RegisterNotificationHandler("$/progress",
		func(_ context.Context, _ string, _ json.RawMessage) {},
	)
	inner.RegisterNotificationHandler("window/logMessage",
		func(_ context.Context, _ string, _ json.RawMessage) {},
	)
	inner.RegisterHandler("client/registerCapability",
		func(_ context.Context, _ string, _ json.RawMessage) (any, error) {
			return nil, nil
		},
	)

	return c, nil
}

// initialize sends initialize+initialized to the server.
func (c *Client) initialize(ctx context.Context) error {
	return c.inner.Initialize(ctx, false)
}

// openFile reads a file from disk and sends textDocument/didOpen, or
// didChange when the document is already open.
func (c *Client) openFile(ctx context.Context, absPath string) error {
	uri := string(protocol.URIFromPath(absPath))

	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("lsp: read %s: %w", absPath, err)
	}

	c.mu.Lock()
	version, alreadyOpen := c.versions[uri]
	if alreadyOpen {
		version++
	}
	c.versions[uri] = version
	c.mu.Unlock()

	if alreadyOpen {
		change := protocol.TextDocumentContentChangeEvent{
			Value: protocol.TextDocumentContentChangeWholeDocument{
				Text: string(data),
			},
		}
		return c.inner.NotifyDidChangeTextDocument(ctx, uri, version, []protocol.TextDocumentContentChangeEvent{change})
	}

	lang := powernap.DetectLanguage(absPath)
	return c.inner.NotifyDidOpenTextDocument(ctx, uri, string(lang), version, string(data))
}

// notifyAndWait pushes the file's current content to the server, then
// blocks until its diagnostics settle (debounced) or timeout expires.
func (c *Client) notifyAndWait(ctx context.Context, absPath string, timeout time.Duration) ([]protocol.Diagnostic, error) {
	uri := string(protocol.URIFromPath(absPath))

	// Drain signals from before this change so an old publish can't
	// satisfy the wait.
	for {
		select {
		case <-c.published:
			continue
		default:
		}
		break
	}

	if err := c.openFile(ctx, absPath); err != nil {
		return nil, err
	}

	deadline := time.After(timeout)
	var settle *time.Timer
	for {
		select {
		case published := <-c.published:
			if published != uri {
				continue
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.NewTimer(publishDebounce)
		case <-timerChan(settle):
			return c.snapshot(uri), nil
		case <-deadline:
			return c.snapshot(uri), nil
		case <-ctx.Done():
			return c.snapshot(uri), nil
		}
	}
}

func (c *Client) snapshot(uri string) []protocol.Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diags[uri]
}

// close gracefully shuts down the language server.
func (c *Client) close(ctx context.Context) error {
	if err := c.inner.Shutdown(ctx); err != nil {
		c.inner.Kill()
		return fmt.Errorf("lsp: shutdown %s: %w", c.serverName, err)
	}
	return c.inner.Exit()
}

// timerChan returns the timer's channel, or a nil channel if timer is nil.
func timerChan(t *time.Timer) <-chan time.Time {
	if t != nil {
		return t.C
	}
	return nil
}
