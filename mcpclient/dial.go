package mcpclient

import (
	"context"
	"os/exec"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

//go:generate mockgen -source=dial.go -destination=../mocks/mockmcp/client_mock.gen.go -package mockmcp

// Client is the subset of the MCP client used by a Session.
type Client interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

var _ Client = (*client.Client)(nil)

// Dialer creates a started, not yet initialized, Client for the provider.
type Dialer func(ctx context.Context, name string, kind TransportKind, cfg ServerConfig) (Client, error)

// DefaultDialer connects with the mcp-go transports.
func DefaultDialer(ctx context.Context, name string, kind TransportKind, cfg ServerConfig) (Client, error) {
	switch kind {
	case TransportStdio:
		command, err := exec.LookPath(cfg.Command)
		if err != nil {
			return nil, errors.Wrapf(err, "command not found: %s", cfg.Command)
		}
		// the transport is started by the constructor
		c, err := client.NewStdioMCPClient(command, cfg.EnvList(), cfg.Args...)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return c, nil

	case TransportSSE:
		c, err := client.NewSSEMCPClient(cfg.URL, transport.WithHeaders(cfg.Headers))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		// the event stream lives until Close
		if err = c.Start(context.WithoutCancel(ctx)); err != nil {
			_ = c.Close()
			return nil, errors.Wrapf(err, "failed to start SSE stream")
		}
		return c, nil

	case TransportStreamableHTTP:
		c, err := client.NewStreamableHttpClient(cfg.URL,
			transport.WithHTTPHeaders(cfg.Headers),
			transport.WithHTTPTimeout(cfg.TimeoutDuration()),
		)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if err = c.Start(context.WithoutCancel(ctx)); err != nil {
			_ = c.Close()
			return nil, errors.Wrapf(err, "failed to start HTTP transport")
		}
		return c, nil
	}
	return nil, errors.Newf("unsupported transport for server %s: %s", name, kind)
}
