package mcpclient_test

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/mcpclient"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// jpegPayload is a 10 bytes image
var jpegPayload = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 0x4a, 0x46, 0x49, 0x46}

type callRecorder struct {
	lock  sync.Mutex
	calls []string
}

func (r *callRecorder) record(call string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.calls = append(r.calls, call)
}

func (r *callRecorder) Calls() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.calls...)
}

// newTestServers returns provider A with the search tool, and B with the photo tool
func newTestServers(rec *callRecorder) map[string]*server.MCPServer {
	a := server.NewMCPServer("A", "1.0.0")
	a.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Search the web"),
		mcp.WithString("q", mcp.Required(), mcp.Description("Query")),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := req.GetString("q", "")
		rec.record("A:search:" + q)
		return mcp.NewToolResultText("found " + q), nil
	})

	b := server.NewMCPServer("B", "1.0.0")
	b.AddTool(mcp.NewTool("photo",
		mcp.WithDescription("Take a photo"),
	), func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rec.record("B:photo")
		return mcp.NewToolResultImage("snapshot", base64.StdEncoding.EncodeToString(jpegPayload), "image/jpeg"), nil
	})

	return map[string]*server.MCPServer{
		"A": a,
		"B": b,
	}
}

func inProcessDialer(servers map[string]*server.MCPServer) mcpclient.Dialer {
	return func(ctx context.Context, name string, _ mcpclient.TransportKind, _ mcpclient.ServerConfig) (mcpclient.Client, error) {
		srv, ok := servers[name]
		if !ok {
			return nil, errors.Newf("connection refused: %s", name)
		}
		c, err := client.NewInProcessClient(srv)
		if err != nil {
			return nil, err
		}
		if err = c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func staticDialer(c mcpclient.Client) mcpclient.Dialer {
	return func(context.Context, string, mcpclient.TransportKind, mcpclient.ServerConfig) (mcpclient.Client, error) {
		return c, nil
	}
}

func testServers() []mcpclient.NamedServer {
	return []mcpclient.NamedServer{
		{Name: "A", Config: mcpclient.ServerConfig{URL: "http://a.local/mcp"}},
		{Name: "B", Config: mcpclient.ServerConfig{URL: "http://b.local/sse", TransportType: "sse"}},
	}
}
