package assistants_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/mcpclient"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
)

var jpegPayload = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 0x4a, 0x46, 0x49, 0x46}

type recorder struct {
	lock   sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) Events() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.events...)
}

// newRegistry returns initialized registry with server A providing
// search, disk and fail tools, and server B providing photo
func newRegistry(t *testing.T, rec *recorder) *mcpclient.Registry {
	a := server.NewMCPServer("A", "1.0.0")
	a.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Search the web"),
		mcp.WithString("q", mcp.Required(), mcp.Description("Query")),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := req.GetString("q", "")
		rec.add("A:search:%s", q)
		return mcp.NewToolResultText("found " + q), nil
	})
	a.AddTool(mcp.NewTool("disk",
		mcp.WithDescription("Check the disk"),
	), func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rec.add("A:disk")
		return mcp.NewToolResultError("disk full"), nil
	})
	a.AddTool(mcp.NewTool("fail",
		mcp.WithDescription("Always fails"),
	), func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rec.add("A:fail")
		return nil, errors.New("backend unavailable")
	})

	b := server.NewMCPServer("B", "1.0.0")
	b.AddTool(mcp.NewTool("photo",
		mcp.WithDescription("Take a photo"),
	), func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rec.add("B:photo")
		return mcp.NewToolResultImage("snapshot", base64.StdEncoding.EncodeToString(jpegPayload), "image/jpeg"), nil
	})

	return startRegistry(t, map[string]*server.MCPServer{"A": a, "B": b}, []mcpclient.NamedServer{
		{Name: "A", Config: mcpclient.ServerConfig{Command: "server-a"}},
		{Name: "B", Config: mcpclient.ServerConfig{URL: "http://b.local/mcp"}},
	})
}

// startRegistry returns initialized registry connected in process to the servers
func startRegistry(t *testing.T, servers map[string]*server.MCPServer, named []mcpclient.NamedServer) *mcpclient.Registry {
	dialer := func(ctx context.Context, name string, _ mcpclient.TransportKind, _ mcpclient.ServerConfig) (mcpclient.Client, error) {
		c, err := client.NewInProcessClient(servers[name])
		if err != nil {
			return nil, err
		}
		if err = c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}

	reg, err := mcpclient.NewRegistryFromConfig(named, mcpclient.WithDialer(dialer))
	require.NoError(t, err)
	require.NoError(t, reg.InitializeAll(context.Background()))
	t.Cleanup(func() {
		_ = reg.CleanupAll(context.Background())
	})
	return reg
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func toolCallsResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{ToolCalls: calls},
		},
	}
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: text, StopReason: "stop"},
		},
	}
}

// toolResponses returns the tool call responses of the history
func toolResponses(history []llms.Message) []llms.ToolCallResponse {
	var list []llms.ToolCallResponse
	for _, m := range history {
		for _, p := range m.Parts {
			if r, ok := p.(llms.ToolCallResponse); ok {
				list = append(list, r)
			}
		}
	}
	return list
}

func textOf(m llms.Message) string {
	var s string
	for _, p := range m.Parts {
		if tc, ok := p.(llms.TextContent); ok {
			s += tc.Text
		}
	}
	return s
}

// eventCallback records the callback events
type eventCallback struct {
	rec *recorder
}

var _ assistants.Callback = (*eventCallback)(nil)

func (c *eventCallback) OnAssistantStart(_ context.Context, agent assistants.IAssistant, input string) {
	c.rec.add("start:%s:%s", agent.Name(), input)
}

func (c *eventCallback) OnAssistantEnd(_ context.Context, _ assistants.IAssistant, _ string, answer string, _ []llms.Message) {
	c.rec.add("end:%s", answer)
}

func (c *eventCallback) OnAssistantError(_ context.Context, _ assistants.IAssistant, _ string, err error, _ []llms.Message) {
	c.rec.add("error:%s", err.Error())
}

func (c *eventCallback) OnAssistantLLMCallStart(_ context.Context, _ assistants.IAssistant, _ llms.Model, payload []llms.Message) {
	c.rec.add("llm_start:%d", len(payload))
}

func (c *eventCallback) OnAssistantLLMCallEnd(_ context.Context, _ assistants.IAssistant, _ llms.Model, resp *llms.ContentResponse) {
	c.rec.add("llm_end:%d", len(resp.ToolCalls()))
}

func (c *eventCallback) OnToolStart(_ context.Context, _ assistants.IAssistant, server string, call llms.ToolCall) {
	c.rec.add("tool_start:%s:%s", server, call.Name())
}

func (c *eventCallback) OnToolEnd(_ context.Context, _ assistants.IAssistant, server string, call llms.ToolCall, _ string) {
	c.rec.add("tool_end:%s:%s", server, call.Name())
}

func (c *eventCallback) OnToolError(_ context.Context, _ assistants.IAssistant, server string, call llms.ToolCall, _ error) {
	c.rec.add("tool_error:%s:%s", server, call.Name())
}

func (c *eventCallback) OnToolNotFound(_ context.Context, _ assistants.IAssistant, tool string) {
	c.rec.add("tool_not_found:%s", tool)
}
