package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llms/openai"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func TestNew(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("OPENAI_BASE_URL", "")

	_, err := openai.New(openai.WithModel("gpt-4o"))
	assert.ErrorIs(t, err, openai.ErrMissingToken)

	_, err = openai.New(openai.WithToken("tok"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model is required")

	_, err = openai.New(openai.WithToken("tok"), openai.WithModel("m"), openai.WithProvider(llms.ProviderAnthropic))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")

	llm, err := openai.New(
		openai.WithToken("tok"),
		openai.WithModel("openai/gpt-4o"),
		openai.WithProvider(llms.ProviderOpenRouter),
		openai.WithHeader("X-Title", "mcpchat"),
	)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", llm.GetName())
	assert.Equal(t, llms.ProviderOpenRouter, llm.GetProviderType())
}

func TestToMessages(t *testing.T) {
	t.Parallel()

	msgs, err := openai.ToMessages([]llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "sys"),
		llms.MessageFromTextParts(llms.RoleHuman, "find cats"),
		llms.MessageFromToolCalls(llms.RoleAI,
			llms.ToolCall{ID: "c1", FunctionCall: &llms.FunctionCall{Name: "search", Arguments: `{"q":"cats"}`}},
			llms.ToolCall{ID: "c2", FunctionCall: &llms.FunctionCall{Name: "photo"}},
		),
		llms.MessageFromParts(llms.RoleTool,
			llms.ToolCallResponse{ToolCallID: "c1", Name: "search", Content: "3 cats"},
			llms.ToolCallResponse{ToolCallID: "c2", Name: "photo", Content: "Image saved"},
		),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 2)
	assert.Equal(t, "{}", msgs[2].OfAssistant.ToolCalls[1].OfFunction.Function.Arguments)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
	assert.Equal(t, "c2", msgs[4].OfTool.ToolCallID)

	_, err = openai.ToMessages([]llms.Message{llms.MessageFromTextParts(llms.RoleTool, "x")})
	assert.Error(t, err)

	_, err = openai.ToMessages([]llms.Message{llms.MessageFromTextParts(llms.Role("function"), "x")})
	assert.ErrorIs(t, err, llms.ErrUnexpectedRole)
}

func TestToTools(t *testing.T) {
	t.Parallel()

	props := orderedmap.New[string, *jsonschema.Schema]()
	props.Set("query", &jsonschema.Schema{Type: "string"})

	tools, err := openai.ToTools([]llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "search",
				Description: "Search",
				Parameters:  &jsonschema.Schema{Type: "object", Properties: props, Required: []string{"query"}},
			},
		},
		{Type: "function", Function: &llms.FunctionDefinition{Name: "noargs"}},
	})
	require.NoError(t, err)
	require.Len(t, tools, 2)

	js, err := json.Marshal(tools[0])
	require.NoError(t, err)
	assert.Contains(t, string(js), `"name":"search"`)
	assert.Contains(t, string(js), `"required":["query"]`)

	js, err = json.Marshal(tools[1])
	require.NoError(t, err)
	assert.Contains(t, string(js), `"properties":{}`)

	_, err = openai.ToTools([]llms.Tool{{Type: "web_search"}})
	assert.Error(t, err)
}

func TestGenerateContent(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionWithToolCall))
	}))
	defer srv.Close()

	llm, err := openai.New(
		openai.WithToken("tok"),
		openai.WithModel("gpt-4o"),
		openai.WithBaseURL(srv.URL),
	)
	require.NoError(t, err)

	resp, err := llm.GenerateContent(context.Background(),
		[]llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "find cats")},
		llms.WithTools([]llms.Tool{{Type: "function", Function: &llms.FunctionDefinition{Name: "search"}}}),
		llms.WithToolChoice("auto"),
	)
	require.NoError(t, err)
	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "search", calls[0].Name())
	assert.Equal(t, `{"q":"cats"}`, calls[0].Arguments())
	assert.Equal(t, "tool_calls", resp.Choices[0].StopReason)

	assert.Equal(t, "gpt-4o", got["model"])
	assert.Equal(t, "auto", got["tool_choice"])
	assert.Len(t, got["tools"], 1)
}

func TestFromChatCompletion_Empty(t *testing.T) {
	t.Parallel()
	_, err := openai.FromChatCompletion(nil)
	assert.ErrorIs(t, err, openai.ErrEmptyResponse)
}

const completionWithToolCall = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "logprobs": null,
    "message": {
      "role": "assistant",
      "content": null,
      "refusal": null,
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "search", "arguments": "{\"q\":\"cats\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`
