package assistants

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/mcpclient"
	"github.com/effective-security/mcpchat/normalizer"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/effective-security/mcpchat/pkg/metricskey"
	xslices "github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// Assistant drives the conversation between the model and the MCP tools.
// The history starts with the system message built by Init, turns are
// executed one at a time.
type Assistant struct {
	LLM llms.Model

	registry ToolRegistry
	cfg      *Config

	lock         sync.Mutex
	textProtocol bool
	tools        []mcpclient.ToolDescriptor
	llmToolDefs  []llms.Tool
	history      []llms.Message
}

var _ IAssistant = (*Assistant)(nil)

// NewAssistant returns Assistant using the registry for tool calls.
// The text protocol is used when the provider does not support function calling.
func NewAssistant(llmModel llms.Model, registry ToolRegistry, options ...Option) *Assistant {
	cfg := NewConfig(options...)
	return &Assistant{
		LLM:          llmModel,
		registry:     registry,
		cfg:          cfg,
		textProtocol: cfg.TextProtocol || !llmModel.GetProviderType().Supports(llms.CapabilityFunctionCalling),
	}
}

// Name returns the name of the Assistant.
func (a *Assistant) Name() string {
	return a.cfg.Name
}

// Config returns the configuration of the Assistant.
func (a *Assistant) Config() *Config {
	return a.cfg
}

// UsesTextProtocol returns true if the tool calls are parsed from the reply text.
func (a *Assistant) UsesTextProtocol() bool {
	return a.textProtocol
}

// Tools returns the tools fetched by Init.
func (a *Assistant) Tools() []mcpclient.ToolDescriptor {
	a.lock.Lock()
	defer a.lock.Unlock()
	return slices.Clone(a.tools)
}

// History returns a copy of the conversation.
func (a *Assistant) History() []llms.Message {
	a.lock.Lock()
	defer a.lock.Unlock()
	return slices.Clone(a.history)
}

// Reset drops the conversation, keeping the system message.
func (a *Assistant) Reset() {
	a.lock.Lock()
	defer a.lock.Unlock()
	if len(a.history) > 1 {
		a.history = slices.Clone(a.history[:1])
	}
}

// Init fetches the tools from the registry and starts a new conversation
// with the system message describing them.
func (a *Assistant) Init(ctx context.Context) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.init(ctx)
}

func (a *Assistant) init(ctx context.Context) {
	tools := a.registry.ListAllTools(ctx)

	var defs []llms.Tool
	if !a.textProtocol {
		defs = make([]llms.Tool, 0, len(tools))
		seen := make(map[string]struct{}, len(tools))
		for _, t := range tools {
			// calls are dispatched to the first server with the tool
			if _, ok := seen[t.Name]; ok {
				continue
			}
			seen[t.Name] = struct{}{}
			defs = append(defs, t.LLMTool())
		}
	}

	a.tools = tools
	a.llmToolDefs = defs
	a.history = []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, SystemPrompt(tools, a.textProtocol)),
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"assistant", a.Name(),
		"status", "initialized",
		"model", a.LLM.GetName(),
		"tools", len(tools),
		"text_protocol", a.textProtocol)
}

// Call runs one turn: the input is added to the conversation, and the model
// is queried until it replies without tool calls. Tool call failures are
// reported to the model as the tool result. An error is returned only when
// the model call fails, in which case the turn is discarded from the history.
func (a *Assistant) Call(ctx context.Context, input string) (string, error) {
	started := time.Now()
	defer metricskey.PerfAssistantCall.MeasureSince(started, a.Name())

	a.lock.Lock()
	defer a.lock.Unlock()

	if len(a.history) == 0 {
		a.init(ctx)
	}

	callback := a.cfg.CallbackHandler
	if callback != nil {
		callback.OnAssistantStart(ctx, a, input)
	}

	answer, err := a.run(ctx, input)
	if err != nil {
		metricskey.StatsAssistantCallsFailed.IncrCounter(1, a.Name())
		if callback != nil {
			callback.OnAssistantError(ctx, a, input, err, slices.Clone(a.history))
		}
		return "", err
	}
	metricskey.StatsAssistantCallsSucceeded.IncrCounter(1, a.Name())
	if callback != nil {
		callback.OnAssistantEnd(ctx, a, input, answer, slices.Clone(a.history))
	}
	return answer, nil
}

func (a *Assistant) run(ctx context.Context, input string) (string, error) {
	turnStart := len(a.history)
	a.history = append(a.history, llms.MessageFromTextParts(llms.RoleHuman, input))

	callOpts := a.cfg.GetCallOptions(a.llmToolDefs)

	for iteration := 0; ; iteration++ {
		resp, err := a.generate(ctx, callOpts)
		if err != nil {
			a.history = a.history[:turnStart]
			return "", err
		}

		calls := a.toolCalls(resp)
		if len(calls) == 0 {
			answer := resp.Content()
			a.finish(ctx, input, answer)
			return answer, nil
		}

		if iteration >= a.cfg.MaxIterations {
			metricskey.StatsAssistantCallsTruncated.IncrCounter(1, a.Name())
			logger.ContextKV(ctx, xlog.WARNING,
				"assistant", a.Name(),
				"status", "max_iterations_exceeded",
				"input", xslices.StringUpto(input, 64),
				"iterations", iteration,
				"dropped_tool_calls", len(calls))

			answer := fmt.Sprintf("Stopped after %d tool-call iterations without a final answer.", a.cfg.MaxIterations)
			a.finish(ctx, input, answer)
			return answer, nil
		}

		a.dispatch(ctx, resp, calls)
	}
}

// finish appends the answer and mirrors the turn to the store.
func (a *Assistant) finish(ctx context.Context, input, answer string) {
	aiMessage := llms.MessageFromTextParts(llms.RoleAI, answer)
	a.history = append(a.history, aiMessage)

	if a.cfg.Store == nil {
		return
	}
	chatID := chatmodel.GetChatID(ctx)
	if chatID == "" {
		return
	}
	err := a.cfg.Store.Add(ctx, llms.MessageFromTextParts(llms.RoleHuman, input), aiMessage)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"assistant", a.Name(),
			"chat_id", chatID,
			"reason", "store",
			"err", err.Error())
		return
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"assistant", a.Name(),
		"chat_id", chatID,
		"status", "added_message_history",
		"human", xslices.StringUpto(input, 64),
		"ai", xslices.StringUpto(answer, 64))
}

func (a *Assistant) generate(ctx context.Context, callOpts []llms.CallOption) (*llms.ContentResponse, error) {
	assistantName := a.Name()
	modelName := a.LLM.GetName()
	callback := a.cfg.CallbackHandler

	if callback != nil {
		callback.OnAssistantLLMCallStart(ctx, a, a.LLM, a.history)
	}

	bytesSent := llmutils.CountMessagesContentSize(a.history)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(a.history)), assistantName, modelName)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), assistantName, modelName)

	resp, err := a.LLM.GenerateContent(ctx, slices.Clone(a.history), callOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to generate content from LLM")
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.Newf("assistant %s: LLM returned empty response with no choices", assistantName)
	}

	if callback != nil {
		callback.OnAssistantLLMCallEnd(ctx, a, a.LLM, resp)
	}

	bytesReceived := llmutils.CountResponseContentSize(resp)
	metricskey.StatsLLMBytesReceived.IncrCounter(float64(bytesReceived), assistantName, modelName)

	tokensIn, tokensOut := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), assistantName, modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), assistantName, modelName)

	logger.ContextKV(ctx, xlog.DEBUG,
		"assistant", assistantName,
		"status", "llm_response",
		"choices_count", len(resp.Choices),
		"bytes_sent", bytesSent,
		"bytes_received", bytesReceived)

	return resp, nil
}

// toolCalls returns the tool calls requested by the model.
func (a *Assistant) toolCalls(resp *llms.ContentResponse) []llms.ToolCall {
	if a.textProtocol {
		if tc, ok := ParseTextToolCall(resp.Content()); ok {
			return []llms.ToolCall{tc}
		}
		return nil
	}
	return resp.ToolCalls()
}

// dispatch executes the tool calls in the order received and appends
// the assistant message and one result message per call.
func (a *Assistant) dispatch(ctx context.Context, resp *llms.ContentResponse, calls []llms.ToolCall) {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("%s_%d", calls[i].Name(), i)
		}
		calls[i].Type = values.StringsCoalesce(calls[i].Type, "function")

		logger.ContextKV(ctx, xlog.DEBUG,
			"assistant", a.Name(),
			"status", "tool_call_found",
			"tool_call_id", calls[i].ID,
			"tool_call_name", calls[i].Name())
	}

	if a.textProtocol {
		a.history = append(a.history, llms.MessageFromTextParts(llms.RoleAI, resp.Content()))
	} else {
		a.history = append(a.history, llms.MessageFromToolCalls(llms.RoleAI, calls...))
	}

	for _, call := range calls {
		content := a.executeToolCall(ctx, call)

		logger.ContextKV(ctx, xlog.DEBUG,
			"assistant", a.Name(),
			"status", "tool_call_response",
			"tool_call_id", call.ID,
			"tool_name", call.Name(),
			"content_length", len(content))

		if a.textProtocol {
			a.history = append(a.history, llms.MessageFromTextParts(llms.RoleHuman, "Tool execution result: "+content))
			continue
		}
		a.history = append(a.history, llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
			ToolCallID: call.ID,
			Name:       call.Name(),
			Content:    content,
		}))
	}
}

// executeToolCall returns the content of the tool message for the call.
func (a *Assistant) executeToolCall(ctx context.Context, call llms.ToolCall) string {
	callback := a.cfg.CallbackHandler
	toolName := call.Name()

	args, err := ParseArguments(call.Arguments())
	if err != nil {
		merr := &mcpclient.MalformedArgumentsError{Tool: toolName, Err: err}
		metricskey.StatsAssistantLLMParseErrors.IncrCounter(1, a.Name())
		logger.ContextKV(ctx, xlog.WARNING,
			"assistant", a.Name(),
			"status", "malformed_arguments",
			"tool", toolName,
			"arguments", xslices.StringUpto(call.Arguments(), 128),
			"err", err.Error())
		if callback != nil {
			callback.OnToolError(ctx, a, "", call, merr)
		}
		return merr.Error()
	}

	owner, err := a.registry.FindOwner(toolName)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"assistant", a.Name(),
			"status", "tool_not_found",
			"tool", toolName)
		if callback != nil {
			callback.OnToolNotFound(ctx, a, toolName)
		}
		return err.Error()
	}

	server := owner.Name()
	if callback != nil {
		callback.OnToolStart(ctx, a, server, call)
	}

	res, err := owner.ExecuteTool(ctx, toolName, args, a.cfg.RetryPolicy)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"assistant", a.Name(),
			"status", "tool_call_failed",
			"server", server,
			"tool", toolName,
			"err", err.Error())
		if callback != nil {
			callback.OnToolError(ctx, a, server, call, err)
		}
		return "Error executing tool: " + err.Error()
	}

	normalizer.LogProgress(toolName, res)
	content := a.cfg.Normalizer.Normalize(toolName, res)
	if callback != nil {
		callback.OnToolEnd(ctx, a, server, call, content)
	}
	return content
}

// ParseArguments parses the JSON arguments of a tool call.
// An empty or null payload means no arguments.
func ParseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, errors.WithStack(err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
