package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "openai")

var (
	// ErrEmptyResponse is returned when the API returns no choices.
	ErrEmptyResponse = errors.New("openai: no response")
	// ErrMissingToken is returned when no API key is configured.
	ErrMissingToken = errors.New("openai: missing API key")
)

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleTool      = "tool"
)

// LLM is a Chat Completions client for OpenAI and OpenAI compatible providers.
type LLM struct {
	Client   *openai.Client
	model    string
	provider llms.ProviderType
	opts     *options
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		token:          os.Getenv(tokenEnvVarName),
		model:          os.Getenv(modelEnvVarName),
		baseURL:        os.Getenv(baseURLEnvVarName),
		organization:   os.Getenv(organizationEnvVarName),
		provider:       llms.ProviderOpenAI,
		httpClient:     http.DefaultClient,
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.token == "" {
		return nil, ErrMissingToken
	}
	if o.model == "" {
		return nil, errors.New("openai: model is required")
	}

	switch o.provider {
	case llms.ProviderOpenRouter:
		o.baseURL = values.StringsCoalesce(o.baseURL, DefaultOpenRouterBaseURL)
	case llms.ProviderPerplexity:
		o.baseURL = values.StringsCoalesce(o.baseURL, DefaultPerplexityBaseURL)
	case llms.ProviderOpenAI:
		o.baseURL = values.StringsCoalesce(o.baseURL, DefaultBaseURL)
	default:
		return nil, errors.Errorf("openai: unsupported provider: %s", o.provider)
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(o.token),
		option.WithBaseURL(strings.TrimSuffix(o.baseURL, "/") + "/"),
		option.WithMaxRetries(2),
		option.WithRequestTimeout(o.requestTimeout),
	}
	if o.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(o.httpClient))
	}
	if o.organization != "" && o.provider == llms.ProviderOpenAI {
		sdkOpts = append(sdkOpts, option.WithOrganization(o.organization))
	}
	for k, v := range o.headers {
		sdkOpts = append(sdkOpts, option.WithHeader(k, v))
	}

	client := openai.NewClient(sdkOpts...)
	return &LLM{
		Client:   &client,
		model:    o.model,
		provider: o.provider,
		opts:     o,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return o.provider
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: o.model,
	}
	for _, opt := range options {
		opt(&opts)
	}

	params, err := BuildParams(messages, &opts, o.opts.maxTokens)
	if err != nil {
		return nil, err
	}
	if !o.provider.Supports(llms.CapabilityFunctionCalling) {
		params.Tools = nil
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"provider", o.provider,
		"model", opts.Model,
		"messages", len(params.Messages),
		"tools", len(params.Tools),
	)

	result, err := o.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to create chat completion", strings.ToLower(string(o.provider)))
	}
	return FromChatCompletion(result)
}

// BuildParams converts the conversation and call options to Chat Completions
// request parameters.
func BuildParams(messages []llms.Message, opts *llms.CallOptions, defaultMaxTokens int64) (openai.ChatCompletionNewParams, error) {
	msgs, err := ToMessages(messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(opts.Model),
		Messages: msgs,
	}
	if n := values.NumbersCoalesce(int64(opts.MaxTokens), defaultMaxTokens); n > 0 {
		params.MaxCompletionTokens = openai.Int(n)
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}

	tools, err := ToTools(opts.Tools)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	if len(tools) > 0 {
		params.Tools = tools
		if choice, ok := opts.ToolChoice.(string); ok && choice != "" {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(choice)}
		}
	}
	return params, nil
}

// FromChatCompletion converts a Chat Completions response.
func FromChatCompletion(result *openai.ChatCompletion) (*llms.ContentResponse, error) {
	if result == nil || len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"CompletionTokens": result.Usage.CompletionTokens,
				"PromptTokens":     result.Usage.PromptTokens,
				"TotalTokens":      result.Usage.TotalTokens,
				"ID":               result.ID,
			},
		}
		for _, tc := range c.Message.ToolCalls {
			if tc.Type != "" && tc.Type != "function" {
				continue
			}
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tc.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

// ToMessages converts the conversation to Chat Completions messages.
// A tool message with several responses becomes several tool messages.
func ToMessages(messages []llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	res := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, mc := range messages {
		switch mc.Role {
		case llms.RoleSystem:
			res = append(res, openai.SystemMessage(textOf(mc)))
		case llms.RoleHuman:
			msg, err := userMessage(mc)
			if err != nil {
				return nil, err
			}
			res = append(res, msg)
		case llms.RoleAI:
			res = append(res, assistantMessage(mc))
		case llms.RoleTool:
			for _, part := range mc.Parts {
				resp, ok := part.(llms.ToolCallResponse)
				if !ok {
					return nil, errors.Errorf("openai: expected part of type ToolCallResponse for role %v, got %T", mc.Role, part)
				}
				res = append(res, openai.ToolMessage(resp.Content, resp.ToolCallID))
			}
		default:
			return nil, errors.Wrapf(llms.ErrUnexpectedRole, "openai: role %v not supported", mc.Role)
		}
	}
	return res, nil
}

func textOf(mc llms.Message) string {
	var parts []string
	for _, p := range mc.Parts {
		if t, ok := p.(llms.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func userMessage(mc llms.Message) (openai.ChatCompletionMessageParamUnion, error) {
	hasBinary := false
	for _, p := range mc.Parts {
		if _, ok := p.(llms.BinaryContent); ok {
			hasBinary = true
			break
		}
	}
	if !hasBinary {
		return openai.UserMessage(textOf(mc)), nil
	}

	var parts []openai.ChatCompletionContentPartUnionParam
	for _, p := range mc.Parts {
		switch typ := p.(type) {
		case llms.TextContent:
			parts = append(parts, openai.TextContentPart(typ.Text))
		case llms.BinaryContent:
			if !strings.HasPrefix(typ.MIMEType, "image/") {
				return openai.ChatCompletionMessageParamUnion{}, errors.Errorf("openai: unsupported binary content type: %s", typ.MIMEType)
			}
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: typ.String(),
			}))
		default:
			return openai.ChatCompletionMessageParamUnion{}, errors.Errorf("openai: unsupported human message part type: %T", p)
		}
	}
	return openai.UserMessage(parts), nil
}

func assistantMessage(mc llms.Message) openai.ChatCompletionMessageParamUnion {
	msg := openai.ChatCompletionAssistantMessageParam{}
	if text := textOf(mc); text != "" {
		msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)}
	}
	for _, tc := range mc.ToolCalls() {
		msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name(),
					Arguments: values.StringsCoalesce(tc.Arguments(), "{}"),
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

// ToTools converts tool definitions to Chat Completions function tools.
func ToTools(tools []llms.Tool) ([]openai.ChatCompletionToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	res := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		if t.Type != "" && t.Type != "function" {
			return nil, errors.Errorf("openai: tool type %v not supported", t.Type)
		}
		if t.Function == nil {
			continue
		}

		parameters := shared.FunctionParameters{
			"type":       "object",
			"properties": map[string]any{},
		}
		if t.Function.Parameters != nil {
			js, err := json.Marshal(t.Function.Parameters)
			if err != nil {
				return nil, errors.Wrapf(err, "openai: failed to encode parameters of %s", t.Function.Name)
			}
			if err := json.Unmarshal(js, &parameters); err != nil {
				return nil, errors.Wrapf(err, "openai: failed to decode parameters of %s", t.Function.Name)
			}
		}

		def := shared.FunctionDefinitionParam{
			Name:       t.Function.Name,
			Parameters: parameters,
		}
		if t.Function.Description != "" {
			def.Description = openai.String(t.Function.Description)
		}
		if t.Function.Strict {
			def.Strict = openai.Bool(true)
		}
		res = append(res, openai.ChatCompletionFunctionTool(def))
	}
	return res, nil
}
