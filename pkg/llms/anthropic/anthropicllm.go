package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/x/values"
)

var (
	ErrEmptyResponse          = errors.New("anthropic: no response")
	ErrMissingToken           = errors.New("anthropic: missing API key, set it in the ANTHROPIC_API_KEY environment variable")
	ErrInvalidContentType     = errors.New("anthropic: invalid content type")
	ErrUnsupportedMessageType = errors.New("anthropic: unsupported message type")
	ErrUnsupportedContentType = errors.New("anthropic: unsupported content type")
)

const (
	DefaultMaxTokens      = 4096
	DefaultRequestTimeout = 5 * time.Minute
)

type LLM struct {
	Client  *anthropic.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Anthropic LLM client using the official Anthropic SDK.
// If no token is provided via options, the ANTHROPIC_API_KEY environment
// variable is used.
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Token:          os.Getenv(TokenEnvVarName),
		HttpClient:     http.DefaultClient,
		MaxTokens:      DefaultMaxTokens,
		RequestTimeout: DefaultRequestTimeout,
	}

	for _, opt := range opts {
		opt(options)
	}

	if len(options.Token) == 0 {
		return nil, ErrMissingToken
	}
	if options.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithMaxRetries(2),
		option.WithRequestTimeout(options.RequestTimeout),
	}
	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}
	if options.HttpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HttpClient))
	}

	client := anthropic.NewClient(sdkOpts...)
	return &LLM{
		Client:  &client,
		Options: options,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: o.Options.Model,
	}
	for _, opt := range options {
		opt(&opts)
	}

	params, err := BuildParams(messages, &opts, o.Options.MaxTokens)
	if err != nil {
		return nil, err
	}

	result, err := o.Client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to create message")
	}
	return FromMessage(result)
}

// BuildParams converts the conversation and call options to the request
// parameters of the Messages API.
func BuildParams(messages []llms.Message, opts *llms.CallOptions, defaultMaxTokens int64) (anthropic.MessageNewParams, error) {
	sdkMessages, systemPrompt, err := ProcessMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, errors.WithMessage(err, "anthropic: failed to process messages")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  sdkMessages,
		MaxTokens: values.NumbersCoalesce(int64(opts.MaxTokens), values.NumbersCoalesce(defaultMaxTokens, DefaultMaxTokens)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: systemPrompt,
			},
		}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if tools := ToTools(opts.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	return params, nil
}

// FromMessage converts a Messages API response. Text blocks and tool_use
// blocks become separate choices in response order.
func FromMessage(result *anthropic.Message) (*llms.ContentResponse, error) {
	if result == nil {
		return nil, ErrEmptyResponse
	}

	info := func(i int) map[string]any {
		return map[string]any{
			"InputTokens":  result.Usage.InputTokens,
			"OutputTokens": result.Usage.OutputTokens,
			"TotalTokens":  result.Usage.InputTokens + result.Usage.OutputTokens,
			"ID":           result.ID,
			"Index":        i,
		}
	}

	choices := make([]*llms.ContentChoice, 0, len(result.Content))
	for i, block := range result.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			choices = append(choices, &llms.ContentChoice{
				Content:        content.Text,
				StopReason:     string(result.StopReason),
				GenerationInfo: info(i),
			})
		case anthropic.ToolUseBlock:
			args := string(content.Input)
			if args == "" {
				args = "{}"
			}
			choices = append(choices, &llms.ContentChoice{
				ToolCalls: []llms.ToolCall{
					{
						ID:   content.ID,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      content.Name,
							Arguments: args,
						},
					},
				},
				StopReason:     string(result.StopReason),
				GenerationInfo: info(i),
			})
		case anthropic.ThinkingBlock, anthropic.RedactedThinkingBlock:
			// not surfaced to the conversation
		default:
			return nil, errors.WithMessagef(ErrUnsupportedContentType, "anthropic: %T", content)
		}
	}
	if len(choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

// ToTools converts tool definitions to Anthropic SDK tool parameters.
// Returns nil if no tools are provided.
func ToTools(tools []llms.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	sdkTools := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}

		properties := map[string]any{}
		var required []string
		if params := tool.Function.Parameters; params != nil {
			if params.Properties != nil {
				for pair := params.Properties.Oldest(); pair != nil; pair = pair.Next() {
					properties[pair.Key] = pair.Value
				}
			}
			required = params.Required
		}

		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: properties,
		}
		if len(required) > 0 {
			inputSchema.Required = required
		}

		sdkTools = append(sdkTools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Function.Name,
				Description: anthropic.String(tool.Function.Description),
				InputSchema: inputSchema,
			},
		})
	}
	return sdkTools
}

// ProcessMessages converts the conversation to Anthropic message parameters.
// System messages are joined and returned separately; tool results are sent
// as user messages with tool_result blocks.
func ProcessMessages(messages []llms.Message) ([]anthropic.MessageParam, string, error) {
	chatMessages := make([]anthropic.MessageParam, 0, len(messages))
	var system []string
	for _, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}
		switch msg.Role {
		case llms.RoleSystem:
			text, ok := msg.Parts[0].(llms.TextContent)
			if !ok {
				return nil, "", errors.WithMessage(ErrInvalidContentType, "anthropic: for system message")
			}
			system = append(system, text.Text)
		case llms.RoleHuman:
			m, err := humanMessage(msg)
			if err != nil {
				return nil, "", err
			}
			chatMessages = append(chatMessages, m)
		case llms.RoleAI:
			m, err := aiMessage(msg)
			if err != nil {
				return nil, "", err
			}
			chatMessages = append(chatMessages, m)
		case llms.RoleTool:
			m, err := toolMessage(msg)
			if err != nil {
				return nil, "", err
			}
			chatMessages = append(chatMessages, m)
		default:
			return nil, "", errors.WithMessagef(ErrUnsupportedMessageType, "anthropic: %v", msg.Role)
		}
	}
	return chatMessages, strings.Join(system, "\n"), nil
}

func humanMessage(msg llms.Message) (anthropic.MessageParam, error) {
	var contents []anthropic.ContentBlockParamUnion
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			contents = append(contents, anthropic.NewTextBlock(p.Text))
		case llms.BinaryContent:
			if !strings.HasPrefix(p.MIMEType, "image/") {
				return anthropic.MessageParam{}, errors.Errorf("anthropic: unsupported binary content type: %s", p.MIMEType)
			}
			contents = append(contents, anthropic.NewImageBlockBase64(p.MIMEType, base64.StdEncoding.EncodeToString(p.Data)))
		default:
			return anthropic.MessageParam{}, errors.Errorf("anthropic: unsupported human message part type: %T", part)
		}
	}
	return anthropic.NewUserMessage(contents...), nil
}

func aiMessage(msg llms.Message) (anthropic.MessageParam, error) {
	var contents []anthropic.ContentBlockParamUnion
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.ToolCall:
			var input json.RawMessage
			args := values.StringsCoalesce(p.Arguments(), "{}")
			if err := json.Unmarshal([]byte(args), &input); err != nil {
				// the model produced invalid JSON; keep the turn shape intact
				input = json.RawMessage("{}")
			}
			contents = append(contents, anthropic.NewToolUseBlock(p.ID, input, p.Name()))
		case llms.TextContent:
			if p.Text != "" {
				contents = append(contents, anthropic.NewTextBlock(p.Text))
			}
		default:
			return anthropic.MessageParam{}, errors.Errorf("anthropic: unsupported AI message part type: %T", part)
		}
	}
	if len(contents) == 0 {
		return anthropic.MessageParam{}, errors.New("anthropic: no valid content in AI message")
	}
	return anthropic.NewAssistantMessage(contents...), nil
}

func toolMessage(msg llms.Message) (anthropic.MessageParam, error) {
	var contents []anthropic.ContentBlockParamUnion
	for _, part := range msg.Parts {
		resp, ok := part.(llms.ToolCallResponse)
		if !ok {
			return anthropic.MessageParam{}, errors.WithMessagef(ErrInvalidContentType, "anthropic: for tool message part type: %T", part)
		}
		contents = append(contents, anthropic.NewToolResultBlock(resp.ToolCallID, resp.Content, false))
	}
	return anthropic.NewUserMessage(contents...), nil
}
