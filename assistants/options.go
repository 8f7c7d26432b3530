package assistants

import (
	"github.com/effective-security/mcpchat/mcpclient"
	"github.com/effective-security/mcpchat/normalizer"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/store"
)

// DefaultMaxIterations is the default number of tool-call rounds in one turn.
const DefaultMaxIterations = 10

// Option is a function that can be used to modify the behavior of the Assistant Config.
type Option func(*Config)

// Config of the Assistant.
type Config struct {
	// Name is used in logs and metrics.
	Name string

	// MaxIterations is the number of tool-call rounds allowed in one turn.
	MaxIterations int
	// RetryPolicy is used for every tool call.
	RetryPolicy mcpclient.RetryPolicy
	// TextProtocol forces tool calls to be described in the system prompt
	// and parsed from the reply text, even when the provider supports function calling.
	TextProtocol bool

	// CallbackHandler is the callback handler for the loop.
	CallbackHandler Callback
	// Store mirrors the user and assistant messages of each turn.
	Store store.MessageStore
	// Normalizer renders tool results.
	Normalizer *normalizer.Normalizer

	// Model is the model to use in an LLM call.
	Model    string
	modelSet bool

	// MaxTokens is the maximum number of tokens to generate to use in an LLM call.
	MaxTokens    int
	maxTokensSet bool

	// Temperature is the temperature for sampling to use in an LLM call, between 0 and 1.
	Temperature    float64
	temperatureSet bool
}

// NewConfig returns Config with defaults.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Name:          "mcpchat",
		MaxIterations: DefaultMaxIterations,
		RetryPolicy:   mcpclient.DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = normalizer.New()
	}
	return cfg
}

// WithName sets the name of the Assistant.
func WithName(name string) Option {
	return func(o *Config) {
		o.Name = name
	}
}

// WithMaxIterations sets the number of tool-call rounds allowed in one turn.
func WithMaxIterations(n int) Option {
	return func(o *Config) {
		o.MaxIterations = n
	}
}

// WithRetryPolicy sets the retry policy of tool calls.
func WithRetryPolicy(policy mcpclient.RetryPolicy) Option {
	return func(o *Config) {
		o.RetryPolicy = policy
	}
}

// WithTextProtocol forces the text protocol for tool calls.
func WithTextProtocol(enabled bool) Option {
	return func(o *Config) {
		o.TextProtocol = enabled
	}
}

// WithCallback allows setting a custom Callback Handler.
func WithCallback(callbackHandler Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callbackHandler
	}
}

// WithStore sets the message store.
func WithStore(st store.MessageStore) Option {
	return func(o *Config) {
		o.Store = st
	}
}

// WithNormalizer sets the result normalizer.
func WithNormalizer(n *normalizer.Normalizer) Option {
	return func(o *Config) {
		o.Normalizer = n
	}
}

// WithModel is an option for LLM.Call.
func WithModel(model string) Option {
	return func(o *Config) {
		o.Model = model
		o.modelSet = true
	}
}

// WithMaxTokens is an option for LLM.Call.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
		o.maxTokensSet = true
	}
}

// WithTemperature is an option for LLM.Call.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
		o.temperatureSet = true
	}
}

// GetCallOptions returns the LLM call options.
func (c *Config) GetCallOptions(tools []llms.Tool) []llms.CallOption {
	var opts []llms.CallOption
	if c.modelSet {
		opts = append(opts, llms.WithModel(c.Model))
	}
	if c.maxTokensSet {
		opts = append(opts, llms.WithMaxTokens(c.MaxTokens))
	}
	if c.temperatureSet {
		opts = append(opts, llms.WithTemperature(c.Temperature))
	}
	if len(tools) > 0 {
		opts = append(opts,
			llms.WithTools(tools),
			llms.WithToolChoice(string(llms.FunctionCallBehaviorAuto)),
		)
	}
	return opts
}
