package anthropic

import (
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	TokenEnvVarName = "ANTHROPIC_API_KEY" //nolint:gosec
)

type Options struct {
	Token      string
	Model      string
	BaseURL    string
	HttpClient option.HTTPClient
	// MaxTokens is used when the call does not specify llms.WithMaxTokens.
	MaxTokens int64
	// RequestTimeout bounds a single Messages API call, retries included.
	RequestTimeout time.Duration
}

type Option func(*Options)

// WithToken passes the Anthropic API token to the client. If not set, the token
// is read from the ANTHROPIC_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *Options) {
		opts.Token = token
	}
}

// WithModel passes the Anthropic model to the client.
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithBaseURL passes the Anthropic base URL to the client.
// If not set, the default base URL is used.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client option.HTTPClient) Option {
	return func(opts *Options) {
		opts.HttpClient = client
	}
}

// WithMaxTokens sets the default completion budget.
func WithMaxTokens(n int64) Option {
	return func(opts *Options) {
		opts.MaxTokens = n
	}
}

// WithRequestTimeout sets the per request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.RequestTimeout = d
	}
}
