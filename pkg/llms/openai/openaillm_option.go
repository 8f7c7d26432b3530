package openai

import (
	"time"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/openai/openai-go/v3/option"
)

const (
	tokenEnvVarName        = "OPENAI_API_KEY"      //nolint:gosec
	modelEnvVarName        = "OPENAI_MODEL"        //nolint:gosec
	baseURLEnvVarName      = "OPENAI_BASE_URL"     //nolint:gosec
	organizationEnvVarName = "OPENAI_ORGANIZATION" //nolint:gosec
)

const (
	DefaultBaseURL           = "https://api.openai.com/v1"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultPerplexityBaseURL = "https://api.perplexity.ai"
	DefaultRequestTimeout    = 5 * time.Minute
)

type options struct {
	token          string
	model          string
	baseURL        string
	organization   string
	provider       llms.ProviderType
	httpClient     option.HTTPClient
	headers        map[string]string
	maxTokens      int64
	requestTimeout time.Duration
}

// Option is a functional option for the OpenAI client.
type Option func(*options)

// WithToken passes the OpenAI API token to the client. If not set, the token
// is read from the OPENAI_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.token = token
	}
}

// WithModel passes the OpenAI model to the client. If not set, the model
// is read from the OPENAI_MODEL environment variable.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithBaseURL passes the OpenAI base url to the client. If not set, the base url
// is read from the OPENAI_BASE_URL environment variable, then defaults per provider.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithOrganization passes the OpenAI organization to the client. If not set, the
// organization is read from the OPENAI_ORGANIZATION.
func WithOrganization(organization string) Option {
	return func(opts *options) {
		opts.organization = organization
	}
}

// WithProvider sets the OpenAI compatible provider. If not set, the default value
// is llms.ProviderOpenAI.
func WithProvider(provider llms.ProviderType) Option {
	return func(opts *options) {
		opts.provider = provider
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client option.HTTPClient) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(opts *options) {
		if opts.headers == nil {
			opts.headers = map[string]string{}
		}
		opts.headers[key] = value
	}
}

// WithMaxTokens sets the default completion budget.
func WithMaxTokens(n int64) Option {
	return func(opts *options) {
		opts.maxTokens = n
	}
}

// WithRequestTimeout sets the per request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.requestTimeout = d
	}
}
