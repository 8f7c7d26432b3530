package llmfactory

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/x/values"
)

// TokenEnvVarName is the provider independent API key variable.
const TokenEnvVarName = "LLM_API_KEY" //nolint:gosec

// ParseModelName splits a fully specified "provider/model-name" into the
// provider type and the model name. The model name may contain further
// slashes, as OpenRouter model names do.
func ParseModelName(fullName string) (llms.ProviderType, string, error) {
	provider, model, ok := strings.Cut(fullName, "/")
	if !ok || provider == "" || model == "" {
		return "", "", errors.Newf("model name must be in format 'provider/model-name', got: %s", fullName)
	}
	switch strings.ToLower(provider) {
	case "openai":
		return llms.ProviderOpenAI, model, nil
	case "anthropic":
		return llms.ProviderAnthropic, model, nil
	case "openrouter":
		return llms.ProviderOpenRouter, model, nil
	case "perplexity":
		return llms.ProviderPerplexity, model, nil
	}
	return "", "", errors.Newf("unsupported provider: %s", provider)
}

// ProviderFromModelName builds a provider configuration for a fully specified
// model name. The token is taken from the provider specific variable,
// falling back to LLM_API_KEY. OpenRouter picks up OPENROUTER_BASE_URL,
// OPENROUTER_SITE_URL and OPENROUTER_SITE_NAME.
func ProviderFromModelName(fullName string) (*ProviderConfig, error) {
	pt, model, err := ParseModelName(fullName)
	if err != nil {
		return nil, err
	}

	cfg := &ProviderConfig{
		Name:            strings.ToLower(string(pt)),
		DefaultModel:    model,
		AvailableModels: []string{model},
		OpenAI: OpenAIConfig{
			APIType: string(pt),
		},
	}

	switch pt {
	case llms.ProviderOpenAI:
		cfg.Token = values.StringsCoalesce(os.Getenv("OPENAI_API_KEY"), os.Getenv(TokenEnvVarName))
	case llms.ProviderAnthropic:
		cfg.Token = values.StringsCoalesce(os.Getenv("ANTHROPIC_API_KEY"), os.Getenv(TokenEnvVarName))
	case llms.ProviderPerplexity:
		cfg.Token = values.StringsCoalesce(os.Getenv("PERPLEXITY_API_KEY"), os.Getenv(TokenEnvVarName))
	case llms.ProviderOpenRouter:
		cfg.Token = values.StringsCoalesce(os.Getenv("OPENROUTER_API_KEY"), os.Getenv(TokenEnvVarName))
		cfg.OpenAI.BaseURL = os.Getenv("OPENROUTER_BASE_URL")
		headers := map[string]string{}
		if v := os.Getenv("OPENROUTER_SITE_URL"); v != "" {
			headers["HTTP-Referer"] = v
		}
		if v := os.Getenv("OPENROUTER_SITE_NAME"); v != "" {
			headers["X-Title"] = v
		}
		if len(headers) > 0 {
			cfg.OpenAI.Headers = headers
		}
	}
	return cfg, nil
}
