package cli

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/config"
	"github.com/effective-security/mcpchat/pkg/llmfactory"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/xlog"
)

// newModel returns the chat model. With the LLM providers configuration the
// model is looked up in the configured providers, otherwise the provider is
// derived from the "provider/model-name" and the API key from the environment.
func newModel(cfg *config.Config) (llms.Model, error) {
	if cfg.LLMConfig != "" {
		f, err := llmfactory.Load(cfg.LLMConfig)
		if err != nil {
			return nil, errors.WithMessage(err, "unable to load LLM config")
		}
		if cfg.Model == "" {
			return f.AssistantModel(chatAssistantName)
		}
		return f.ModelByName(cfg.Model)
	}

	provider, err := llmfactory.ProviderFromModelName(cfg.ModelName())
	if err != nil {
		return nil, err
	}
	if provider.Token == "" {
		if _, err = config.APIKey(); err != nil {
			return nil, err
		}
	}

	model, err := llmfactory.New(&llmfactory.Config{
		Providers:       []*llmfactory.ProviderConfig{provider},
		DefaultProvider: provider.Name,
	}).DefaultModel()
	if err != nil {
		return nil, err
	}

	logger.KV(xlog.DEBUG,
		"status", "model_created",
		"provider", model.GetProviderType(),
		"model", model.GetName(),
	)
	return model, nil
}
