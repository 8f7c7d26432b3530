package llmfactory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/effective-security/mcpchat/pkg/llmfactory"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	provider string
	model    string
}

func (f *fakeLLM) GetName() string {
	return f.model
}

func (f *fakeLLM) GetProviderType() llms.ProviderType {
	return llms.ProviderType(f.provider)
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}, nil
}

func fakeNewLLM(cfg *llmfactory.ProviderConfig, preferredModels ...string) (llms.Model, error) {
	return &fakeLLM{provider: cfg.Name, model: cfg.FindModel(preferredModels...)}, nil
}

func Test_Factory(t *testing.T) {
	cfg, err := llmfactory.LoadConfig("testdata/llm.yaml")
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 4)

	llmfactory.NewLLM = fakeNewLLM
	defer func() {
		llmfactory.NewLLM = llmfactory.CreateLLM
	}()

	f := llmfactory.New(cfg)
	model, err := f.DefaultModel()
	require.NoError(t, err)
	fm := model.(*fakeLLM)
	assert.Equal(t, "gpt-4o", fm.model)
	assert.Equal(t, "openai", fm.provider)

	model, err = f.ModelByName("gpt-4o-mini")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "gpt-4o-mini", fm.model)
	assert.Equal(t, "openai", fm.provider)

	// configured provider wins over the provider/model form
	model, err = f.ModelByName("unknown", "openai/gpt-4.1-mini")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "openai/gpt-4.1-mini", fm.model)
	assert.Equal(t, "openrouter", fm.provider)

	model, err = f.ModelByName("non-existent-model")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "gpt-4o", fm.model)

	model, err = f.ModelByType("ANTHROPIC")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "claude-sonnet-4-20250514", fm.model)
	assert.Equal(t, "anthropic", fm.provider)

	model2, err := f.ModelByType("ANTHROPIC")
	require.NoError(t, err)
	assert.Same(t, model, model2)

	model, err = f.ModelByType("perplexity")
	require.NoError(t, err)
	assert.Equal(t, "sonar", model.GetName())

	_, err = f.ModelByType("UNSUPPORTED")
	assert.EqualError(t, err, "provider not found for type: UNSUPPORTED")

	model, err = f.AssistantModel("chatbot")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "openai/gpt-4.1-mini", fm.model)

	model, err = f.AssistantModel("other", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", model.GetName())

	_, err = llmfactory.New(&llmfactory.Config{}).DefaultModel()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no providers configured")

	model, err = llmfactory.New(&llmfactory.Config{
		DefaultProvider: "non-existent",
		Providers:       cfg.Providers,
	}).DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", model.GetName())
}

func Test_ModelByName_FullySpecified(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("LLM_API_KEY", "shared-key")

	var got *llmfactory.ProviderConfig
	llmfactory.NewLLM = func(cfg *llmfactory.ProviderConfig, preferredModels ...string) (llms.Model, error) {
		got = cfg
		return fakeNewLLM(cfg, preferredModels...)
	}
	defer func() {
		llmfactory.NewLLM = llmfactory.CreateLLM
	}()

	f := llmfactory.New(&llmfactory.Config{})
	model, err := f.ModelByName("anthropic/claude-3-5-haiku-latest")
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-latest", model.GetName())
	require.NotNil(t, got)
	assert.Equal(t, "shared-key", got.Token)
	assert.Equal(t, "ANTHROPIC", got.OpenAI.APIType)
}

func Test_ParseModelName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		provider llms.ProviderType
		model    string
		err      string
	}{
		{in: "openai/gpt-4o", provider: llms.ProviderOpenAI, model: "gpt-4o"},
		{in: "anthropic/claude-sonnet-4", provider: llms.ProviderAnthropic, model: "claude-sonnet-4"},
		{in: "openrouter/openai/gpt-4.1-mini", provider: llms.ProviderOpenRouter, model: "openai/gpt-4.1-mini"},
		{in: "Perplexity/sonar", provider: llms.ProviderPerplexity, model: "sonar"},
		{in: "gpt-4o", err: "model name must be in format 'provider/model-name', got: gpt-4o"},
		{in: "openai/", err: "model name must be in format 'provider/model-name', got: openai/"},
		{in: "mistral/large", err: "unsupported provider: mistral"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			pt, model, err := llmfactory.ParseModelName(tc.in)
			if tc.err != "" {
				assert.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.provider, pt)
			assert.Equal(t, tc.model, model)
		})
	}
}

func Test_ProviderFromModelName_OpenRouter(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("OPENROUTER_BASE_URL", "")
	t.Setenv("OPENROUTER_SITE_URL", "https://example.com")
	t.Setenv("OPENROUTER_SITE_NAME", "mcpchat")

	cfg, err := llmfactory.ProviderFromModelName("openrouter/anthropic/claude-sonnet-4")
	require.NoError(t, err)
	assert.Equal(t, "openrouter", cfg.Name)
	assert.Equal(t, "or-key", cfg.Token)
	assert.Equal(t, "anthropic/claude-sonnet-4", cfg.DefaultModel)
	assert.Equal(t, map[string]string{
		"HTTP-Referer": "https://example.com",
		"X-Title":      "mcpchat",
	}, cfg.OpenAI.Headers)

	model, err := llmfactory.CreateLLM(cfg)
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderOpenRouter, model.GetProviderType())
	assert.Equal(t, "anthropic/claude-sonnet-4", model.GetName())
}

func Test_CreateLLM(t *testing.T) {
	cfg := &llmfactory.ProviderConfig{
		Name:            "test-provider",
		Token:           "fakekey",
		AvailableModels: []string{"gpt-4"},
		DefaultModel:    "gpt-4",
	}

	for _, tc := range []struct {
		apiType  string
		provider llms.ProviderType
	}{
		{"OPENAI", llms.ProviderOpenAI},
		{"OPEN_AI", llms.ProviderOpenAI},
		{"openrouter", llms.ProviderOpenRouter},
		{"PERPLEXITY", llms.ProviderPerplexity},
		{"ANTHROPIC", llms.ProviderAnthropic},
	} {
		cfg.OpenAI.APIType = tc.apiType
		model, err := llmfactory.CreateLLM(cfg)
		require.NoError(t, err, tc.apiType)
		assert.Equal(t, tc.provider, model.GetProviderType())
		assert.Equal(t, "gpt-4", model.GetName())
	}

	cfg.OpenAI.APIType = "BEDROCK"
	_, err := llmfactory.CreateLLM(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider type")
}

func Test_LoadConfig(t *testing.T) {
	cfg, err := llmfactory.LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Providers)

	_, err = llmfactory.LoadConfig("testdata/non-existent.yaml")
	require.Error(t, err)

	_, err = llmfactory.Load("testdata/non-existent.yaml")
	require.Error(t, err)

	f, err := llmfactory.Load("testdata/llm.yaml")
	require.NoError(t, err)
	require.NotNil(t, f)
}

func Test_ProviderConfigFindModel(t *testing.T) {
	t.Parallel()

	cfg := &llmfactory.ProviderConfig{
		DefaultModel:    "a",
		AvailableModels: []string{"a", "b"},
	}
	assert.Equal(t, "b", cfg.FindModel("x", "b"))
	assert.Equal(t, "a", cfg.FindModel("x"))
	assert.Equal(t, "a", cfg.FindModel())
}

func Test_ConcurrentAccess(t *testing.T) {
	cfg, err := llmfactory.LoadConfig("testdata/llm.yaml")
	require.NoError(t, err)

	llmfactory.NewLLM = fakeNewLLM
	defer func() {
		llmfactory.NewLLM = llmfactory.CreateLLM
	}()

	f := llmfactory.New(cfg)
	var wg sync.WaitGroup
	results := make([]llms.Model, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := f.ModelByName("gpt-4o-mini")
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()
	for _, m := range results[1:] {
		assert.Same(t, results[0], m)
	}
}
