package llms

import (
	"context"
)

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderAnthropic is the Anthropic Messages API.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderOpenAI is the OpenAI Chat Completions API.
	ProviderOpenAI ProviderType = "OPENAI"
	// ProviderOpenRouter is the OpenAI compatible OpenRouter API.
	ProviderOpenRouter ProviderType = "OPENROUTER"
	// ProviderPerplexity is the OpenAI compatible Perplexity API.
	ProviderPerplexity ProviderType = "PERPLEXITY"
)

// Model is an interface multi-modal models implement.
type Model interface {
	// GetName returns the model name.
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent asks the model to generate content from a sequence of
	// messages. The response may carry tool calls instead of, or in addition to, text.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// Capability is a bitmask indicating supported features of an LLM provider.
type Capability uint64

const (
	// Basic text or chat generation
	CapabilityText Capability = 1 << iota

	// Function/tool calling
	CapabilityFunctionCalling
	CapabilityMultiToolCalling

	// Multimodal input
	CapabilityVision

	// System prompt support
	CapabilitySystemPrompt
)

var providerCapabilities = map[ProviderType]Capability{
	ProviderOpenAI: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt |
		CapabilityVision,

	ProviderAnthropic: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt |
		CapabilityVision,

	// OpenRouter proxies many models, tool support depends on the routed model
	// but the API accepts the OpenAI tools payload.
	ProviderOpenRouter: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,

	ProviderPerplexity: CapabilityText |
		CapabilitySystemPrompt,
}

// ProviderCapabilities returns the capability mask of the provider.
func ProviderCapabilities(pt ProviderType) Capability {
	return providerCapabilities[pt]
}

// Supports returns true if the provider supports the capability.
func (p ProviderType) Supports(cap Capability) bool {
	return ProviderCapabilities(p)&cap != 0
}
