// Package llmfactory provides factories and configuration for LLM model instantiation,
// supporting OpenAI compatible providers (OpenAI, OpenRouter, Perplexity) and Anthropic.
package llmfactory
