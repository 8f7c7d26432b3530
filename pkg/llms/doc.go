// Package llms defines the completion-endpoint contract used by the chat loop:
// role-tagged messages made of content parts, tool schemas passed to the model,
// and the tool-call requests the model returns.
//
// Provider implementations live in the subpackages (openai, anthropic) and are
// created by pkg/llmfactory.
package llms
