// Package assistants runs the tool-calling conversation loop: the model is
// queried with the conversation history, requested tool calls are dispatched
// to the MCP servers that own them, and the normalized results are appended
// to the history until the model replies with a final answer.
package assistants
