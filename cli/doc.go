// Package cli implements the mcpchat commands: an interactive chat that lets
// the model call the tools of the configured MCP servers, and a listing of
// those tools.
package cli
