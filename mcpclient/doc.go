// Package mcpclient manages connections to MCP tool providers.
//
// A Session owns one connection to one provider over stdio, SSE or
// streamable HTTP. A Registry holds the configured sessions, aggregates their
// tools and finds the session that owns a tool by name.
package mcpclient
