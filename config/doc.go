// Package config loads the chat client configuration: the ordered set of
// MCP servers under the `mcpServers` key, the model selection and the tool
// call policies. JSON, YAML and TOML files are supported; `${NAME}`
// placeholders are substituted from the environment before decoding.
package config
