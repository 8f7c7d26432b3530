package mcpclient

import (
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	// DefaultTimeout is the default connect and HTTP request timeout, in seconds.
	DefaultTimeout = 30
	// DefaultSSEReadTimeout is the default SSE read timeout, in seconds.
	DefaultSSEReadTimeout = 300
)

// TransportKind is the transport used to reach a provider.
type TransportKind string

const (
	// TransportStdio spawns a subprocess and talks over its stdin/stdout.
	TransportStdio TransportKind = "stdio"
	// TransportSSE is the legacy HTTP+SSE transport.
	TransportSSE TransportKind = "sse"
	// TransportStreamableHTTP is the bidirectional streaming HTTP transport.
	TransportStreamableHTTP TransportKind = "streamable-http"
)

// ServerConfig is the configuration of one provider. Either Command or URL
// must be set.
type ServerConfig struct {
	Command string            `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty" validate:"required_without=URL"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`

	URL     string            `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty" validate:"required_without=Command"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" toml:"headers,omitempty"`
	// Timeout in seconds
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty" validate:"gte=0"`
	// SSEReadTimeout in seconds
	SSEReadTimeout int `json:"sse_read_timeout,omitempty" yaml:"sse_read_timeout,omitempty" toml:"sse_read_timeout,omitempty" validate:"gte=0"`
	// TransportType selects the network transport: sse or streamable-http (default)
	TransportType string `json:"transport_type,omitempty" yaml:"transport_type,omitempty" toml:"transport_type,omitempty"`
}

// NamedServer is a provider configuration with its unique name.
type NamedServer struct {
	Name   string
	Config ServerConfig
}

// TimeoutDuration returns the connect timeout.
func (c ServerConfig) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// SSEReadTimeoutDuration returns the SSE read timeout.
func (c ServerConfig) SSEReadTimeoutDuration() time.Duration {
	if c.SSEReadTimeout <= 0 {
		return DefaultSSEReadTimeout * time.Second
	}
	return time.Duration(c.SSEReadTimeout) * time.Second
}

// EnvList returns the Env entries as sorted KEY=VALUE pairs.
func (c ServerConfig) EnvList() []string {
	if len(c.Env) == 0 {
		return nil
	}
	list := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		list = append(list, k+"="+v)
	}
	slices.Sort(list)
	return list
}

// DetectTransport selects the transport from the shape of the configuration.
// A command always means stdio. A URL means streamable HTTP unless the
// transport type is "sse".
func DetectTransport(cfg ServerConfig) (TransportKind, error) {
	if cfg.Command != "" {
		return TransportStdio, nil
	}
	if cfg.URL != "" {
		switch strings.ToLower(strings.TrimSpace(cfg.TransportType)) {
		case "sse":
			return TransportSSE, nil
		default:
			// "", "http", "streamable-http", "streamable_http", "streamableHttp"
			return TransportStreamableHTTP, nil
		}
	}
	return "", errors.New("either command or url must be specified")
}
