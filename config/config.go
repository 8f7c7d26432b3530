package config

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/mcpclient"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "config")

const (
	// ServersKey is the top level key of the servers section.
	ServersKey = "mcpServers"
	// APIKeyEnvVarName is the provider independent API key variable.
	APIKeyEnvVarName = "LLM_API_KEY" //nolint:gosec

	// DefaultModel is used when no model is configured.
	DefaultModel = "openai/gpt-4o-mini"
	// DefaultTemperature is the sampling temperature of the chat.
	DefaultTemperature = 0.7
	// DefaultMaxTokens is the completion limit of one LLM call.
	DefaultMaxTokens = 4096
)

// ErrAPIKeyNotFound is returned when LLM_API_KEY is not set.
var ErrAPIKeyNotFound = errors.New("LLM_API_KEY not found in environment variables")

// Servers is the ordered set of server configurations by name.
type Servers = orderedmap.OrderedMap[string, mcpclient.ServerConfig]

// Config of the chat client.
type Config struct {
	// MCPServers keeps the order of the configuration file.
	MCPServers *Servers `json:"mcpServers" yaml:"mcpServers"`

	// Model is the fully specified "provider/model-name".
	Model string `json:"model,omitempty" yaml:"model,omitempty" toml:"model,omitempty"`
	// LLMConfig is an optional path to the LLM providers configuration,
	// if specified, Model is looked up in the configured providers.
	LLMConfig string `json:"llm_config,omitempty" yaml:"llm_config,omitempty" toml:"llm_config,omitempty"`
	// MaxTokens of one LLM call.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty" validate:"gte=0"`
	// Temperature of the LLM sampling.
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	// MaxIterations is the limit of tool call rounds per user input.
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" toml:"max_iterations,omitempty" validate:"gte=0"`
	// TextProtocol forces the JSON text protocol for tool calls.
	TextProtocol bool `json:"text_protocol,omitempty" yaml:"text_protocol,omitempty" toml:"text_protocol,omitempty"`
	// Retries is the number of tool call attempts.
	Retries int `json:"retries,omitempty" yaml:"retries,omitempty" toml:"retries,omitempty" validate:"gte=0"`
	// RetryDelay between tool call attempts, e.g. "1s" or a number of seconds.
	RetryDelay string `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty" toml:"retry_delay,omitempty"`
}

// tomlConfig is the TOML shape of Config, the order of the servers
// is restored from the metadata.
type tomlConfig struct {
	MCPServers    map[string]mcpclient.ServerConfig `toml:"mcpServers"`
	Model         string                            `toml:"model"`
	LLMConfig     string                            `toml:"llm_config"`
	MaxTokens     int                               `toml:"max_tokens"`
	Temperature   *float64                          `toml:"temperature"`
	MaxIterations int                               `toml:"max_iterations"`
	TextProtocol  bool                              `toml:"text_protocol"`
	Retries       int                               `toml:"retries"`
	RetryDelay    string                            `toml:"retry_delay"`
}

// Load reads, substitutes and validates the configuration file.
// The format is selected by the file extension.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to read config")
	}

	cfg, err := Parse(filepath.Ext(path), []byte(ExpandEnv(string(raw))))
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to load config %s", path)
	}

	if cfg.LLMConfig != "" && !filepath.IsAbs(cfg.LLMConfig) {
		cfg.LLMConfig = filepath.Join(filepath.Dir(path), cfg.LLMConfig)
	}

	logger.KV(xlog.DEBUG,
		"status", "loaded",
		"file", path,
		"servers", cfg.MCPServers.Len(),
	)
	return cfg, nil
}

// Parse decodes and validates the configuration, format is one of
// ".json", ".yaml", ".yml" or ".toml".
func Parse(format string, data []byte) (*Config, error) {
	cfg := new(Config)
	switch strings.ToLower(format) {
	case ".json", "json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "unable to decode JSON")
		}
	case ".yaml", ".yml", "yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "unable to decode YAML")
		}
	case ".toml", "toml":
		if err := decodeTOML(data, cfg); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Newf("unsupported config format: %q", format)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeTOML(data []byte, cfg *Config) error {
	var tc tomlConfig
	md, err := toml.Decode(string(data), &tc)
	if err != nil {
		return errors.Wrap(err, "unable to decode TOML")
	}

	*cfg = Config{
		Model:         tc.Model,
		LLMConfig:     tc.LLMConfig,
		MaxTokens:     tc.MaxTokens,
		Temperature:   tc.Temperature,
		MaxIterations: tc.MaxIterations,
		TextProtocol:  tc.TextProtocol,
		Retries:       tc.Retries,
		RetryDelay:    tc.RetryDelay,
	}
	if !md.IsDefined(ServersKey) {
		return nil
	}

	cfg.MCPServers = orderedmap.New[string, mcpclient.ServerConfig]()
	// md.Keys are in the order of the document
	for _, key := range md.Keys() {
		if len(key) < 2 || key[0] != ServersKey {
			continue
		}
		name := key[1]
		if _, present := cfg.MCPServers.Get(name); present {
			continue
		}
		if srv, ok := tc.MCPServers[name]; ok {
			cfg.MCPServers.Set(name, srv)
		}
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv replaces ${NAME} placeholders with the environment values.
// A variable that is not set is replaced with an empty string.
func ExpandEnv(content string) string {
	return envPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		logger.KV(xlog.WARNING,
			"reason", "env_not_found",
			"message", "Environment variable "+name+" not found, using empty string",
		)
		return ""
	})
}

// LoadEnv loads the .env files into the process environment, existing
// variables are not overridden. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		err := godotenv.Load(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errors.WithMessagef(err, "unable to load %s", file)
		}
		logger.KV(xlog.DEBUG, "status", "env_loaded", "file", file)
	}
	return nil
}

// APIKey returns LLM_API_KEY from the environment.
func APIKey() (string, error) {
	key := os.Getenv(APIKeyEnvVarName)
	if key == "" {
		return "", errors.WithStack(ErrAPIKeyNotFound)
	}
	return key, nil
}

// Validate returns an error if the configuration is not valid.
func (c *Config) Validate() error {
	if c.MCPServers == nil {
		return errors.Newf("missing %s section", ServersKey)
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	for pair := c.MCPServers.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == "" {
			return errors.New("server name must not be empty")
		}
		if err := validate.Struct(pair.Value); err != nil {
			return errors.Wrapf(err, "invalid configuration of server %s", pair.Key)
		}
		if _, err := mcpclient.DetectTransport(pair.Value); err != nil {
			return errors.WithMessagef(err, "invalid configuration of server %s", pair.Key)
		}
	}
	if _, err := c.RetryPolicy(); err != nil {
		return err
	}
	return nil
}

// NamedServers returns the servers in the configuration order.
func (c *Config) NamedServers() []mcpclient.NamedServer {
	if c.MCPServers == nil {
		return nil
	}
	list := make([]mcpclient.NamedServer, 0, c.MCPServers.Len())
	for pair := c.MCPServers.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, mcpclient.NamedServer{Name: pair.Key, Config: pair.Value})
	}
	return list
}

// ModelName returns the configured model or DefaultModel.
func (c *Config) ModelName() string {
	return values.StringsCoalesce(c.Model, DefaultModel)
}

// RetryPolicy returns the tool call retry policy,
// mcpclient.DefaultRetryPolicy if not configured.
func (c *Config) RetryPolicy() (mcpclient.RetryPolicy, error) {
	policy := mcpclient.DefaultRetryPolicy
	if c.Retries > 0 {
		policy.MaxAttempts = c.Retries
	}
	if c.RetryDelay != "" {
		d, err := parseDelay(c.RetryDelay)
		if err != nil {
			return policy, errors.WithMessage(err, "invalid retry_delay")
		}
		policy.Delay = d
	}
	return policy, nil
}

// parseDelay accepts a duration string, or a plain number of seconds.
func parseDelay(s string) (time.Duration, error) {
	if secs, err := cast.ToFloat64E(s); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := cast.ToDurationE(s)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// AssistantOptions returns the assistant options of the configuration.
func (c *Config) AssistantOptions() []assistants.Option {
	policy, _ := c.RetryPolicy()
	opts := []assistants.Option{
		assistants.WithRetryPolicy(policy),
		assistants.WithMaxTokens(values.NumbersCoalesce(c.MaxTokens, DefaultMaxTokens)),
		assistants.WithTemperature(DefaultTemperature),
	}
	if c.Temperature != nil {
		opts = append(opts, assistants.WithTemperature(*c.Temperature))
	}
	if c.MaxIterations > 0 {
		opts = append(opts, assistants.WithMaxIterations(c.MaxIterations))
	}
	if c.TextProtocol {
		opts = append(opts, assistants.WithTextProtocol(true))
	}
	return opts
}
