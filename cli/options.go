package cli

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/config"
	"github.com/effective-security/mcpchat/mcpclient"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "cli")

// DefaultConfigFile is the servers configuration used when --config is not specified.
const DefaultConfigFile = "servers_config.json"

// dialer connects the MCP sessions, replaced in tests.
var dialer mcpclient.Dialer = mcpclient.DefaultDialer

// options shared by the commands
type options struct {
	configFile    string
	envFiles      []string
	model         string
	llmConfig     string
	maxIterations int
	retries       int
	retryDelay    string
	textProtocol  bool
}

func (o *options) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&o.configFile, "config", "c", DefaultConfigFile, "MCP servers configuration file: .json, .yaml or .toml")
	fs.StringSliceVar(&o.envFiles, "env", nil, "environment files to load, .env by default")
	fs.StringVarP(&o.model, "model", "m", "", "model in format provider/model-name, overrides the configuration")
	fs.StringVar(&o.llmConfig, "llm-config", "", "LLM providers configuration file, overrides the configuration")
	fs.IntVar(&o.maxIterations, "max-iterations", 0, "maximum tool call rounds per input, overrides the configuration")
	fs.IntVar(&o.retries, "retries", 0, "number of attempts of a tool call, overrides the configuration")
	fs.StringVar(&o.retryDelay, "retry-delay", "", "delay between tool call attempts, overrides the configuration")
	fs.BoolVar(&o.textProtocol, "text-protocol", false, "describe tool calls as JSON in the reply text instead of function calling")
}

// load returns the configuration with the flags applied.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnv(o.envFiles...); err != nil {
		return nil, err
	}

	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}

	fs := cmd.Flags()
	if fs.Changed("model") {
		cfg.Model = o.model
	}
	if fs.Changed("llm-config") {
		cfg.LLMConfig = o.llmConfig
	}
	if fs.Changed("max-iterations") {
		cfg.MaxIterations = o.maxIterations
	}
	if fs.Changed("retries") {
		cfg.Retries = o.retries
	}
	if fs.Changed("retry-delay") {
		cfg.RetryDelay = o.retryDelay
	}
	if fs.Changed("text-protocol") {
		cfg.TextProtocol = o.textProtocol
	}

	if err = cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid flags")
	}
	return cfg, nil
}

func newRegistry(cfg *config.Config) (*mcpclient.Registry, error) {
	return mcpclient.NewRegistryFromConfig(cfg.NamedServers(),
		mcpclient.WithDialer(dialer),
		mcpclient.WithClientInfo("mcpchat", Version),
	)
}
