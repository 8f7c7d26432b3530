package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/config"
	"github.com/effective-security/mcpchat/mcpclient"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectedServers(token string) []mcpclient.NamedServer {
	return []mcpclient.NamedServer{
		{
			Name: "weather",
			Config: mcpclient.ServerConfig{
				Command: "uvx",
				Args:    []string{"weather-server", "--units", "metric"},
				Env:     map[string]string{"WEATHER_TOKEN": token},
			},
		},
		{
			Name: "camera",
			Config: mcpclient.ServerConfig{
				URL:            "http://localhost:8080/sse",
				TransportType:  "sse",
				Timeout:        10,
				SSEReadTimeout: 60,
			},
		},
		{
			Name: "assistant",
			Config: mcpclient.ServerConfig{
				URL:     "https://mcp.example.com/mcp",
				Headers: map[string]string{"Authorization": "Bearer " + token},
			},
		},
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("MCPCHAT_TEST_TOKEN", "secret")

	for _, file := range []string{"servers.json", "servers.yaml", "servers.toml"} {
		t.Run(file, func(t *testing.T) {
			cfg, err := config.Load(filepath.Join("testdata", file))
			require.NoError(t, err)

			// the order of the file is kept
			if diff := cmp.Diff(expectedServers("secret"), cfg.NamedServers()); diff != "" {
				t.Errorf("servers mismatch (-want +got):\n%s", diff)
			}

			assert.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg.ModelName())
			assert.Equal(t, 5, cfg.MaxIterations)

			policy, err := cfg.RetryPolicy()
			require.NoError(t, err)
			assert.Equal(t, mcpclient.RetryPolicy{MaxAttempts: 3, Delay: 250 * time.Millisecond}, policy)

			kinds := []mcpclient.TransportKind{}
			for _, srv := range cfg.NamedServers() {
				kind, err := mcpclient.DetectTransport(srv.Config)
				require.NoError(t, err)
				kinds = append(kinds, kind)
			}
			assert.Equal(t, []mcpclient.TransportKind{
				mcpclient.TransportStdio,
				mcpclient.TransportSSE,
				mcpclient.TransportStreamableHTTP,
			}, kinds)
		})
	}
}

func TestLoad_MissingEnv(t *testing.T) {
	t.Setenv("MCPCHAT_TEST_TOKEN", "")
	os.Unsetenv("MCPCHAT_TEST_TOKEN")

	cfg, err := config.Load("testdata/servers.json")
	require.NoError(t, err)
	if diff := cmp.Diff(expectedServers(""), cfg.NamedServers()); diff != "" {
		t.Errorf("servers mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load("testdata/missing.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("mcpServers: [1, 2"), 0o600))
	_, err = config.Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to load config "+bad)
}

func TestLoad_RelativeLLMConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "mcpchat.yaml")
	require.NoError(t, os.WriteFile(file, []byte("llm_config: llm.yaml\nmcpServers: {}\n"), 0o600))

	cfg, err := config.Load(file)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "llm.yaml"), cfg.LLMConfig)
	assert.Empty(t, cfg.NamedServers())
}

func TestParse(t *testing.T) {
	tcs := []struct {
		format string
		data   string
		err    string
	}{
		{format: ".ini", data: "", err: `unsupported config format: ".ini"`},
		{format: ".json", data: `{}`, err: "missing mcpServers section"},
		{format: ".yaml", data: "model: openai/gpt-4o\n", err: "missing mcpServers section"},
		{format: ".toml", data: `model = "openai/gpt-4o"`, err: "missing mcpServers section"},
		{format: ".json", data: `{"mcpServers":{"a":{}}}`, err: "invalid configuration of server a"},
		{format: ".json", data: `{"mcpServers":{"a":{"url":"http://a"}},"max_iterations":-1}`, err: "invalid configuration"},
		{format: ".json", data: `{"mcpServers":{"a":{"url":"http://a"}},"retry_delay":"bogus"}`, err: "invalid retry_delay"},
		{format: ".json", data: `{"mcpServers":`, err: "unable to decode JSON"},
		{format: ".toml", data: `mcpServers = [`, err: "unable to decode TOML"},
		{format: ".json", data: `{"mcpServers":{}}`},
		{format: ".yml", data: "mcpServers:\n  a:\n    command: a-server\n"},
		{format: ".toml", data: "[mcpServers.a]\nurl = \"http://a\"\n"},
	}

	for _, tc := range tcs {
		t.Run(tc.format+":"+tc.data, func(t *testing.T) {
			cfg, err := config.Parse(tc.format, []byte(tc.data))
			if tc.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, cfg.MCPServers)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("MCPCHAT_TEST_A", "alpha")
	t.Setenv("MCPCHAT_TEST_EMPTY", "")

	assert.Equal(t, "alpha-alpha", config.ExpandEnv("${MCPCHAT_TEST_A}-${MCPCHAT_TEST_A}"))
	assert.Equal(t, "[]", config.ExpandEnv("[${MCPCHAT_TEST_EMPTY}]"))
	assert.Equal(t, "a=b", config.ExpandEnv("a=${MCPCHAT_TEST_NOT_SET_42}b"))
	// only the braced form is substituted
	assert.Equal(t, "$MCPCHAT_TEST_A ${}", config.ExpandEnv("$MCPCHAT_TEST_A ${}"))
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("MCPCHAT_TEST_DOTENV", "")
	os.Unsetenv("MCPCHAT_TEST_DOTENV")
	t.Setenv("MCPCHAT_TEST_EXISTING", "from-env")

	require.NoError(t, config.LoadEnv("testdata/missing.env", "testdata/test.env"))
	assert.Equal(t, "from-dotenv", os.Getenv("MCPCHAT_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("MCPCHAT_TEST_EXISTING"))

	// no .env in the working directory
	t.Chdir(t.TempDir())
	assert.NoError(t, config.LoadEnv())
}

func TestAPIKey(t *testing.T) {
	t.Setenv(config.APIKeyEnvVarName, "")
	_, err := config.APIKey()
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrAPIKeyNotFound))
	assert.EqualError(t, err, "LLM_API_KEY not found in environment variables")

	t.Setenv(config.APIKeyEnvVarName, "sk-test")
	key, err := config.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)
}

func TestRetryPolicy(t *testing.T) {
	cfg := &config.Config{}
	policy, err := cfg.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, mcpclient.DefaultRetryPolicy, policy)

	cfg.RetryDelay = "1.5"
	policy, err = cfg.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, policy.Delay)

	cfg.RetryDelay = "2s"
	cfg.Retries = 1
	policy, err = cfg.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, mcpclient.RetryPolicy{MaxAttempts: 1, Delay: 2 * time.Second}, policy)
}

func TestAssistantOptions(t *testing.T) {
	cfg := &config.Config{}
	acfg := assistants.NewConfig(cfg.AssistantOptions()...)
	assert.Equal(t, config.DefaultMaxTokens, acfg.MaxTokens)
	assert.Equal(t, config.DefaultTemperature, acfg.Temperature)
	assert.Equal(t, assistants.DefaultMaxIterations, acfg.MaxIterations)
	assert.Equal(t, mcpclient.DefaultRetryPolicy, acfg.RetryPolicy)
	assert.False(t, acfg.TextProtocol)

	temp := 0.2
	cfg = &config.Config{
		MaxTokens:     100,
		Temperature:   &temp,
		MaxIterations: 3,
		TextProtocol:  true,
		Retries:       1,
	}
	acfg = assistants.NewConfig(cfg.AssistantOptions()...)
	assert.Equal(t, 100, acfg.MaxTokens)
	assert.Equal(t, 0.2, acfg.Temperature)
	assert.Equal(t, 3, acfg.MaxIterations)
	assert.True(t, acfg.TextProtocol)
	assert.Equal(t, 1, acfg.RetryPolicy.MaxAttempts)
}
