package assistants_test

import (
	"testing"

	"github.com/effective-security/mcpchat/assistants"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTextToolCall(t *testing.T) {
	tcases := []struct {
		name    string
		content string
		tool    string
		args    string
	}{
		{
			name:    "plain",
			content: `{"tool": "search", "arguments": {"q": "x"}}`,
			tool:    "search",
			args:    `{"q": "x"}`,
		},
		{
			name:    "backticks",
			content: "```json\n{\"tool\": \"photo\", \"arguments\": {}}\n```",
			tool:    "photo",
			args:    `{}`,
		},
		{
			name:    "prefixed",
			content: `Sure, here you go: {"tool": "photo"}`,
			tool:    "photo",
			args:    `{}`,
		},
		{
			name:    "null_args",
			content: `{"tool": "photo", "arguments": null}`,
			tool:    "photo",
			args:    `{}`,
		},
		{
			name:    "string_args",
			content: `{"tool": "search", "arguments": "x"}`,
			tool:    "search",
			args:    `"x"`,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			call, ok := assistants.ParseTextToolCall(tc.content)
			require.True(t, ok)
			assert.Equal(t, tc.tool, call.Name())
			assert.Equal(t, tc.args, call.Arguments())
			assert.Equal(t, "function", call.Type)
			_, err := uuid.Parse(call.ID)
			assert.NoError(t, err)
		})
	}

	for _, content := range []string{
		"",
		"The weather is fine.",
		`{"name": "search"}`,
		`{"tool": ""}`,
		`{"tool": "search", "arguments": {`,
	} {
		_, ok := assistants.ParseTextToolCall(content)
		assert.False(t, ok, content)
	}
}

func TestParseArguments(t *testing.T) {
	args, err := assistants.ParseArguments(`{"q":"x","n":1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"q": "x", "n": float64(1)}, args)

	for _, empty := range []string{"", "  ", "null", "{}"} {
		args, err = assistants.ParseArguments(empty)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{}, args, empty)
	}

	for _, bad := range []string{`{"q":`, `["x"]`, `"x"`, `42`} {
		_, err = assistants.ParseArguments(bad)
		assert.Error(t, err, bad)
	}
}
