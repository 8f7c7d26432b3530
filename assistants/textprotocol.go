package assistants

import (
	"encoding/json"
	"strings"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/google/uuid"
)

type textToolCall struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// ParseTextToolCall parses a reply of the text protocol:
// {"tool": "name", "arguments": {...}}
// It returns false when the reply is not a tool call.
func ParseTextToolCall(content string) (llms.ToolCall, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return llms.ToolCall{}, false
	}
	js := llmutils.CleanJSON([]byte(llmutils.TrimBackticks(content)))

	var tc textToolCall
	if err := json.Unmarshal(js, &tc); err != nil || tc.Tool == "" {
		return llms.ToolCall{}, false
	}

	args := string(tc.Arguments)
	if args == "" || args == "null" {
		args = "{}"
	}
	return llms.ToolCall{
		ID:   uuid.NewString(),
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      tc.Tool,
			Arguments: args,
		},
	}, true
}
