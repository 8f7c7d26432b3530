package assistants

import (
	"strings"

	"github.com/effective-security/mcpchat/mcpclient"
)

const toolsPreamble = `You are a helpful assistant with access to these tools:

`

const toolsPolicy = `Choose the appropriate tool based on the user's question. If no tool is needed, reply directly.`

const textProtocolInstructions = `IMPORTANT: When you need to use a tool, you must ONLY respond with the exact JSON object format below, nothing else:
{
    "tool": "tool-name",
    "arguments": {
        "argument-name": "value"
    }
}`

const resultInstructions = `After receiving a tool's response:
1. Transform the raw data into a natural, conversational response
2. Keep responses concise but informative
3. Focus on the most relevant information
4. Use appropriate context from the user's question
5. Avoid simply repeating the raw data

Please use only the tools that are explicitly defined above.`

// SystemPrompt returns the system message listing the tools.
// With textProtocol the model is instructed to reply with a JSON tool call.
func SystemPrompt(tools []mcpclient.ToolDescriptor, textProtocol bool) string {
	var b strings.Builder
	b.WriteString(toolsPreamble)
	for _, t := range tools {
		b.WriteString(t.FormatForLLM())
	}
	b.WriteString("\n")
	b.WriteString(toolsPolicy)
	b.WriteString("\n\n")
	if textProtocol {
		b.WriteString(textProtocolInstructions)
		b.WriteString("\n\n")
	}
	b.WriteString(resultInstructions)
	return b.String()
}
