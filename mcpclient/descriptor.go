package mcpclient

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"
)

const (
	noDescription  = "No description"
	requiredSuffix = " (required)"
)

// InputSchema is the JSON schema of the tool arguments.
type InputSchema struct {
	Type       string         `json:"type,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

// ToolDescriptor describes a tool advertised by a provider.
type ToolDescriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"input_schema"`
}

// NewToolDescriptor converts the protocol tool definition.
func NewToolDescriptor(t mcp.Tool) ToolDescriptor {
	d := ToolDescriptor{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: InputSchema{
			Type:       t.InputSchema.Type,
			Properties: t.InputSchema.Properties,
			Required:   slices.Clone(t.InputSchema.Required),
		},
	}
	if len(t.RawInputSchema) > 0 {
		var raw InputSchema
		if err := json.Unmarshal(t.RawInputSchema, &raw); err == nil {
			d.InputSchema = raw
		}
	}
	return d
}

// PropertyNames returns the argument names, sorted.
func (d ToolDescriptor) PropertyNames() []string {
	return slices.Sorted(maps.Keys(d.InputSchema.Properties))
}

// IsRequired returns true if the argument is required.
func (d ToolDescriptor) IsRequired(name string) bool {
	return slices.Contains(d.InputSchema.Required, name)
}

// FormatForLLM renders the descriptor as text for the system prompt.
func (d ToolDescriptor) FormatForLLM() string {
	var args []string
	for _, name := range d.PropertyNames() {
		arg := fmt.Sprintf("- %s: %s", name, propertyDescription(d.InputSchema.Properties[name]))
		if d.IsRequired(name) {
			arg += requiredSuffix
		}
		args = append(args, arg)
	}

	return fmt.Sprintf("\nTool: %s\nDescription: %s\nArguments:\n%s\n", d.Name, d.Description, strings.Join(args, "\n"))
}

func propertyDescription(prop any) string {
	m, ok := prop.(map[string]any)
	if !ok {
		return noDescription
	}
	v, ok := m["description"]
	if !ok {
		return noDescription
	}
	return cast.ToString(v)
}

// ParseToolDescriptor parses the text produced by FormatForLLM.
// Argument types are not part of the text and are not recovered.
func ParseToolDescriptor(text string) (ToolDescriptor, error) {
	d := ToolDescriptor{
		InputSchema: InputSchema{Type: "object"},
	}

	const (
		inHeader = iota
		inDescription
		inArguments
	)

	section := inHeader
	var desc []string
	found := false

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		switch {
		case section == inHeader && strings.HasPrefix(line, "Tool: "):
			d.Name = strings.TrimPrefix(line, "Tool: ")
			found = true
		case section == inHeader && strings.HasPrefix(line, "Description: "):
			desc = append(desc, strings.TrimPrefix(line, "Description: "))
			section = inDescription
		case section != inArguments && line == "Arguments:":
			section = inArguments
		case section == inDescription:
			desc = append(desc, line)
		case section == inArguments && strings.HasPrefix(line, "- "):
			name, argDesc, _ := strings.Cut(strings.TrimPrefix(line, "- "), ":")
			name = strings.TrimSpace(name)
			argDesc = strings.TrimSpace(argDesc)
			if strings.HasSuffix(argDesc, strings.TrimSpace(requiredSuffix)) {
				argDesc = strings.TrimSpace(strings.TrimSuffix(argDesc, strings.TrimSpace(requiredSuffix)))
				d.InputSchema.Required = append(d.InputSchema.Required, name)
			}
			prop := map[string]any{}
			if argDesc != noDescription {
				prop["description"] = argDesc
			}
			if d.InputSchema.Properties == nil {
				d.InputSchema.Properties = map[string]any{}
			}
			d.InputSchema.Properties[name] = prop
		}
	}

	if !found || d.Name == "" {
		return ToolDescriptor{}, errors.New("tool descriptor: missing tool name")
	}
	d.Description = strings.Join(desc, "\n")
	return d, nil
}

// LLMTool returns the function-calling schema of the tool.
func (d ToolDescriptor) LLMTool() llms.Tool {
	props := jsonschema.NewProperties()
	for _, name := range d.PropertyNames() {
		props.Set(name, propertySchema(d.InputSchema.Properties[name]))
	}

	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters: &jsonschema.Schema{
				Type:       "object",
				Properties: props,
				Required:   slices.Clone(d.InputSchema.Required),
			},
		},
	}
}

func propertySchema(prop any) *jsonschema.Schema {
	s := &jsonschema.Schema{}
	js, err := json.Marshal(prop)
	if err == nil && json.Unmarshal(js, s) == nil {
		return s
	}
	return &jsonschema.Schema{Description: propertyDescription(prop)}
}
