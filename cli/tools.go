package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/mcpclient"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/spf13/cobra"
)

// ToolInfo is the listing entry of a tool.
type ToolInfo struct {
	Server      string                  `json:"server"`
	Transport   mcpclient.TransportKind `json:"transport"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	InputSchema mcpclient.InputSchema   `json:"input_schema"`
}

type toolsOptions struct {
	options
	output string
}

// NewToolsCmd returns the command listing the tools of the configured servers.
func NewToolsCmd() *cobra.Command {
	o := &toolsOptions{}
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools of the configured MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTools(cmd, o)
		},
	}
	o.bind(cmd)
	cmd.Flags().StringVarP(&o.output, "output", "o", "yaml", "output format: yaml, json or text")
	return cmd
}

func runTools(cmd *cobra.Command, o *toolsOptions) error {
	switch o.output {
	case "yaml", "json", "text":
	default:
		return errors.Newf("unsupported output format: %s", o.output)
	}

	cfg, err := o.load(cmd)
	if err != nil {
		return err
	}
	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	return assistants.Run(cmd.Context(), reg, func(ctx context.Context) error {
		return printTools(cmd.OutOrStdout(), o.output, listTools(ctx, reg))
	})
}

// listTools returns the tools with the server they are dispatched to.
func listTools(ctx context.Context, reg *mcpclient.Registry) []ToolInfo {
	// refreshes the tools cached by the sessions
	reg.ListAllTools(ctx)

	list := []ToolInfo{}
	for _, s := range reg.Sessions() {
		for _, t := range s.Tools() {
			list = append(list, ToolInfo{
				Server:      s.Name(),
				Transport:   s.Transport(),
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
	}
	return list
}

func printTools(w io.Writer, format string, list []ToolInfo) error {
	switch format {
	case "json":
		fmt.Fprintln(w, llmutils.ToJSONIndent(list))
	case "text":
		for _, t := range list {
			d := mcpclient.ToolDescriptor{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
			fmt.Fprintf(w, "Server: %s (%s)", t.Server, t.Transport)
			fmt.Fprint(w, d.FormatForLLM())
		}
	default:
		fmt.Fprint(w, llmutils.ToYAML(list))
	}
	return nil
}
