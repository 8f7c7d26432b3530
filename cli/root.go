package cli

import (
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time.
var Version = "dev"

// NewRootCmd returns the mcpchat command with all subcommands.
func NewRootCmd() *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:           "mcpchat",
		Short:         "Chat client for MCP tool servers",
		Long:          "mcpchat connects to the configured MCP servers and lets an LLM call their tools while chatting.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			xlog.SetFormatter(xlog.NewStringFormatter(cmd.ErrOrStderr()))
			if debug {
				xlog.SetGlobalLogLevel(xlog.DEBUG)
			} else {
				xlog.SetGlobalLogLevel(xlog.INFO)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&debug, "debug", "D", false, "enable debug logging")

	root.AddCommand(NewChatCmd())
	root.AddCommand(NewToolsCmd())
	return root
}
