package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/callbacks"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/mcpclient"
	"github.com/effective-security/mcpchat/store"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

const chatAssistantName = "chatbot"

var exitCommands = map[string]bool{
	"quit": true,
	"exit": true,
}

type chatOptions struct {
	options
	verbose bool
	stats   bool
}

// NewChatCmd returns the interactive chat command.
func NewChatCmd() *cobra.Command {
	o := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the model using the tools of the configured MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, o)
		},
	}
	o.bind(cmd)
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "print the model and tool calls")
	cmd.Flags().BoolVar(&o.stats, "stats", false, "print the transcript and statistics of each turn")
	return cmd
}

func runChat(cmd *cobra.Command, o *chatOptions) error {
	cfg, err := o.load(cmd)
	if err != nil {
		return err
	}

	model, err := newModel(cfg)
	if err != nil {
		return err
	}

	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return assistants.Run(ctx, reg, func(ctx context.Context) error {
		session := &chatSession{
			in:      cmd.InOrStdin(),
			out:     cmd.OutOrStdout(),
			errOut:  cmd.ErrOrStderr(),
			chatCtx: chatmodel.NewChatContext("", nil),
		}

		fanout := callbacks.NewFanout(callbacks.NewPackageLogger(logger))
		if o.verbose {
			fanout.Add(callbacks.NewPrinter(session.errOut, callbacks.ModeVerbose))
		}
		if o.stats {
			session.scratchpad = callbacks.NewScratchpad(callbacks.ModeDefault)
			fanout.Add(session.scratchpad)
		}

		opts := append(cfg.AssistantOptions(),
			assistants.WithName(chatAssistantName),
			assistants.WithCallback(fanout),
			assistants.WithStore(store.NewMemoryStore()),
		)
		ast := assistants.NewAssistant(model, reg, opts...)
		ast.Init(ctx)
		session.assistant = ast

		printBanner(session.out, reg.Sessions(), len(ast.Tools()))
		return session.repl(ctx)
	})
}

func printBanner(w io.Writer, sessions []*mcpclient.Session, tools int) {
	fmt.Fprintln(w, "\n=== MCP Chatbot Ready ===")
	fmt.Fprintf(w, "Connected to %d servers with %d total tools\n", len(sessions), tools)
	for _, s := range sessions {
		fmt.Fprintf(w, "  - %s (%s)\n", s.Name(), s.Transport())
	}
	fmt.Fprintln(w, "Type 'quit' or 'exit' to end the session.")
	fmt.Fprintln(w)
}

type chatSession struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	assistant  assistants.IAssistant
	chatCtx    chatmodel.ChatContext
	scratchpad *callbacks.Scratchpad
}

// repl reads the user input until quit, exit, the end of input
// or ctx is canceled.
func (s *chatSession) repl(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := readLines(ctx, s.in)
	for {
		fmt.Fprint(s.out, "You: ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			logger.KV(xlog.INFO, "status", "exiting", "reason", "signal")
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				logger.KV(xlog.INFO, "status", "exiting", "reason", "eof")
				return nil
			}
			line = l
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if exitCommands[strings.ToLower(input)] {
			logger.KV(xlog.INFO, "status", "exiting", "reason", input)
			return nil
		}

		answer, err := s.turn(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(s.out)
				return nil
			}
			logger.KV(xlog.ERROR, "reason", "turn", "err", err.Error())
			fmt.Fprintf(s.out, "Error: %s\n", err.Error())
			continue
		}
		fmt.Fprintf(s.out, "Assistant: %s\n", answer)
	}
}

func (s *chatSession) turn(ctx context.Context, input string) (string, error) {
	ctx = chatmodel.WithChatContext(ctx, s.chatCtx)
	if s.scratchpad != nil {
		s.scratchpad.StartRun(ctx)
		defer func() {
			stats, transcript := s.scratchpad.EndRun(ctx)
			if stats != nil {
				_, _ = s.errOut.Write(transcript)
			}
		}()
	}
	return s.assistant.Call(ctx, input)
}

// readLines sends the lines of r until the end of input or ctx is canceled.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
