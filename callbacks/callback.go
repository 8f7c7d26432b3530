// Package callbacks provides assistants.Callback implementations:
// printing, logging, fan-out and per-run statistics.
package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ assistants.Callback = (*Noop)(nil)
	_ assistants.Callback = (*Printer)(nil)
	_ assistants.Callback = (*PackageLogger)(nil)
	_ assistants.Callback = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []assistants.Callback
}

func NewFanout(callbacks ...assistants.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback assistants.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnAssistantStart(ctx context.Context, agent assistants.IAssistant, input string) {
	for _, callback := range l.callbacks {
		callback.OnAssistantStart(ctx, agent, input)
	}
}

func (l *Fanout) OnAssistantEnd(ctx context.Context, agent assistants.IAssistant, input string, answer string, messages []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnAssistantEnd(ctx, agent, input, answer, messages)
	}
}

func (l *Fanout) OnAssistantError(ctx context.Context, agent assistants.IAssistant, input string, err error, messages []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnAssistantError(ctx, agent, input, err, messages)
	}
}

func (l *Fanout) OnAssistantLLMCallStart(ctx context.Context, agent assistants.IAssistant, llm llms.Model, payload []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnAssistantLLMCallStart(ctx, agent, llm, payload)
	}
}

func (l *Fanout) OnAssistantLLMCallEnd(ctx context.Context, agent assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnAssistantLLMCallEnd(ctx, agent, llm, resp)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, agent assistants.IAssistant, server string, call llms.ToolCall) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, agent, server, call)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, agent assistants.IAssistant, server string, call llms.ToolCall, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, agent, server, call, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, agent assistants.IAssistant, server string, call llms.ToolCall, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, agent, server, call, err)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, agent assistants.IAssistant, tool string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, agent, tool)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnAssistantStart(ctx context.Context, agent assistants.IAssistant, input string) {}
func (l *Noop) OnAssistantEnd(ctx context.Context, agent assistants.IAssistant, input string, answer string, messages []llms.Message) {
}
func (l *Noop) OnAssistantError(ctx context.Context, agent assistants.IAssistant, input string, err error, messages []llms.Message) {
}
func (l *Noop) OnAssistantLLMCallStart(ctx context.Context, agent assistants.IAssistant, llm llms.Model, payload []llms.Message) {
}
func (l *Noop) OnAssistantLLMCallEnd(ctx context.Context, agent assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
}
func (l *Noop) OnToolStart(ctx context.Context, agent assistants.IAssistant, server string, call llms.ToolCall) {
}
func (l *Noop) OnToolEnd(ctx context.Context, agent assistants.IAssistant, server string, call llms.ToolCall, output string) {
}
func (l *Noop) OnToolError(ctx context.Context, agent assistants.IAssistant, server string, call llms.ToolCall, err error) {
}
func (l *Noop) OnToolNotFound(ctx context.Context, agent assistants.IAssistant, tool string) {}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnAssistantStart(ctx context.Context, agent assistants.IAssistant, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Assistant Start: %s\n", agent.Name())
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Input: %s\n", input)
	}
}

func (l *Printer) OnAssistantEnd(ctx context.Context, agent assistants.IAssistant, input string, answer string, messages []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Assistant End: %s, %d messages\n", agent.Name(), len(messages))
	if l.Mode == ModeVerbose {
		fmt.Fprintln(l.Out, answer)
	}
}

func (l *Printer) OnAssistantError(ctx context.Context, agent assistants.IAssistant, input string, err error, messages []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Assistant Error: %s: %s\n", agent.Name(), err.Error())
	if l.Mode == ModeVerbose {
		llmutils.PrintMessages(l.Out, messages)
	}
}

func (l *Printer) OnAssistantLLMCallStart(ctx context.Context, agent assistants.IAssistant, llm llms.Model, payload []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Assistant LLM Call: %s: %s model, %d messages\n", agent.Name(), llm.GetName(), len(payload))
}

func (l *Printer) OnAssistantLLMCallEnd(ctx context.Context, agent assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Assistant LLM Call End: %s: %s model, %d tool calls\n", agent.Name(), llm.GetName(), len(resp.ToolCalls()))
}

func (l *Printer) OnToolStart(ctx context.Context, agent assistants.IAssistant, server string, call llms.ToolCall) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s (%s)\n", call.Name(), server)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Input: %s\n", call.Arguments())
	}
}

func (l *Printer) OnToolEnd(ctx context.Context, agent assistants.IAssistant, server string, call llms.ToolCall, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s (%s)\n", call.Name(), server)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", output)
	}
}

func (l *Printer) OnToolError(ctx context.Context, agent assistants.IAssistant, server string, call llms.ToolCall, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s (%s): %s\n", call.Name(), server, err.Error())
}

func (l *Printer) OnToolNotFound(ctx context.Context, agent assistants.IAssistant, tool string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", tool)
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnAssistantStart(ctx context.Context, agent assistants.IAssistant, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_start",
		"assistant", agent.Name(),
		"input", slices.StringUpto(input, 64),
	)
}

func (l *PackageLogger) OnAssistantEnd(ctx context.Context, agent assistants.IAssistant, input string, answer string, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_end",
		"assistant", agent.Name(),
		"messages", len(messages),
		"result", slices.StringUpto(answer, 64),
	)
}

func (l *PackageLogger) OnAssistantError(ctx context.Context, agent assistants.IAssistant, input string, err error, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "assistant_error",
		"assistant", agent.Name(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnAssistantLLMCallStart(ctx context.Context, agent assistants.IAssistant, llm llms.Model, payload []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_llm_call_start",
		"assistant", agent.Name(),
		"model", llm.GetName(),
		"messages", len(payload),
	)
}

func (l *PackageLogger) OnAssistantLLMCallEnd(ctx context.Context, agent assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_llm_call_end",
		"assistant", agent.Name(),
		"model", llm.GetName(),
		"tool_calls", len(resp.ToolCalls()),
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, agent assistants.IAssistant, server string, call llms.ToolCall) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"server", server,
		"tool", call.Name(),
		"input", call.Arguments(),
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, agent assistants.IAssistant, server string, call llms.ToolCall, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"server", server,
		"tool", call.Name(),
		"output", slices.StringUpto(output, 128),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, agent assistants.IAssistant, server string, call llms.ToolCall, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"server", server,
		"tool", call.Name(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, agent assistants.IAssistant, tool string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_not_found",
		"assistant", agent.Name(),
		"tool", tool,
	)
}
