package assistants

import (
	"context"

	"github.com/effective-security/mcpchat/mcpclient"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "assistants")

//go:generate mockgen -destination=../mocks/mockllms/llm_mock.gen.go -package mockllms github.com/effective-security/mcpchat/pkg/llms Model

// IAssistant is the conversation driver.
type IAssistant interface {
	// Name returns the name of the Assistant.
	Name() string
	// Call runs one turn and returns the final answer.
	Call(ctx context.Context, input string) (string, error)
}

// ToolRegistry provides the tools and their owners.
type ToolRegistry interface {
	ListAllTools(ctx context.Context) []mcpclient.ToolDescriptor
	FindOwner(tool string) (mcpclient.ToolExecutor, error)
}

// SessionManager initializes and releases the MCP sessions.
type SessionManager interface {
	InitializeAll(ctx context.Context) error
	CleanupAll(ctx context.Context) error
}

var _ ToolRegistry = (*mcpclient.Registry)(nil)
var _ SessionManager = (*mcpclient.Registry)(nil)

// Callback receives the events of the conversation loop.
type Callback interface {
	OnAssistantStart(ctx context.Context, agent IAssistant, input string)
	OnAssistantEnd(ctx context.Context, agent IAssistant, input string, answer string, messages []llms.Message)
	OnAssistantError(ctx context.Context, agent IAssistant, input string, err error, messages []llms.Message)
	OnAssistantLLMCallStart(ctx context.Context, agent IAssistant, llm llms.Model, payload []llms.Message)
	OnAssistantLLMCallEnd(ctx context.Context, agent IAssistant, llm llms.Model, resp *llms.ContentResponse)
	OnToolStart(ctx context.Context, agent IAssistant, server string, call llms.ToolCall)
	OnToolEnd(ctx context.Context, agent IAssistant, server string, call llms.ToolCall, output string)
	OnToolError(ctx context.Context, agent IAssistant, server string, call llms.ToolCall, err error)
	OnToolNotFound(ctx context.Context, agent IAssistant, tool string)
}

// Run initializes all sessions, calls fn and releases the sessions.
// The sessions are released on every return path, including a failed
// initialization, a canceled ctx or a panic in fn.
func Run(ctx context.Context, sessions SessionManager, fn func(ctx context.Context) error) (err error) {
	defer func() {
		// ctx may be canceled at this point
		if cerr := sessions.CleanupAll(context.WithoutCancel(ctx)); cerr != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "cleanup_failed",
				"err", cerr.Error())
		}
	}()

	if err = sessions.InitializeAll(ctx); err != nil {
		return err
	}
	return fn(ctx)
}
