package callbacks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssistant struct{ name string }

func (a *fakeAssistant) Name() string { return a.name }
func (a *fakeAssistant) Call(context.Context, string) (string, error) {
	return "", nil
}

type fakeModel struct{}

func (fakeModel) GetName() string                     { return "fake-model" }
func (fakeModel) GetProviderType() llms.ProviderType { return llms.ProviderAnthropic }
func (fakeModel) GenerateContent(context.Context, []llms.Message, ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, nil
}

func newTestChatContext() (context.Context, chatmodel.ChatContext) {
	chatCtx := chatmodel.NewChatContext("chatid", nil)
	ctx := chatmodel.WithChatContext(context.Background(), chatCtx)
	return ctx, chatCtx
}

func TestScratchpad_StartRun_EndRun(t *testing.T) {
	sp := NewScratchpad(ModeVerbose)
	ctx, cctx := newTestChatContext()
	sp.StartRun(ctx)

	r := sp.runs[cctx.GetChatID()]
	require.NotNil(t, r)
	r.stats.AssistantCalls = 2
	r.stats.AssistantCallsFailed = 1
	r.stats.ToolsCalls = 3
	r.stats.ToolsCallsFailed = 2
	r.stats.ToolNotFound = 1
	r.stats.AssistantLLMCalls = 1
	r.stats.TotalMessages = 4
	r.stats.LLMBytesOut = 10
	r.stats.LLMBytesIn = 11

	stats, buf := sp.EndRun(ctx)
	require.NotNil(t, stats)
	assert.Equal(t, "chatid", stats.ChatID)
	assert.Equal(t, cctx.RunID(), stats.RunID)

	out := string(buf)
	assert.Contains(t, out, "Run Started")
	assert.Contains(t, out, "Run Ended")
	assert.Contains(t, out, "Assistant calls: 2, Failed: 1")
	assert.Contains(t, out, "Tool calls: 3, Failed: 2, Not Found: 1")
	assert.Contains(t, out, "Bytes Total: 21")

	_, ok := sp.runs[cctx.GetChatID()]
	assert.False(t, ok)

	s2, _ := sp.EndRun(ctx)
	assert.Nil(t, s2)
}

func TestScratchpad_NoRun(t *testing.T) {
	sp := NewScratchpad(ModeDefault)
	assert.Nil(t, sp.getRun(context.Background()))

	// no chat context, nothing is started
	sp.StartRun(context.Background())
	assert.Empty(t, sp.runs)

	ctx, _ := newTestChatContext()
	assert.Nil(t, sp.getRun(ctx))
}

func TestScratchpad_OnCallbacks(t *testing.T) {
	sp := NewScratchpad(ModeVerbose)
	ctx, _ := newTestChatContext()
	sp.StartRun(ctx)

	ast := &fakeAssistant{name: "A1"}
	call := llms.ToolCall{
		ID:           "call_1",
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: "T1", Arguments: `{"q":"x"}`},
	}
	payload := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "system"),
		llms.MessageFromTextParts(llms.RoleHuman, "foo"),
	}
	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        "Answer 1",
			GenerationInfo: map[string]any{"InputTokens": int64(7), "OutputTokens": int64(3)},
		}},
	}

	sp.OnAssistantStart(ctx, ast, "input")
	sp.OnAssistantLLMCallStart(ctx, ast, fakeModel{}, payload)
	sp.OnAssistantLLMCallEnd(ctx, ast, fakeModel{}, resp)
	sp.OnToolStart(ctx, ast, "A", call)
	sp.OnToolEnd(ctx, ast, "A", call, "toutput")
	sp.OnToolError(ctx, ast, "A", call, errors.New("terr"))
	sp.OnToolNotFound(ctx, ast, "T2")
	sp.OnAssistantEnd(ctx, ast, "input", "Answer 1", payload)
	sp.OnAssistantError(ctx, ast, "input", errors.New("fail"), payload)

	stats, output := sp.EndRun(ctx)
	require.NotNil(t, stats)
	assert.Equal(t, uint32(1), stats.AssistantCalls)
	assert.Equal(t, uint32(1), stats.AssistantCallsSucceeded)
	assert.Equal(t, uint32(1), stats.AssistantCallsFailed)
	assert.Equal(t, uint32(1), stats.AssistantLLMCalls)
	assert.Equal(t, uint32(2), stats.TotalMessages)
	assert.Equal(t, uint32(1), stats.ToolsCalls)
	assert.Equal(t, uint32(1), stats.ToolsCallsSucceeded)
	assert.Equal(t, uint32(1), stats.ToolsCallsFailed)
	assert.Equal(t, uint32(1), stats.ToolNotFound)
	assert.Equal(t, uint64(7), stats.LLMInputTokens)
	assert.Equal(t, uint64(3), stats.LLMOutputTokens)
	assert.Equal(t, uint64(10), stats.LLMTotalTokens)
	assert.Equal(t, uint64(len("Answer 1")), stats.LLMBytesIn)

	out := string(output)
	assert.Contains(t, out, "A1 *** Assistant Start ***")
	assert.Contains(t, out, "A1 *** Assistant End ***")
	assert.Contains(t, out, "A1 T1 *** Tool Start *** A")
	assert.Contains(t, out, "A1 T1 Input: {\"q\":\"x\"}")
	assert.Contains(t, out, "A1 T1 Output: toutput")
	assert.Contains(t, out, "A1 T1 *** Tool End ***")
	assert.Contains(t, out, "A1 T1 *** Tool Error *** terr")
	assert.Contains(t, out, "*** LLM Call *** fake-model model, 2 messages")
	assert.Contains(t, out, "*** LLM Call End *** fake-model model, 0 tool calls, 7 input tokens, 3 output tokens, 10 total tokens")
	assert.Contains(t, out, "*** Tool Not Found *** T2")
	assert.Contains(t, out, "*** Error *** fail")

	// callbacks after the run ended are ignored
	sp.OnAssistantStart(ctx, ast, "input")
	sp.OnAssistantEnd(ctx, ast, "input", "Answer 1", nil)
	sp.OnAssistantLLMCallStart(ctx, ast, fakeModel{}, nil)
	sp.OnAssistantLLMCallEnd(ctx, ast, fakeModel{}, nil)
	sp.OnAssistantError(ctx, ast, "input", errors.New("fail2"), nil)
	sp.OnToolStart(ctx, ast, "A", call)
	sp.OnToolEnd(ctx, ast, "A", call, "toutput")
	sp.OnToolError(ctx, ast, "A", call, errors.New("terr2"))
	sp.OnToolNotFound(ctx, ast, "T3")
	assert.Empty(t, sp.runs)
}

func Test_run_print_format(t *testing.T) {
	_, chatCtx := newTestChatContext()
	r := &run{chatCtx: chatCtx}
	oldTimeFn := TimeNowFn
	TimeNowFn = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { TimeNowFn = oldTimeFn }()

	r.print("hello", "again")
	lines := strings.Split(r.w.String(), "\n")
	require.NotEmpty(t, lines[0])
	assert.Equal(t, "2024-01-01 12:00:00 "+chatCtx.GetChatID()+"."+chatCtx.RunID()+" hello again", lines[0])
}
