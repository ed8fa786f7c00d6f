package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/internal/session"
	"github.com/forgekit/forge-agent/pkg/llm"
	"github.com/forgekit/forge-agent/pkg/streaming"
	"github.com/forgekit/forge-agent/pkg/tools"
)

// fakeProvider replays a fixed queue of responses, one per Send call.
type fakeProvider struct {
	responses []*llm.LLMResponse
	calls     int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Send(context.Context, llm.LLMRequest, streaming.Sink) (*llm.LLMResponse, error) {
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func u32p(v uint32) *uint32 { return &v }

func newEchoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(nil)
	err := reg.Register(tools.Spec{
		Name:            "echo",
		SupportedScopes: []tools.Scope{tools.ScopeAgent},
	}, func(_ context.Context, toolCallID string, input map[string]any) (tools.Result, error) {
		return echoResult{toolCallID: toolCallID}, nil
	})
	require.NoError(t, err)
	err = reg.Register(tools.Spec{
		Name:            "complete_task",
		SupportedScopes: []tools.Scope{tools.ScopeAgent},
	}, func(_ context.Context, toolCallID string, input map[string]any) (tools.Result, error) {
		summary, _ := input["summary"].(string)
		return echoResult{toolCallID: toolCallID, body: summary}, nil
	})
	require.NoError(t, err)
	reg.Freeze()
	return reg
}

type echoResult struct {
	toolCallID string
	body       string
}

func (r echoResult) IsSuccess() bool                            { return true }
func (r echoResult) Render(*tools.ResourcesTracker) string       { return r.body }
func (r echoResult) Status() string                              { return "ok" }
func (r echoResult) RenderForUI(*tools.ResourcesTracker) string   { return r.body }

func TestRunIteration_ExecutesToolThenContinues(t *testing.T) {
	s := session.New(nil, nil, session.Config{})
	provider := &fakeProvider{responses: []*llm.LLMResponse{
		{Content: []message.Block{message.ToolUseBlock{ID: "tc1", Name: "echo"}}},
	}}
	loop := New(Config{Session: s, Provider: provider, Registry: newEchoRegistry(t)})

	step, err := loop.RunIteration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepContinue, step)

	history := s.History()
	require.Len(t, history, 2) // assistant tool-use, user tool-result
	results := history[1].ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, "tc1", results[0].ToolUseID)
}

func TestRunIteration_CompleteTaskReturnsDone(t *testing.T) {
	s := session.New(nil, nil, session.Config{})
	provider := &fakeProvider{responses: []*llm.LLMResponse{
		{Content: []message.Block{message.ToolUseBlock{
			ID: "tc1", Name: "complete_task", Input: map[string]any{"summary": "all done"},
		}}},
	}}
	loop := New(Config{Session: s, Provider: provider, Registry: newEchoRegistry(t)})

	step, err := loop.RunIteration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepDone, step)
	assert.Equal(t, "all done", loop.LastSummary())

	// complete_task must not produce a ToolResult block in history.
	history := s.History()
	for _, m := range history {
		for _, r := range m.ToolResults() {
			assert.NotEqual(t, "tc1", r.ToolUseID)
		}
	}
}

func TestRunIteration_ZeroToolRequestsNeedsUserInput(t *testing.T) {
	s := session.New(nil, nil, session.Config{})
	provider := &fakeProvider{responses: []*llm.LLMResponse{
		{Content: []message.Block{message.TextBlock{Text: "what should I do next?"}}},
	}}
	loop := New(Config{Session: s, Provider: provider, Registry: newEchoRegistry(t)})

	step, err := loop.RunIteration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepNeedsUserInput, step)

	loop.SubmitUserInput("go ahead")
	history := s.History()
	assert.Equal(t, "go ahead", history[len(history)-1].Text())
}

// TestRunIteration_CompactionDoesNotImmediatelyRetrigger guards against the
// compaction round trip's own near-limit summary exchange making the very
// next ShouldCompact check fire again: RunIteration runs compaction as a
// prefix of the same call that then performs a fresh, smaller-context
// iteration, so by the time it returns, the latest assistant-with-usage
// message reflects the post-compaction size.
func TestRunIteration_CompactionDoesNotImmediatelyRetrigger(t *testing.T) {
	s := session.New(nil, nil, session.Config{
		ContextManagementEnabled: true,
		ContextLimit:             u32p(10000),
	})
	s.AppendMessage(message.Message{Role: message.Assistant, Usage: &message.Usage{InputTokens: 9000}})

	provider := &fakeProvider{responses: []*llm.LLMResponse{
		// compaction's own summary request/response: still near the limit.
		{Content: []message.Block{message.TextBlock{Text: "Original Task: ...\nProgress Made: ...\nWorking Memory: ...\nNext Steps: ..."}},
			Usage: message.Usage{InputTokens: 8900}},
		// the normal iteration that follows, now working from a small
		// active set.
		{Content: []message.Block{message.ToolUseBlock{ID: "tc1", Name: "echo"}},
			Usage: message.Usage{InputTokens: 500}},
	}}
	loop := New(Config{Session: s, Provider: provider, Registry: newEchoRegistry(t)})

	_, err := loop.RunIteration(context.Background())
	require.NoError(t, err)

	assert.False(t, s.ShouldCompact(), "compaction must not re-trigger immediately after running once")
	assert.EqualValues(t, 1, s.CompactionCount())
}

func TestSystemPrompt_RoutesByModelHint(t *testing.T) {
	assert.NotEmpty(t, SystemPrompt(""))
	assert.NotEqual(t, SystemPrompt("claude-haiku"), SystemPrompt("claude-sonnet"))
}
