package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/pkg/tools"
)

func u32(v uint32) *uint32 { return &v }

func TestShouldCompact_ThresholdBoundary(t *testing.T) {
	s := New(nil, nil, Config{ContextManagementEnabled: true, ContextLimit: u32(10000)})
	s.AppendMessage(message.Message{
		Role:  message.Assistant,
		Usage: &message.Usage{InputTokens: 8499},
	})
	assert.False(t, s.ShouldCompact())

	s2 := New(nil, nil, Config{ContextManagementEnabled: true, ContextLimit: u32(10000)})
	s2.AppendMessage(message.Message{
		Role:  message.Assistant,
		Usage: &message.Usage{InputTokens: 8500},
	})
	assert.True(t, s2.ShouldCompact())
}

func TestShouldCompact_DisabledOrNoLimit(t *testing.T) {
	s := New(nil, nil, Config{ContextManagementEnabled: false, ContextLimit: u32(1)})
	s.AppendMessage(message.Message{Role: message.Assistant, Usage: &message.Usage{InputTokens: 999999}})
	assert.False(t, s.ShouldCompact())

	s2 := New(nil, nil, Config{ContextManagementEnabled: true})
	s2.AppendMessage(message.Message{Role: message.Assistant, Usage: &message.Usage{InputTokens: 999999}})
	assert.False(t, s2.ShouldCompact())
}

func TestActiveMessages_StartsAfterLastCompaction(t *testing.T) {
	s := New(nil, nil, Config{})
	s.AppendMessage(message.New(message.User, message.TextBlock{Text: "archived"}))
	s.AppendMessage(message.New(message.User, message.CompactionBlock{CompactionNumber: 1, Summary: "sum"}))
	s.AppendMessage(message.New(message.User, message.TextBlock{Text: "after"}))

	active := s.ActiveMessages()
	require.Len(t, active, 2)
	_, ok := active[0].Compaction()
	assert.True(t, ok)
	assert.Equal(t, "after", active[1].Text())
}

func TestNextRequestID_StartsAtOne(t *testing.T) {
	s := New(nil, nil, Config{})
	assert.EqualValues(t, 1, s.NextRequestID())
	assert.EqualValues(t, 2, s.NextRequestID())
}

type fakeResult struct {
	body string
	kind string
	id   string
}

func (f fakeResult) IsSuccess() bool                                  { return true }
func (f fakeResult) Status() string                                   { return "ok" }
func (f fakeResult) RenderForUI(*tools.ResourcesTracker) string        { return f.body }
func (f fakeResult) ResourceKey() (kind, identity string, ok bool)     { return f.kind, f.id, f.kind != "" }
func (f fakeResult) Render(tracker *tools.ResourcesTracker) string {
	if f.kind == "" || tracker == nil {
		return f.body
	}
	key := tools.ResourceKey(f.kind, f.id)
	if !tracker.Claim(key, "") {
		return tools.Reference(f.kind, f.id, "")
	}
	return f.body
}

func TestRenderOutbound_NewestExecutionWinsDedup(t *testing.T) {
	s := New(nil, nil, Config{})
	s.RecordToolExecution(ToolExecution{
		Request: ToolRequest{ID: "tc1", Name: "read_file"},
		Result:  fakeResult{body: "old content", kind: "file", id: "a.txt"},
	})
	s.RecordToolExecution(ToolExecution{
		Request: ToolRequest{ID: "tc2", Name: "read_file"},
		Result:  fakeResult{body: "new content", kind: "file", id: "a.txt"},
	})
	s.AppendMessage(message.New(message.Assistant,
		message.ToolUseBlock{ID: "tc1", Name: "read_file"},
		message.ToolUseBlock{ID: "tc2", Name: "read_file"},
	))
	s.AppendMessage(message.New(message.User,
		message.ToolResultBlock{ToolUseID: "tc1"},
		message.ToolResultBlock{ToolUseID: "tc2"},
	))

	out, err := s.RenderOutbound()
	require.NoError(t, err)
	results := out[1].ToolResults()
	require.Len(t, results, 2)
	assert.Contains(t, results[1].Content, "new content")
	assert.Contains(t, results[0].Content, "omitted")
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New(nil, nil, Config{ToolScope: tools.ScopeAgent})
	s.AppendMessage(message.New(message.User, message.TextBlock{Text: "hi"}))
	s.RecordToolExecution(ToolExecution{
		Request: ToolRequest{ID: "tc1", Name: "read_file", Input: map[string]any{"path": "a.txt"}},
		Result:  fakeResult{body: "hello", kind: "file", id: "a.txt"},
	})

	restored := FromSnapshot(s.Snapshot())
	assert.Equal(t, s.ID(), restored.ID())
	require.Len(t, restored.History(), 1)
	assert.Equal(t, "hi", restored.History()[0].Text())
	execs := restored.ToolExecutions()
	require.Len(t, execs, 1)
	assert.True(t, execs[0].Result.IsSuccess())
	assert.Equal(t, "hello", execs[0].Result.Render(nil))
}
