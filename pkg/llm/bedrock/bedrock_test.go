package bedrock

import (
	"testing"
	"time"

	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/pkg/streaming"
)

func TestConvertMessages_RoleMapping(t *testing.T) {
	msgs := []message.Message{
		message.New(message.User, message.TextBlock{Text: "hi"}),
		message.New(message.Assistant, message.TextBlock{Text: "hello"}),
	}

	out := convertMessages(msgs)
	require.Len(t, out, 2)
	assert.Equal(t, bedrocktypes.ConversationRoleUser, out[0].Role)
	assert.Equal(t, bedrocktypes.ConversationRoleAssistant, out[1].Role)
}

func TestConvertMessages_DropsEmptyMessages(t *testing.T) {
	msgs := []message.Message{
		message.New(message.User),
		message.New(message.User, message.TextBlock{Text: "hi"}),
	}

	out := convertMessages(msgs)
	assert.Len(t, out, 1)
}

func TestConvertMessages_ToolUseAndResult(t *testing.T) {
	isErr := true
	msgs := []message.Message{
		message.New(message.Assistant, message.ToolUseBlock{
			ID: "tool_1", Name: "read_file", Input: map[string]any{"path": "a.go"},
		}),
		message.New(message.User, message.ToolResultBlock{
			ToolUseID: "tool_1", Content: "boom", IsError: &isErr,
		}),
	}

	out := convertMessages(msgs)
	require.Len(t, out, 2)

	tu, ok := out[0].Content[0].(*bedrocktypes.ContentBlockMemberToolUse)
	require.True(t, ok)
	assert.Equal(t, "read_file", *tu.Value.Name)

	tr, ok := out[1].Content[0].(*bedrocktypes.ContentBlockMemberToolResult)
	require.True(t, ok)
	assert.Equal(t, bedrocktypes.ToolResultStatusError, tr.Value.Status)
}

func TestInterpolate_DistributesAcrossBlocks(t *testing.T) {
	start := time.Unix(0, 0)
	end := start.Add(10 * time.Second)

	s0, e0 := interpolate(start, end, 0, 2)
	s1, e1 := interpolate(start, end, 1, 2)

	assert.Equal(t, start, s0)
	assert.Equal(t, e0, s1)
	assert.Equal(t, end, e1)
}

func TestInterpolate_SingleBlockSpansWholeRequest(t *testing.T) {
	start := time.Unix(0, 0)
	end := start.Add(5 * time.Second)

	s, e := interpolate(start, end, 0, 1)
	assert.Equal(t, start, s)
	assert.Equal(t, end, e)
}

type fakeSink struct{ fragments []streaming.Fragment }

func (f *fakeSink) Send(fr streaming.Fragment) { f.fragments = append(f.fragments, fr) }

func TestEmitSyntheticFragments_EndsWithComplete(t *testing.T) {
	blocks := []message.Block{
		message.TextBlock{Text: "hi"},
		message.ToolUseBlock{ID: "t1", Name: "read_file", Input: map[string]any{"path": "a.go"}},
	}

	sink := &fakeSink{}
	emitSyntheticFragments(sink, blocks)

	require.NotEmpty(t, sink.fragments)
	_, isComplete := sink.fragments[len(sink.fragments)-1].(streaming.Complete)
	assert.True(t, isComplete)

	var sawToolName, sawToolEnd bool
	for _, f := range sink.fragments {
		switch f.(type) {
		case streaming.ToolName:
			sawToolName = true
		case streaming.ToolEnd:
			sawToolEnd = true
		}
	}
	assert.True(t, sawToolName)
	assert.True(t, sawToolEnd)
}
