package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekit/forge-agent/internal/message"
)

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	s := New(nil, nil, Config{ContextManagementEnabled: true, ContextLimit: u32(1000)})
	s.AppendMessage(message.New(message.User, message.TextBlock{Text: "hello"}))
	s.AppendMessage(message.New(message.Assistant,
		message.ToolUseBlock{ID: "tc1", Name: "read_file", Input: map[string]any{"path": "a.txt"}},
	))
	s.RecordToolExecution(ToolExecution{
		Request: ToolRequest{ID: "tc1", Name: "read_file"},
		Result:  fakeResult{body: "file contents", kind: "file", id: "a.txt"},
	})

	require.NoError(t, store.Save(s))
	assert.FileExists(t, filepath.Join(dir, s.ID()+".json"))

	restored, err := store.Load(s.ID())
	require.NoError(t, err)
	assert.Equal(t, s.ID(), restored.ID())
	require.Len(t, restored.History(), 2)
	assert.Equal(t, "hello", restored.History()[0].Text())

	toolUses := restored.History()[1].ToolUses()
	require.Len(t, toolUses, 1)
	assert.Equal(t, "read_file", toolUses[0].Name)
	assert.Equal(t, "a.txt", toolUses[0].Input["path"])

	out, err := restored.RenderOutbound()
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
