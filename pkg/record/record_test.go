package record

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekit/forge-agent/pkg/streaming"
)

func TestRecorder_AppendStampsOffsets(t *testing.T) {
	start := time.Now()
	r := NewRecorder([]byte(`{"model":"x"}`), start)
	r.Append(`data: {"type":"message_start"}`)
	time.Sleep(time.Millisecond)
	r.Append(`data: {"type":"message_stop"}`)

	sess, err := r.Finish()
	require.NoError(t, err)
	require.Len(t, sess.Chunks, 2)
	assert.GreaterOrEqual(t, sess.Chunks[1].TimestampMs, sess.Chunks[0].TimestampMs)
}

func TestRecorder_CompressesLargeChunkSets(t *testing.T) {
	r := NewRecorder([]byte(`{}`), time.Now())
	big := strings.Repeat("x", compressionThreshold)
	r.Append(`data: {"type":"content_block_delta","delta":{"text":"` + big + `"}}`)

	sess, err := r.Finish()
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Compressed)
	assert.Empty(t, sess.Chunks)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")

	r := NewRecorder([]byte(`{"model":"x"}`), time.Now())
	r.Append(`data: {"type":"a"}`)
	sess, err := r.Finish()
	require.NoError(t, err)

	require.NoError(t, Save(path, []Session{sess}))
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, sess.Chunks, loaded[0].Chunks)
}

func TestSaveLoad_RoundTripsCompressedSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")

	r := NewRecorder([]byte(`{}`), time.Now())
	big := strings.Repeat("y", compressionThreshold)
	r.Append(`data: ` + big)
	sess, err := r.Finish()
	require.NoError(t, err)

	require.NoError(t, Save(path, []Session{sess}))
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Empty(t, loaded[0].Compressed)
	require.Len(t, loaded[0].Chunks, 1)
	assert.Equal(t, `data: `+big, loaded[0].Chunks[0].Data)
}

type recordingSink struct{ fragments []streaming.Fragment }

func (s *recordingSink) Send(f streaming.Fragment) { s.fragments = append(s.fragments, f) }

func TestPlayer_ReplaysThroughStreamingParser(t *testing.T) {
	r := NewRecorder([]byte(`{}`), time.Now())
	r.Append(`data: {"type":"message_start"}`)
	r.Append(`data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}`)
	r.Append(`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`)
	r.Append(`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"! How"}}`)
	r.Append(`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" can I help you?"}}`)
	r.Append(`data: {"type":"content_block_stop","index":0}`)
	r.Append(`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}`)
	r.Append(`data: {"type":"message_stop"}`)
	sess, err := r.Finish()
	require.NoError(t, err)

	sink := &recordingSink{}
	player := NewPlayer(sess)
	blocks, _, err := player.Replay(streaming.SyntaxNative, sink, nil)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	var texts []string
	sawComplete := false
	for _, f := range sink.fragments {
		switch v := f.(type) {
		case streaming.PlainText:
			texts = append(texts, v.Text)
		case streaming.Complete:
			sawComplete = true
		}
	}
	assert.Equal(t, []string{"Hi", "! How", " can I help you?"}, texts)
	assert.True(t, sawComplete)
}
