package streaming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// sseBody joins each line as its own SSE event, blank-line terminated, the
// way a real provider stream frames events.
func sseBody(lines ...string) *strings.Reader {
	return strings.NewReader(strings.Join(lines, "\n\n") + "\n\n")
}

func TestNativeParser_TextOnly(t *testing.T) {
	var fragments []Fragment
	sink := SinkFunc(func(f Fragment) { fragments = append(fragments, f) })

	body := sseBody(
		`data: {"type":"message_start"}`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hello "}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"world"}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`,
		`data: {"type":"message_stop","usage":{"input_tokens":10,"output_tokens":2}}`,
	)

	blocks, usage, err := NewNativeParser(sink).Run(body, nil)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Equal(t, uint32(10), usage.InputTokens)

	require.IsType(t, Complete{}, fragments[len(fragments)-1])
}

func TestNativeParser_BlockIndexMismatchIsFatal(t *testing.T) {
	body := sseBody(
		`data: {"type":"content_block_start","index":1,"content_block":{"type":"text"}}`,
	)
	_, _, err := NewNativeParser(DiscardSink).Run(body, nil)
	require.Error(t, err)
}

func TestNativeParser_ToolUseStreamedInput(t *testing.T) {
	var params []ToolParameter
	sink := SinkFunc(func(f Fragment) {
		if p, ok := f.(ToolParameter); ok {
			params = append(params, p)
		}
	})

	body := sseBody(
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"t1","name":"read_file"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"path\": \"/a/b.txt\""}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"message_stop"}`,
	)

	blocks, _, err := NewNativeParser(sink).Run(body, nil)
	require.NoError(t, err)
	require.Len(t, params, 1)
	require.Equal(t, "path", params[0].Name)
	require.Equal(t, "/a/b.txt", params[0].Value)
	require.Len(t, blocks, 1)
}

func TestPartialJSONTokenizer_FeedsAcrossChunks(t *testing.T) {
	tok := newPartialJSONTokenizer()
	var got []ToolParameter
	got = append(got, tok.Feed(`"a": "one"`)...)
	got = append(got, tok.Feed(`, "b": `)...)
	got = append(got, tok.Feed(`42`)...)
	got = append(got, tok.Feed(`}`)...)

	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].Name)
	require.Equal(t, "one", got[0].Value)
	require.Equal(t, "b", got[1].Name)
	require.Equal(t, "42", got[1].Value)
}
