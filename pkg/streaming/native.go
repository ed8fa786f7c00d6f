package streaming

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	sse "github.com/r3labs/sse/v2"

	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/pkg/agenterrors"
)

// nativeEvent is the minimal shape of every SSE data payload the Native
// dialect emits (spec §4.1: "SSE framing (reference dialect)").
type nativeEvent struct {
	Type         string `json:"type"`
	Index        *int   `json:"index"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		Signature   string `json:"signature"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage *struct {
		InputTokens              uint32 `json:"input_tokens"`
		OutputTokens             uint32 `json:"output_tokens"`
		CacheCreationInputTokens uint32 `json:"cache_creation_input_tokens"`
		CacheReadInputTokens     uint32 `json:"cache_read_input_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// nativeBlock tracks one in-progress content block by its provider index.
type nativeBlock struct {
	kind      string // "text", "thinking", "tool_use", "redacted_thinking"
	id        string
	name      string
	text      strings.Builder
	signature string
	tokenizer *partialJSONTokenizer
	input     map[string]any
}

// NativeParser implements the Native dialect: the provider emits explicit
// content-block start/delta/stop events, so no text-level tag scanning is
// needed (spec §4.1).
type NativeParser struct {
	sink    Sink
	blocks  []*nativeBlock
	usage   message.Usage
	stopped bool
}

// NewNativeParser creates a parser that emits Fragments to sink.
func NewNativeParser(sink Sink) *NativeParser {
	if sink == nil {
		sink = DiscardSink
	}
	return &NativeParser{sink: sink}
}

// Run reads SSE events from body until EOF, a fatal parse error, or cancel
// is set (polled once per event, per spec §4.4's "polled at every streaming
// chunk"). It returns the finalized content blocks and usage.
//
// Line framing is delegated to r3labs/sse's EventStreamReader — the same
// library the teacher uses for its MCP transport (pkg/mcp/transport/http.go),
// here used at its lower level: it only splits the raw byte stream into
// discrete SSE event chunks, leaving the "data:" field extraction and the
// entire content model hand-rolled (spec §4.1).
func (p *NativeParser) Run(body io.Reader, cancel *atomic.Bool) ([]message.Block, message.Usage, error) {
	reader := sse.NewEventStreamReader(body, 1024*1024)

	for {
		if cancel != nil && cancel.Load() {
			return nil, p.usage, agenterrors.NewCancelledError()
		}

		raw, err := reader.ReadEvent()
		if err != nil && len(raw) == 0 {
			if err == io.EOF {
				// Stream closed without message_stop: treat whatever was
				// accumulated as final, matching the teacher's tolerant EOF
				// handling.
				return p.finalize(), p.usage, nil
			}
			return nil, p.usage, agenterrors.NewNetworkError("reading stream", err)
		}

		payload, ok := dataPayload(raw)
		if !ok {
			if err == io.EOF {
				return p.finalize(), p.usage, nil
			}
			continue // SSE "event:" lines and blank separators carry no payload here
		}

		var ev nativeEvent
		if unmarshalErr := json.Unmarshal(payload, &ev); unmarshalErr != nil {
			return nil, p.usage, agenterrors.NewParseError("malformed event JSON", unmarshalErr)
		}

		blocks, usage, done, handleErr := p.handle(ev)
		if handleErr != nil {
			return nil, p.usage, handleErr
		}
		if usage != nil {
			p.usage = *usage
		}
		if done {
			p.sink.Send(Complete{})
			return blocks, p.usage, nil
		}
		if err == io.EOF {
			return p.finalize(), p.usage, nil
		}
	}
}

// dataPayload extracts and concatenates every "data:" field from one raw SSE
// event chunk, the way the SSE spec joins multi-line data fields.
func dataPayload(raw []byte) ([]byte, bool) {
	var buf strings.Builder
	found := false
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		found = true
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
	}
	if !found || buf.Len() == 0 {
		return nil, false
	}
	return []byte(buf.String()), true
}

func (p *NativeParser) handle(ev nativeEvent) (blocks []message.Block, usage *message.Usage, done bool, err error) {
	switch ev.Type {
	case "ping", "message_start":
		return nil, nil, false, nil

	case "content_block_start":
		if ev.Index == nil || ev.ContentBlock == nil {
			return nil, nil, false, agenterrors.NewParseError("content_block_start missing index or block", nil)
		}
		if *ev.Index != len(p.blocks) {
			return nil, nil, false, agenterrors.NewParseError(
				fmt.Sprintf("block index %d out of order, expected %d", *ev.Index, len(p.blocks)), nil)
		}
		b := &nativeBlock{kind: ev.ContentBlock.Type, id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
		if b.kind == "tool_use" {
			b.tokenizer = newPartialJSONTokenizer()
			p.sink.Send(ToolName{Name: b.name, ID: b.id})
		}
		p.blocks = append(p.blocks, b)
		return nil, nil, false, nil

	case "content_block_delta":
		if ev.Index == nil || ev.Delta == nil {
			return nil, nil, false, agenterrors.NewParseError("content_block_delta missing index or delta", nil)
		}
		b, err := p.blockAt(*ev.Index)
		if err != nil {
			return nil, nil, false, err
		}
		switch ev.Delta.Type {
		case "text_delta":
			b.text.WriteString(ev.Delta.Text)
			p.sink.Send(PlainText{Text: ev.Delta.Text})
		case "thinking_delta":
			b.text.WriteString(ev.Delta.Thinking)
			p.sink.Send(ThinkingText{Text: ev.Delta.Thinking})
		case "signature_delta":
			b.signature += ev.Delta.Signature
		case "input_json_delta":
			for _, param := range b.tokenizer.Feed(ev.Delta.PartialJSON) {
				param.ToolID = b.id
				p.sink.Send(param)
			}
		default:
			return nil, nil, false, agenterrors.NewParseError("unknown delta type "+ev.Delta.Type, nil)
		}
		return nil, nil, false, nil

	case "content_block_stop":
		if ev.Index == nil {
			return nil, nil, false, agenterrors.NewParseError("content_block_stop missing index", nil)
		}
		b, err := p.blockAt(*ev.Index)
		if err != nil {
			return nil, nil, false, err
		}
		if b.kind == "tool_use" {
			var input map[string]any
			if err := json.Unmarshal([]byte(toolUseJSONBody(b)), &input); err != nil {
				input = map[string]any{}
			}
			b.input = input
			p.sink.Send(ToolEnd{ID: b.id})
		}
		return nil, nil, false, nil

	case "message_delta":
		if ev.Usage != nil {
			u := p.usage
			u.OutputTokens = ev.Usage.OutputTokens
			return nil, &u, false, nil
		}
		return nil, nil, false, nil

	case "message_stop":
		u := p.usage
		if ev.Usage != nil {
			u.InputTokens = ev.Usage.InputTokens
			u.OutputTokens = ev.Usage.OutputTokens
			u.CacheCreationInputTokens = ev.Usage.CacheCreationInputTokens
			u.CacheReadInputTokens = ev.Usage.CacheReadInputTokens
		}
		return p.finalize(), &u, true, nil

	case "error":
		msg := "provider error"
		if ev.Error != nil {
			msg = ev.Error.Message
			if ev.Error.Type == "overloaded_error" {
				return nil, nil, false, agenterrors.NewRateLimitError(msg, nil, nil)
			}
		}
		return nil, nil, false, agenterrors.NewServiceError(msg, nil)

	default:
		return nil, nil, false, nil // unknown-but-harmless event types are ignored
	}
}

func (p *NativeParser) blockAt(index int) (*nativeBlock, error) {
	if index < 0 || index >= len(p.blocks) {
		return nil, agenterrors.NewParseError(fmt.Sprintf("no block at index %d", index), nil)
	}
	return p.blocks[index], nil
}

// toolUseJSONBody returns the tool input as complete JSON object text: the
// tokenizer's raw accumulated buffer, wrapped in braces when the deltas
// carried only the object body.
func toolUseJSONBody(b *nativeBlock) string {
	raw := strings.TrimSpace(b.tokenizer.buf.String())
	if strings.HasPrefix(raw, "{") {
		return raw
	}
	return "{" + raw + "}"
}

func (p *NativeParser) finalize() []message.Block {
	out := make([]message.Block, 0, len(p.blocks))
	for _, b := range p.blocks {
		switch b.kind {
		case "text":
			out = append(out, message.TextBlock{Text: b.text.String()})
		case "thinking":
			out = append(out, message.ThinkingBlock{Thinking: b.text.String(), Signature: b.signature})
		case "redacted_thinking":
			out = append(out, message.RedactedThinkingBlock{Data: b.text.String()})
		case "tool_use":
			out = append(out, message.ToolUseBlock{ID: b.id, Name: b.name, Input: b.input})
		}
	}
	return out
}
