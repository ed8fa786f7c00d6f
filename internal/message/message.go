// Package message defines the canonical message and content-block vocabulary
// shared by the streaming parser, the provider transport, the tool registry,
// and the agent loop (spec §3, Message & Content Model).
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the sender of a Message.
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	Role      Role
	Content   []Block
	RequestID *uint64
	Usage     *Usage
}

// Usage reports provider-side token accounting for one assistant Message.
type Usage struct {
	InputTokens              uint32
	OutputTokens             uint32
	CacheCreationInputTokens uint32
	CacheReadInputTokens     uint32
}

// Block is the tagged-union content element of a Message (spec §3,
// ContentBlock). Each concrete type also implements TimeSpan.
type Block interface {
	isBlock()
	TimeSpan() (start, end *time.Time)
}

// blockTimes is embedded by every Block implementation to carry the optional
// start/end timestamps spec §3 attaches to every variant.
type blockTimes struct {
	StartTime *time.Time
	EndTime   *time.Time
}

func (b blockTimes) TimeSpan() (start, end *time.Time) { return b.StartTime, b.EndTime }

// WithTimes returns a copy of b with its start/end timestamps set. Used by
// non-streaming providers (spec §4.2) to distribute a single request's
// wall-clock span across its response blocks, since streaming providers
// derive timestamps from individual SSE events instead.
func WithTimes(b Block, start, end time.Time) Block {
	t := blockTimes{StartTime: &start, EndTime: &end}
	switch v := b.(type) {
	case TextBlock:
		v.blockTimes = t
		return v
	case ThinkingBlock:
		v.blockTimes = t
		return v
	case RedactedThinkingBlock:
		v.blockTimes = t
		return v
	case ImageBlock:
		v.blockTimes = t
		return v
	case ToolUseBlock:
		v.blockTimes = t
		return v
	case ToolResultBlock:
		v.blockTimes = t
		return v
	case CompactionBlock:
		v.blockTimes = t
		return v
	default:
		return b
	}
}

// TextBlock is plain assistant or user text.
type TextBlock struct {
	blockTimes
	Text string
}

func (TextBlock) isBlock() {}

// ThinkingBlock is provider-attested chain-of-thought, authenticated by
// Signature so it can be replayed back to the provider verbatim.
type ThinkingBlock struct {
	blockTimes
	Thinking  string
	Signature string
}

func (ThinkingBlock) isBlock() {}

// RedactedThinkingBlock is chain-of-thought the provider redacted; Data holds
// the opaque provider payload that must be echoed back unmodified.
type RedactedThinkingBlock struct {
	blockTimes
	ID      string
	Summary string
	Data    string
}

func (RedactedThinkingBlock) isBlock() {}

// ImageBlock carries inline image data.
type ImageBlock struct {
	blockTimes
	MediaType string
	Data      string
}

func (ImageBlock) isBlock() {}

// ToolUseBlock is a tool invocation emitted by the model.
type ToolUseBlock struct {
	blockTimes
	ID    string
	Name  string
	Input map[string]any
}

func (ToolUseBlock) isBlock() {}

// ToolResultBlock is the result of executing a ToolUseBlock, keyed back to
// it by ToolUseID (invariant a: must match a preceding ToolUseBlock.ID).
// Content is filled lazily at request time (spec §4.5) — a ToolResultBlock
// freshly appended to history carries only ToolUseID, and Content is empty
// until rendered.
type ToolResultBlock struct {
	blockTimes
	ToolUseID string
	Content   string
	IsError   *bool
}

func (ToolResultBlock) isBlock() {}

// CompactionBlock replaces an archived conversation prefix with a single
// summary (spec §3 ContextCompaction, invariant c: CompactionNumber is
// monotonically increasing and uniquely identifies the boundary).
type CompactionBlock struct {
	blockTimes
	CompactionNumber  uint64
	Summary           string
	MessagesArchived  int
	ContextSizeBefore uint32
}

func (CompactionBlock) isBlock() {}

// New creates a Message with the given role and blocks.
func New(role Role, blocks ...Block) Message {
	return Message{Role: role, Content: blocks}
}

// ToolUses returns every ToolUseBlock in the message, in order.
func (m Message) ToolUses() []ToolUseBlock {
	var out []ToolUseBlock
	for _, b := range m.Content {
		if tu, ok := b.(ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// ToolResults returns every ToolResultBlock in the message, in order.
func (m Message) ToolResults() []ToolResultBlock {
	var out []ToolResultBlock
	for _, b := range m.Content {
		if tr, ok := b.(ToolResultBlock); ok {
			out = append(out, tr)
		}
	}
	return out
}

// Text concatenates every TextBlock's text in the message.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			out += t.Text
		}
	}
	return out
}

// Compaction returns the message's CompactionBlock, if its first block is one.
func (m Message) Compaction() (CompactionBlock, bool) {
	if len(m.Content) == 0 {
		return CompactionBlock{}, false
	}
	cb, ok := m.Content[0].(CompactionBlock)
	return cb, ok
}

// IsCacheable reports whether a block type may carry a cache marker (spec
// §4.2: Thinking and RedactedThinking are never cacheable).
func IsCacheable(b Block) bool {
	switch b.(type) {
	case TextBlock, ImageBlock, ToolUseBlock, ToolResultBlock:
		return true
	default:
		return false
	}
}

// ContextSize computes spec §3's context-size definition from a message's
// Usage: input_tokens + cache_read_input_tokens, or 0 if Usage is absent.
func (m Message) ContextSize() uint32 {
	if m.Usage == nil {
		return 0
	}
	return m.Usage.InputTokens + m.Usage.CacheReadInputTokens
}

// wireBlock is the JSON-on-disk shape for any Block variant (spec §4.6
// persists message history as JSON, but Block is an interface and
// encoding/json cannot allocate a concrete type on Unmarshal without a
// discriminator). Kind names the concrete variant; every other field is
// only populated for the kinds that use it.
type wireBlock struct {
	Kind      string     `json:"kind"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Text string `json:"text,omitempty"`

	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	ID      string `json:"id,omitempty"`
	Summary string `json:"summary,omitempty"`
	Data    string `json:"data,omitempty"`

	MediaType string `json:"media_type,omitempty"`

	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   *bool  `json:"is_error,omitempty"`

	CompactionNumber  uint64 `json:"compaction_number,omitempty"`
	MessagesArchived  int    `json:"messages_archived,omitempty"`
	ContextSizeBefore uint32 `json:"context_size_before,omitempty"`
}

func toWireBlock(b Block) wireBlock {
	start, end := b.TimeSpan()
	w := wireBlock{StartTime: start, EndTime: end}
	switch v := b.(type) {
	case TextBlock:
		w.Kind, w.Text = "text", v.Text
	case ThinkingBlock:
		w.Kind, w.Thinking, w.Signature = "thinking", v.Thinking, v.Signature
	case RedactedThinkingBlock:
		w.Kind, w.ID, w.Summary, w.Data = "redacted_thinking", v.ID, v.Summary, v.Data
	case ImageBlock:
		w.Kind, w.MediaType, w.Data = "image", v.MediaType, v.Data
	case ToolUseBlock:
		w.Kind, w.ID, w.Name, w.Input = "tool_use", v.ID, v.Name, v.Input
	case ToolResultBlock:
		w.Kind, w.ToolUseID, w.Content, w.IsError = "tool_result", v.ToolUseID, v.Content, v.IsError
	case CompactionBlock:
		w.Kind = "compaction"
		w.Summary, w.CompactionNumber = v.Summary, v.CompactionNumber
		w.MessagesArchived, w.ContextSizeBefore = v.MessagesArchived, v.ContextSizeBefore
	}
	return w
}

func (w wireBlock) toBlock() (Block, error) {
	t := blockTimes{StartTime: w.StartTime, EndTime: w.EndTime}
	switch w.Kind {
	case "text":
		return TextBlock{blockTimes: t, Text: w.Text}, nil
	case "thinking":
		return ThinkingBlock{blockTimes: t, Thinking: w.Thinking, Signature: w.Signature}, nil
	case "redacted_thinking":
		return RedactedThinkingBlock{blockTimes: t, ID: w.ID, Summary: w.Summary, Data: w.Data}, nil
	case "image":
		return ImageBlock{blockTimes: t, MediaType: w.MediaType, Data: w.Data}, nil
	case "tool_use":
		return ToolUseBlock{blockTimes: t, ID: w.ID, Name: w.Name, Input: w.Input}, nil
	case "tool_result":
		return ToolResultBlock{blockTimes: t, ToolUseID: w.ToolUseID, Content: w.Content, IsError: w.IsError}, nil
	case "compaction":
		return CompactionBlock{
			blockTimes:        t,
			CompactionNumber:  w.CompactionNumber,
			Summary:           w.Summary,
			MessagesArchived:  w.MessagesArchived,
			ContextSizeBefore: w.ContextSizeBefore,
		}, nil
	default:
		return nil, fmt.Errorf("message: unknown block kind %q", w.Kind)
	}
}

// wireMessage is the JSON-on-disk shape of a Message.
type wireMessage struct {
	Role      Role        `json:"role"`
	Content   []wireBlock `json:"content"`
	RequestID *uint64     `json:"request_id,omitempty"`
	Usage     *Usage      `json:"usage,omitempty"`
}

// MarshalJSON implements json.Marshaler, encoding each Block through its
// wireBlock representation so the tagged union survives a round trip
// through the session snapshot format (spec §4.6).
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Role: m.Role, RequestID: m.RequestID, Usage: m.Usage}
	w.Content = make([]wireBlock, len(m.Content))
	for i, b := range m.Content {
		w.Content[i] = toWireBlock(b)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler, the inverse of MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("message: unmarshal: %w", err)
	}
	content := make([]Block, len(w.Content))
	for i, wb := range w.Content {
		b, err := wb.toBlock()
		if err != nil {
			return err
		}
		content[i] = b
	}
	m.Role, m.Content, m.RequestID, m.Usage = w.Role, content, w.RequestID, w.Usage
	return nil
}
