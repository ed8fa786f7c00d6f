package streaming

import (
	"io"
	"sync/atomic"

	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/pkg/agenterrors"
)

// ToolSyntax selects which of the three dialects a provider stream is
// encoded in (spec §4.1).
type ToolSyntax string

const (
	SyntaxNative ToolSyntax = "native"
	SyntaxXML    ToolSyntax = "xml"
	SyntaxCaret  ToolSyntax = "caret"
)

// Run parses body according to syntax and returns the finalized blocks and
// usage, streaming Fragments to sink as it goes. For the text dialects, the
// provider's own SSE text deltas are fed through the same Native SSE framing
// before being handed to a TextParser, since providers still transport plain
// text over Native's event envelope even when tool calls are embedded in it.
func Run(body io.Reader, syntax ToolSyntax, sink Sink, lookup MultilineLookup, cancel *atomic.Bool) ([]message.Block, message.Usage, error) {
	switch syntax {
	case SyntaxNative:
		return NewNativeParser(sink).Run(body, cancel)
	case SyntaxXML:
		return runText(body, DialectXML, sink, lookup, cancel)
	case SyntaxCaret:
		return runText(body, DialectCaret, sink, lookup, cancel)
	default:
		return nil, message.Usage{}, agenterrors.NewParseError("unknown tool syntax", nil)
	}
}

// runText drives a TextParser from the text/thinking fragments a
// NativeParser would otherwise emit directly: the envelope (SSE framing,
// usage accounting) is always Native, but plain-text deltas are re-scanned
// for embedded tool tags before reaching the caller's sink.
func runText(body io.Reader, dialect Dialect, sink Sink, lookup MultilineLookup, cancel *atomic.Bool) ([]message.Block, message.Usage, error) {
	tp := NewTextParser(dialect, sink, lookup)
	relay := SinkFunc(func(f Fragment) {
		switch v := f.(type) {
		case PlainText:
			tp.Feed(v.Text)
		default:
			sink.Send(f)
		}
	})

	nonToolBlocks, usage, err := NewNativeParser(relay).Run(body, cancel)
	if err != nil {
		return nil, usage, err
	}
	toolBlocks := tp.Finish()

	out := make([]message.Block, 0, len(nonToolBlocks)+len(toolBlocks))
	for _, b := range nonToolBlocks {
		if _, isText := b.(message.TextBlock); isText {
			continue // superseded by the re-scanned text in toolBlocks
		}
		out = append(out, b)
	}
	out = append(out, toolBlocks...)
	return out, usage, nil
}
