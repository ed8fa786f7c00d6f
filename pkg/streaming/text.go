package streaming

import (
	"strings"

	"github.com/forgekit/forge-agent/internal/message"
	"github.com/google/uuid"
)

// MultilineLookup tells the text-dialect parsers which parameters of a given
// tool must be parsed as multi-line bodies (spec §4.1: "a per-tool registry
// of multiline parameters"). pkg/tools.Registry satisfies this without the
// parser needing to import the dispatch package.
type MultilineLookup interface {
	MultilineParams(toolName string) map[string]bool
}

type staticMultiline map[string]bool

func (m staticMultiline) MultilineParams(string) map[string]bool { return m }

// textState is the byte-level state machine shared by the XML and Caret
// dialects: Outside, InToolBody, InParamSingleLine, InParamMultiLine. There
// is no separate in-tag state; scanToolOpen and scanParamOpen leave a
// partial tag buffered until it is complete.
type textState int

const (
	stateOutside textState = iota
	stateInToolBody
	stateInParamSingleLine
	stateInParamMultiLine
)

// Dialect selects which tag grammar the TextParser recognizes.
type Dialect int

const (
	DialectXML Dialect = iota
	DialectCaret
)

// TextParser implements the XML and Caret dialects: tools are embedded in
// plain assistant text, so the parser scans accumulated text for tag tokens
// and buffers any suffix that could be a partial tag (spec §4.1: "A suffix
// of the accumulated text that could be the prefix of a known opening tag
// MUST be buffered rather than emitted").
type TextParser struct {
	dialect  Dialect
	sink     Sink
	lookup   MultilineLookup
	state    textState
	pending  strings.Builder // unemitted bytes: either a possible tag prefix, or an in-progress param value
	toolName string
	toolID   string
	toolArgs map[string]any
	paramKey string
	blocks   []message.Block
	textBuf  strings.Builder // accumulated PlainText for the current un-tooled run
}

// NewTextParser creates a parser for the given dialect.
func NewTextParser(dialect Dialect, sink Sink, lookup MultilineLookup) *TextParser {
	if sink == nil {
		sink = DiscardSink
	}
	if lookup == nil {
		lookup = staticMultiline{}
	}
	return &TextParser{dialect: dialect, sink: sink, lookup: lookup}
}

// toolOpenPrefix returns the opening-tag prefix for the parser's dialect.
func (p *TextParser) toolOpenPrefix() string {
	if p.dialect == DialectXML {
		return "<tool:"
	}
	return "^^^"
}

// Feed appends one chunk of accumulated assistant text and emits Fragments
// for whatever became unambiguous as a result. Call Finish once the stream
// ends to flush any trailing plain text.
func (p *TextParser) Feed(chunk string) {
	buf := p.pending.String() + chunk
	p.pending.Reset()

	for {
		switch p.state {
		case stateOutside:
			idx := strings.Index(buf, p.toolOpenPrefix())
			if idx == -1 {
				// No opener anywhere: flush all but a possible partial prefix.
				safe, rest := splitTrailingPrefix(buf, p.toolOpenPrefix())
				p.emitText(safe)
				p.pending.WriteString(rest)
				return
			}
			p.emitText(buf[:idx])
			buf = buf[idx:]
			name, rest, ok := scanToolOpen(p.dialect, buf)
			if !ok {
				p.pending.WriteString(buf)
				return
			}
			p.toolName = name
			p.toolID = uuid.NewString()
			p.toolArgs = map[string]any{}
			p.sink.Send(ToolName{Name: p.toolName, ID: p.toolID})
			p.state = stateInToolBody
			buf = rest

		case stateInToolBody:
			// Whitespace between params is insignificant; a param's own
			// closing newline may already have consumed the Caret closer's.
			closeTok := strings.TrimLeft(toolCloseToken(p.dialect, p.toolName), "\n")
			buf = strings.TrimLeft(buf, " \t\r\n")
			if strings.HasPrefix(buf, closeTok) {
				buf = buf[len(closeTok):]
				p.sink.Send(ToolEnd{ID: p.toolID})
				p.blocks = append(p.blocks, message.ToolUseBlock{ID: p.toolID, Name: p.toolName, Input: p.toolArgs})
				p.state = stateOutside
				continue
			}
			key, rest, matched := scanParamOpen(p.dialect, buf, p.lookup.MultilineParams(p.toolName))
			if !matched {
				p.pending.WriteString(buf)
				return
			}
			p.paramKey = key
			buf = rest
			if p.lookup.MultilineParams(p.toolName)[key] {
				p.state = stateInParamMultiLine
			} else {
				p.state = stateInParamSingleLine
			}

		case stateInParamSingleLine:
			endTok := paramCloseToken(p.dialect, p.paramKey, false)
			idx := strings.Index(buf, endTok)
			if idx == -1 {
				safe, rest := splitTrailingPrefix(buf, endTok)
				p.pending.WriteString(safe + rest)
				return
			}
			value := buf[:idx]
			p.toolArgs[p.paramKey] = value
			p.sink.Send(ToolParameter{ToolID: p.toolID, Name: p.paramKey, Value: value})
			buf = buf[idx+len(endTok):]
			p.state = stateInToolBody

		case stateInParamMultiLine:
			endTok := paramCloseToken(p.dialect, p.paramKey, true)
			idx := strings.Index(buf, endTok)
			if idx == -1 {
				safe, rest := splitTrailingPrefix(buf, endTok)
				p.pending.WriteString(safe + rest)
				return
			}
			value := strings.Trim(buf[:idx], "\n")
			p.toolArgs[p.paramKey] = value
			p.sink.Send(ToolParameter{ToolID: p.toolID, Name: p.paramKey, Value: value})
			buf = buf[idx+len(endTok):]
			p.state = stateInToolBody
		}
	}
}

func (p *TextParser) emitText(s string) {
	if s == "" {
		return
	}
	p.sink.Send(PlainText{Text: s})
	p.textBuf.WriteString(s)
}

// Finish flushes any buffered trailing text (there was never a completing
// tag) and returns the finalized text/tool blocks accumulated so far.
func (p *TextParser) Finish() []message.Block {
	if p.pending.Len() > 0 {
		p.emitText(p.pending.String())
		p.pending.Reset()
	}
	if p.textBuf.Len() > 0 {
		return append([]message.Block{message.TextBlock{Text: p.textBuf.String()}}, p.blocks...)
	}
	return p.blocks
}

// splitTrailingPrefix splits s into (safe, suffix) where suffix is the
// longest trailing substring of s that is a proper prefix of token; safe is
// everything before that.
func splitTrailingPrefix(s, token string) (safe, suffix string) {
	maxLen := len(token) - 1
	if maxLen > len(s) {
		maxLen = len(s)
	}
	for l := maxLen; l > 0; l-- {
		if strings.HasPrefix(token, s[len(s)-l:]) {
			return s[:len(s)-l], s[len(s)-l:]
		}
	}
	return s, ""
}

func toolCloseToken(d Dialect, name string) string {
	if d == DialectXML {
		return "</tool:" + name + ">"
	}
	return "\n^^^"
}

func paramCloseToken(d Dialect, key string, multiline bool) string {
	if d == DialectXML {
		return "</param:" + key + ">"
	}
	if multiline {
		return "\n--- " + key + "\n"
	}
	return "\n"
}

// scanToolOpen recognizes a complete opening tag at the start of buf and
// returns the tool name and the remainder, or ok=false if buf only holds an
// incomplete (but plausible) prefix of one.
func scanToolOpen(d Dialect, buf string) (name, rest string, ok bool) {
	if d == DialectXML {
		if !strings.HasPrefix(buf, "<tool:") {
			return "", "", false
		}
		end := strings.Index(buf, ">")
		if end == -1 {
			return "", "", false
		}
		return buf[len("<tool:"):end], buf[end+1:], true
	}
	if !strings.HasPrefix(buf, "^^^") {
		return "", "", false
	}
	end := strings.Index(buf, "\n")
	if end == -1 {
		return "", "", false
	}
	return strings.TrimSpace(buf[len("^^^"):end]), buf[end+1:], true
}

// scanParamOpen recognizes a complete opening param tag/key at the start of
// buf, or ok=false if not yet resolvable.
func scanParamOpen(d Dialect, buf string, multiline map[string]bool) (key, rest string, ok bool) {
	if d == DialectXML {
		if !strings.HasPrefix(buf, "<param:") {
			return "", "", false
		}
		end := strings.Index(buf, ">")
		if end == -1 {
			return "", "", false
		}
		return buf[len("<param:"):end], buf[end+1:], true
	}
	// Caret: "key: " (single-line) or "key ---\n" (multi-line), one per line.
	nl := strings.Index(buf, "\n")
	lineEnd := nl
	if lineEnd == -1 {
		lineEnd = len(buf)
	}
	line := buf[:lineEnd]
	if strings.HasSuffix(line, " ---") {
		k := strings.TrimSuffix(line, " ---")
		if nl == -1 {
			return "", "", false
		}
		return k, buf[nl+1:], true
	}
	if idx := strings.Index(line, ": "); idx != -1 {
		return line[:idx], buf[idx+2:], true
	}
	if nl == -1 {
		return "", "", false // line could still grow into "key: " or "key ---"
	}
	return "", "", false
}
