package streaming

import "strings"

// partialJSONTokenizer incrementally extracts complete top-level key/value
// pairs from a growing JSON object buffer (the Native dialect streams a tool
// invocation's input as successive "partial_json" deltas; spec §4.1 requires
// a ToolParameter fragment as soon as a given key's value is structurally
// complete, without waiting for the whole object to close).
type partialJSONTokenizer struct {
	buf     strings.Builder
	scanned int // byte offset into buf.String() already scanned for pairs
	emitted map[string]bool
}

func newPartialJSONTokenizer() *partialJSONTokenizer {
	return &partialJSONTokenizer{emitted: make(map[string]bool)}
}

// Feed appends a partial_json delta and returns the key/value pairs that
// became complete as a result, in the order they close.
func (t *partialJSONTokenizer) Feed(delta string) []ToolParameter {
	t.buf.WriteString(delta)
	s := t.buf.String()
	var out []ToolParameter

	for {
		key, val, consumed, ok := scanNextPair(s[t.scanned:])
		if !ok {
			break
		}
		t.scanned += consumed
		if !t.emitted[key] {
			t.emitted[key] = true
			out = append(out, ToolParameter{Name: key, Value: val})
		}
	}
	return out
}

// scanNextPair looks for one complete "key": value pair at the start of a
// (possibly still-open) JSON object body, tolerating a leading '{' or ','
// and surrounding whitespace. It reports how many bytes were consumed so
// the caller can advance past it.
func scanNextPair(s string) (key, val string, consumed int, ok bool) {
	i := 0
	skipWS := func() {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
			i++
		}
	}
	skipWS()
	for i < len(s) && (s[i] == '{' || s[i] == ',') {
		i++
		skipWS()
	}
	if i >= len(s) || s[i] != '"' {
		return "", "", 0, false
	}
	keyStart := i
	i++
	for i < len(s) && s[i] != '"' {
		if s[i] == '\\' {
			i++
		}
		i++
	}
	if i >= len(s) {
		return "", "", 0, false
	}
	i++ // closing quote
	rawKey := s[keyStart:i]
	skipWS()
	if i >= len(s) || s[i] != ':' {
		return "", "", 0, false
	}
	i++
	skipWS()

	valStart := i
	valEnd, complete := scanValueEnd(s[i:])
	if !complete {
		return "", "", 0, false
	}
	i += valEnd

	var keyDecoded string
	_ = jsonUnquote(rawKey, &keyDecoded)
	valueText := s[valStart:i]
	return keyDecoded, jsonDisplayValue(valueText), i, true
}

// scanValueEnd reports how many bytes of a complete JSON value sit at the
// start of s (a string, number, literal, object, or array), and whether one
// is fully present yet.
func scanValueEnd(s string) (n int, complete bool) {
	if len(s) == 0 {
		return 0, false
	}
	switch s[0] {
	case '"':
		i := 1
		for i < len(s) && s[i] != '"' {
			if s[i] == '\\' {
				i++
			}
			i++
		}
		if i >= len(s) {
			return 0, false
		}
		return i + 1, true
	case '{', '[':
		open, close := byte('{'), byte('}')
		if s[0] == '[' {
			open, close = '[', ']'
		}
		depth := 0
		inStr := false
		for i := 0; i < len(s); i++ {
			c := s[i]
			if inStr {
				if c == '\\' {
					i++
					continue
				}
				if c == '"' {
					inStr = false
				}
				continue
			}
			switch c {
			case '"':
				inStr = true
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					return i + 1, true
				}
			}
		}
		return 0, false
	default:
		// number, true, false, null: ends at the next structural character.
		i := 0
		for i < len(s) && s[i] != ',' && s[i] != '}' && s[i] != ']' &&
			s[i] != ' ' && s[i] != '\n' && s[i] != '\t' && s[i] != '\r' {
			i++
		}
		if i == len(s) {
			return 0, false // could still grow
		}
		return i, true
	}
}

// jsonDisplayValue strips the surrounding quotes from a JSON string value so
// ToolParameter.Value carries the human-readable text rather than a quoted
// JSON literal; non-string values pass through unchanged.
func jsonDisplayValue(raw string) string {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		var decoded string
		if jsonUnquote(raw, &decoded) {
			return decoded
		}
	}
	return raw
}

// jsonUnquote decodes a JSON-quoted string literal (with its surrounding
// quotes) into dst, reporting success.
func jsonUnquote(quoted string, dst *string) bool {
	var b strings.Builder
	i := 1
	for i < len(quoted)-1 {
		c := quoted[i]
		if c == '\\' && i+1 < len(quoted)-1 {
			i++
			switch quoted[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\\', '/':
				b.WriteByte(quoted[i])
			default:
				b.WriteByte(quoted[i])
			}
			i++
			continue
		}
		b.WriteByte(c)
		i++
	}
	*dst = b.String()
	return true
}
