package llm

import "github.com/forgekit/forge-agent/internal/message"

// CacheMarks reports, for a conversation of the given length, which message
// indices (0-based) should receive an ephemeral cache marker on their first
// cacheable block (spec §4.2: "Cache-marker injection").
func CacheMarks(messageCount int) map[int]bool {
	marks := make(map[int]bool)
	if messageCount < 5 {
		return marks
	}
	k := messageCount - messageCount%5
	marks[k-1] = true
	if k > 5 {
		marks[k-6] = true
	}
	return marks
}

// FirstCacheableIndex returns the index of the first cacheable block in msg,
// or -1 if msg has none (spec §4.2: Text, Image, ToolUse, ToolResult are
// cacheable; Thinking and RedactedThinking are never marked).
func FirstCacheableIndex(msg message.Message) int {
	for i, b := range msg.Content {
		if message.IsCacheable(b) {
			return i
		}
	}
	return -1
}
