package agent

import (
	"embed"
	"strings"
)

// promptFS embeds the system-prompt set keyed by model_hint (spec §4.4,
// "a synthesized system prompt chosen from an embedded set keyed by
// model_hint"), loaded once at package init the way embedded/agents.go
// loads the teacher's ROM files.
//
//go:embed prompts/*.md
var promptFS embed.FS

// systemPrompts maps a short prompt name to its loaded content.
var systemPrompts = loadSystemPrompts()

func loadSystemPrompts() map[string]string {
	entries, err := promptFS.ReadDir("prompts")
	if err != nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".md")
		data, err := promptFS.ReadFile("prompts/" + e.Name())
		if err != nil {
			continue
		}
		out[name] = string(data)
	}
	return out
}

// smallModelHints is the set of model_hint substrings routed to the
// "concise" prompt rather than "default".
var smallModelHints = []string{"haiku", "mini", "flash", "small"}

// SystemPrompt chooses an embedded system prompt for modelHint. Unknown or
// empty hints fall back to "default".
func SystemPrompt(modelHint string) string {
	hint := strings.ToLower(modelHint)
	for _, needle := range smallModelHints {
		if strings.Contains(hint, needle) {
			if p, ok := systemPrompts["concise"]; ok {
				return p
			}
		}
	}
	if p, ok := systemPrompts["default"]; ok {
		return p
	}
	return ""
}
