package builtin

import (
	"context"

	"github.com/forgekit/forge-agent/pkg/tools"
)

// CompleteTaskSpec declares complete_task (spec §4.3: its execution breaks
// the Agent Loop with success and must not produce a ToolResult block in
// history — pkg/agent special-cases this tool by name rather than relying
// on its Result).
func CompleteTaskSpec() tools.Spec {
	return tools.Spec{
		Name:        "complete_task",
		Description: "Signals that the current task is finished. Call this once the user's request has been fully satisfied.",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary": map[string]any{"type": "string", "description": "Brief summary of what was accomplished."},
			},
			"required": []string{"summary"},
		},
		SupportedScopes: []tools.Scope{tools.ScopeAgent, tools.ScopeAgentWithDiffBlocks},
	}
}

// NewCompleteTaskHandler returns a Handler whose Result the agent loop
// discards (it never becomes a ToolResult block); the handler only exists
// so the tool passes schema validation and dispatch uniformly.
func NewCompleteTaskHandler() tools.Handler {
	return func(_ context.Context, toolCallID string, input map[string]any) (tools.Result, error) {
		summary, _ := input["summary"].(string)
		return textResult{success: true, body: summary, toolCallID: toolCallID, statusLine: "Task complete"}, nil
	}
}
