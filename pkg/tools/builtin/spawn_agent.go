package builtin

import (
	"context"
	"fmt"

	"github.com/forgekit/forge-agent/pkg/tools"
)

// SpawnAgentSpec declares spawn_agent (spec §4.3, §5): the only tool the
// spec mandates as parallel-safe, and only when mode="read_only".
func SpawnAgentSpec() tools.Spec {
	return tools.Spec{
		Name:        "spawn_agent",
		Description: "Spawns a sub-agent with its own history to carry out a focused sub-task, returning its final summary.",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task": map[string]any{"type": "string", "description": "The sub-task for the spawned agent to carry out."},
				"mode": map[string]any{
					"type":        "string",
					"description": "\"read_only\" restricts the sub-agent to read-only tools and allows it to run concurrently with other tool calls; \"default\" grants the normal sub-agent tool scope.",
					"enum":        []string{"read_only", "default"},
					"default":     "default",
				},
			},
			"required": []string{"task"},
		},
		SupportedScopes: []tools.Scope{tools.ScopeAgent},
		ParallelSafe:    true, // only honored by the loop when mode == "read_only"
	}
}

// NewSpawnAgentHandler returns a Handler that delegates to spawner, which
// pkg/agent implements to avoid this package importing the agent loop.
func NewSpawnAgentHandler(spawner tools.Spawner) tools.Handler {
	return func(ctx context.Context, toolCallID string, input map[string]any) (tools.Result, error) {
		task, _ := input["task"].(string)
		if task == "" {
			return errResult("spawn_agent: \"task\" is required")
		}
		mode, _ := input["mode"].(string)
		readOnly := mode == "read_only"

		summary, err := spawner.Spawn(ctx, task, readOnly)
		if err != nil {
			return errResult("spawn_agent: %v", err)
		}

		return textResult{
			success:    true,
			body:       summary,
			toolCallID: toolCallID,
			statusLine: fmt.Sprintf("Sub-agent finished (mode=%s)", mode),
		}, nil
	}
}
