package builtin

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/forgekit/forge-agent/internal/fsext"
	"github.com/forgekit/forge-agent/pkg/tools"
)

// ListDirectorySpec declares list_directory: a read-only, single-level
// directory listing ([ADDED], supplementing the distilled spec — the
// original agent exposed directory listing as a first-class operation;
// see explorer.rs's unexpanded-directory rendering).
func ListDirectorySpec() tools.Spec {
	return tools.Spec{
		Name:        "list_directory",
		Description: "Lists the immediate contents of a directory, relative to the workspace root. Subdirectories are shown but not expanded.",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Workspace-relative directory path, or \"\" for the workspace root."},
			},
			"required": []string{"path"},
		},
		SupportedScopes: []tools.Scope{
			tools.ScopeAgent, tools.ScopeAgentWithDiffBlocks,
			tools.ScopeSubAgentReadOnly, tools.ScopeSubAgentDefault,
		},
	}
}

func NewListDirectoryHandler(baseDir string) tools.Handler {
	return func(_ context.Context, toolCallID string, input map[string]any) (tools.Result, error) {
		rel, _ := input["path"].(string)
		full, err := resolveInBase(baseDir, rel)
		if err != nil {
			return errResult("list_directory: %v", err)
		}

		entries, err := fsext.ListDirectory(full)
		if err != nil {
			return errResult("list_directory: %v", err)
		}

		name := filepath.Base(full)
		if rel == "" {
			name = "."
		}

		return textResult{
			success:    true,
			body:       fsext.RenderListing(name, entries),
			toolCallID: toolCallID,
			statusLine: fmt.Sprintf("Listed %s (%d entries)", rel, len(entries)),
		}, nil
	}
}
