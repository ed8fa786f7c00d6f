package builtin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/forgekit/forge-agent/internal/diff"
	"github.com/forgekit/forge-agent/pkg/tools"
)

// ReplaceInFileSpec declares replace_in_file: a single exact-match
// find/replace within one file, rendering a unified diff block in its
// result (spec §4.3's AgentWithDiffBlocks scope).
func ReplaceInFileSpec() tools.Spec {
	return tools.Spec{
		Name:        "replace_in_file",
		Description: "Replaces the first exact occurrence of old_text with new_text in the file at path. Fails if old_text is not found or is not unique.",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":     map[string]any{"type": "string"},
				"old_text": map[string]any{"type": "string", "description": "Exact text to find. Must be unique within the file."},
				"new_text": map[string]any{"type": "string", "description": "Replacement text."},
			},
			"required": []string{"path", "old_text", "new_text"},
		},
		SupportedScopes: []tools.Scope{tools.ScopeAgentWithDiffBlocks},
		MultilineParams: []string{"old_text", "new_text", "diff"},
	}
}

func NewReplaceInFileHandler(baseDir string) tools.Handler {
	return func(_ context.Context, toolCallID string, input map[string]any) (tools.Result, error) {
		rel, _ := input["path"].(string)
		oldText, _ := input["old_text"].(string)
		newText, _ := input["new_text"].(string)
		if rel == "" || oldText == "" {
			return errResult("replace_in_file: \"path\" and \"old_text\" are required")
		}

		full, err := resolveInBase(baseDir, rel)
		if err != nil {
			return errResult("replace_in_file: %v", err)
		}

		raw, err := os.ReadFile(full)
		if err != nil {
			return errResult("replace_in_file: %v", err)
		}
		original := string(raw)

		count := strings.Count(original, oldText)
		switch count {
		case 0:
			return errResult("replace_in_file: old_text not found in %s", rel)
		case 1:
			// unique, proceed
		default:
			return errResult("replace_in_file: old_text occurs %d times in %s; must be unique", count, rel)
		}

		updated := strings.Replace(original, oldText, newText, 1)
		if err := os.WriteFile(full, []byte(updated), 0o644); err != nil {
			return errResult("replace_in_file: %v", err)
		}

		diffText, oldLines, newLines := diff.GenerateDiff(original, updated, rel)

		return textResult{
			success:    true,
			body:       fmt.Sprintf("Updated %s.\n%s", rel, diffText),
			toolCallID: toolCallID,
			statusLine: fmt.Sprintf("Edited %s (%d → %d lines)", rel, oldLines, newLines),
		}, nil
	}
}
