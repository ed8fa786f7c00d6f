package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgekit/forge-agent/pkg/tools"
)

// WriteFileSpec declares write_file: create or overwrite a workspace file,
// creating parent directories automatically (grounded on the teacher's
// FileWriteTool).
func WriteFileSpec() tools.Spec {
	return tools.Spec{
		Name:        "write_file",
		Description: "Writes content to a file at the given path, creating parent directories as needed. Overwrites an existing file.",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "Workspace-relative file path."},
				"content": map[string]any{"type": "string", "description": "Full file content to write."},
			},
			"required": []string{"path", "content"},
		},
		SupportedScopes: []tools.Scope{tools.ScopeAgent, tools.ScopeAgentWithDiffBlocks},
		MultilineParams: []string{"content"},
	}
}

// NewWriteFileHandler returns a Handler rooted at baseDir.
func NewWriteFileHandler(baseDir string) tools.Handler {
	return func(_ context.Context, toolCallID string, input map[string]any) (tools.Result, error) {
		rel, _ := input["path"].(string)
		if rel == "" {
			return errResult("write_file: \"path\" is required")
		}
		content, _ := input["content"].(string)

		full, err := resolveInBase(baseDir, rel)
		if err != nil {
			return errResult("write_file: %v", err)
		}

		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return errResult("write_file: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return errResult("write_file: %v", err)
		}

		return textResult{
			success:    true,
			body:       fmt.Sprintf("Wrote %d bytes to %s", len(content), rel),
			toolCallID: toolCallID,
			statusLine: fmt.Sprintf("Wrote %s", rel),
		}, nil
	}
}
