package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgekit/forge-agent/pkg/tools"
)

// maxReadBytes caps read_file to avoid pulling huge binaries into context,
// grounded on the teacher's MaxFileReadSize.
const maxReadBytes = 10 * 1024 * 1024

// ReadFileSpec declares read_file: read a whole workspace-relative file,
// capped to maxReadBytes; there is no line-range parameter.
func ReadFileSpec() tools.Spec {
	return tools.Spec{
		Name:        "read_file",
		Description: "Reads the content of a file at the given path, relative to the workspace root.",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Workspace-relative file path.",
				},
			},
			"required": []string{"path"},
		},
		SupportedScopes: []tools.Scope{
			tools.ScopeAgent, tools.ScopeAgentWithDiffBlocks,
			tools.ScopeSubAgentReadOnly, tools.ScopeSubAgentDefault,
		},
	}
}

// NewReadFileHandler returns a Handler rooted at baseDir; relative paths in
// input resolve against it, and paths that escape it are rejected.
func NewReadFileHandler(baseDir string) tools.Handler {
	return func(_ context.Context, toolCallID string, input map[string]any) (tools.Result, error) {
		rel, _ := input["path"].(string)
		if rel == "" {
			return errResult("read_file: \"path\" is required")
		}
		full, err := resolveInBase(baseDir, rel)
		if err != nil {
			return errResult("read_file: %v", err)
		}

		info, err := os.Stat(full)
		if err != nil {
			return errResult("read_file: %v", err)
		}
		if info.Size() > maxReadBytes {
			return errResult("read_file: %s is %d bytes, exceeds the %d byte limit", rel, info.Size(), maxReadBytes)
		}

		data, err := os.ReadFile(full)
		if err != nil {
			return errResult("read_file: %v", err)
		}

		return textResult{
			success:      true,
			body:         string(data),
			resourceKind: "file",
			resourceID:   full,
			toolCallID:   toolCallID,
			statusLine:   fmt.Sprintf("Read %s (%d bytes)", rel, len(data)),
		}, nil
	}
}

// resolveInBase joins base and rel, rejecting any result that escapes base
// (spec §1 Non-goals exclude sandboxing mechanics, but a basic workspace
// boundary check is cheap enough to keep even so).
func resolveInBase(base, rel string) (string, error) {
	full := filepath.Join(base, rel)
	cleanBase := filepath.Clean(base)
	if full != cleanBase && !strings.HasPrefix(full, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace root", rel)
	}
	return full, nil
}
