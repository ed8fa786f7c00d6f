// Package builtin implements the minimum tool set spec.md §1 calls out:
// read_file, write_file, replace_in_file, search_files, spawn_agent,
// complete_task, plus list_directory as a supplemental read-only tool
// (grounded on original_source/crates/code_assistant/src/explorer.rs).
package builtin

import (
	"fmt"

	"github.com/forgekit/forge-agent/pkg/tools"
)

// textResult is the common tools.Result shape most builtin tools return: an
// LLM-facing body, an optional resource key for dedup via ResourcesTracker,
// and a short UI status line. RenderForUI defaults to the same body as
// Render unless overridden by embedding and shadowing the method.
type textResult struct {
	success      bool
	body         string
	resourceKind string // empty disables tracker dedup
	resourceID   string
	toolCallID   string
	statusLine   string
}

func (r textResult) IsSuccess() bool { return r.success }

func (r textResult) Render(tracker *tools.ResourcesTracker) string {
	if r.resourceKind == "" || tracker == nil {
		return r.body
	}
	key := tools.ResourceKey(r.resourceKind, r.resourceID)
	if !tracker.Claim(key, r.toolCallID) {
		return tools.Reference(r.resourceKind, r.resourceID, r.toolCallID)
	}
	return r.body
}

func (r textResult) Status() string { return r.statusLine }

func (r textResult) RenderForUI(tracker *tools.ResourcesTracker) string { return r.Render(tracker) }

// ResourceKey implements tools.Dedupable.
func (r textResult) ResourceKey() (kind, identity string, ok bool) {
	return r.resourceKind, r.resourceID, r.resourceKind != ""
}

func errResult(format string, args ...any) (tools.Result, error) {
	msg := fmt.Sprintf(format, args...)
	return textResult{success: false, body: msg, statusLine: msg}, nil
}
