package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/internal/session"
	"github.com/forgekit/forge-agent/pkg/agenterrors"
	"github.com/forgekit/forge-agent/pkg/tools"
)

// errResult turns a dispatch-time failure (unknown tool, bad arguments)
// into a tools.Result so it can be fed back to the model as a ToolResult
// rather than aborting the turn (spec §7: UnknownTool and ToolParse are
// non-fatal).
type errResult struct {
	message string
}

func (r errResult) IsSuccess() bool                            { return false }
func (r errResult) Render(*tools.ResourcesTracker) string       { return r.message }
func (r errResult) Status() string                              { return r.message }
func (r errResult) RenderForUI(*tools.ResourcesTracker) string   { return r.message }

func dispatchErrorResult(toolName string, err error) tools.Result {
	if agentErr, ok := agenterrors.As(err); ok {
		return errResult{message: agentErr.UserMessage()}
	}
	if errors.Is(err, tools.ErrSchemaValidation) {
		return errResult{message: agenterrors.NewToolParseError(toolName, err).UserMessage()}
	}
	return errResult{message: agenterrors.NewUnknownToolError(toolName).UserMessage()}
}

type toolOutcome struct {
	request session.ToolRequest
	result  tools.Result
}

func isReadOnlyMode(input map[string]any) bool {
	mode, _ := input["mode"].(string)
	return mode == "read_only"
}

// invokeTool dispatches one request through the registry, converting a
// dispatch error into a Result so the model always gets a ToolResult back,
// and records the execution in the session's tool-execution log.
func (l *Loop) invokeTool(ctx context.Context, req session.ToolRequest) toolOutcome {
	result, err := l.registry.Execute(ctx, l.scope, req.ID, req.Name, req.Input)
	if err != nil {
		result = dispatchErrorResult(req.Name, err)
	}
	l.session.RecordToolExecution(session.ToolExecution{
		Request:   req,
		Result:    result,
		CreatedAt: time.Now(),
	})
	return toolOutcome{request: req, result: result}
}

// executeTools implements spec §4.3's parallelism policy and §4.4 step 4's
// "execute tools; if any was complete_task, break with success" control
// flow. Consecutive requests that are both registered parallel-safe and
// invoked with mode="read_only" run concurrently; everything else runs
// sequentially in emission order.
func (l *Loop) executeTools(ctx context.Context, requests []session.ToolRequest) (done bool, summary string, err error) {
	var outcomes []toolOutcome

	i := 0
	for i < len(requests) {
		req := requests[i]

		if req.Name == "complete_task" {
			outcome := l.invokeTool(ctx, req)
			l.appendToolResults(outcomes)
			return true, outcome.result.RenderForUI(nil), nil
		}

		if l.registry.IsParallelSafe(req.Name) && isReadOnlyMode(req.Input) {
			j := i
			for j < len(requests) &&
				requests[j].Name != "complete_task" &&
				l.registry.IsParallelSafe(requests[j].Name) &&
				isReadOnlyMode(requests[j].Input) {
				j++
			}
			batch := requests[i:j]
			batchOutcomes := make([]toolOutcome, len(batch))
			var wg sync.WaitGroup
			for k, r := range batch {
				wg.Add(1)
				go func(k int, r session.ToolRequest) {
					defer wg.Done()
					batchOutcomes[k] = l.invokeTool(ctx, r)
				}(k, r)
			}
			wg.Wait()
			outcomes = append(outcomes, batchOutcomes...)
			i = j
			continue
		}

		outcomes = append(outcomes, l.invokeTool(ctx, req))
		i++
	}

	l.appendToolResults(outcomes)
	return false, "", nil
}

// appendToolResults builds the single structured user-role message spec
// §4.4 step 4 calls for: one ToolResultBlock per outcome, paired by
// tool_use_id, content left empty for lazy rendering (§4.5).
func (l *Loop) appendToolResults(outcomes []toolOutcome) {
	if len(outcomes) == 0 {
		return
	}
	blocks := make([]message.Block, len(outcomes))
	for i, o := range outcomes {
		isError := !o.result.IsSuccess()
		blocks[i] = message.ToolResultBlock{ToolUseID: o.request.ID, IsError: &isError}
	}
	l.session.AppendMessage(message.New(message.User, blocks...))
}
