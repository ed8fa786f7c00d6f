// Package agent implements the Agent Loop (spec §4.4): the iteration cycle
// that builds an outbound request from session state, sends it, extracts
// and executes tool requests, feeds results back, and compacts context
// once the conversation approaches the model's window. Grounded on the
// teacher's Coordinator interface shape (internal/agent/agent.go), with
// its gRPC coordinator plumbing replaced by direct in-process calls since
// this loop is single-process (spec §5).
package agent

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/internal/pubsub"
	"github.com/forgekit/forge-agent/internal/session"
	"github.com/forgekit/forge-agent/pkg/agenterrors"
	"github.com/forgekit/forge-agent/pkg/llm"
	"github.com/forgekit/forge-agent/pkg/streaming"
	"github.com/forgekit/forge-agent/pkg/tools"
)

// StepResult reports what one RunIteration call did, so the driving CLI or
// TUI knows whether to call it again immediately, wait on the user, or
// stop.
type StepResult int

const (
	StepContinue StepResult = iota
	StepNeedsUserInput
	StepDone
	StepCancelled
)

func (s StepResult) String() string {
	switch s {
	case StepContinue:
		return "continue"
	case StepNeedsUserInput:
		return "needs_user_input"
	case StepDone:
		return "done"
	case StepCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrNoInputAvailable is returned by a UserInputSource with nothing ready
// yet, telling RunIteration to suspend with StepNeedsUserInput rather than
// block the calling goroutine on it.
var ErrNoInputAvailable = fmt.Errorf("agent: no user input available")

// UserInputSource supplies the next user message when the model stops
// without emitting any tool request (spec §4.4 step 4).
type UserInputSource interface {
	Solicit(ctx context.Context) (text string, err error)
}

// Loop drives one Session through the iteration cycle of spec §4.4.
type Loop struct {
	session   *session.Session
	provider  llm.Provider
	registry  *tools.Registry
	input     UserInputSource
	sink      streaming.Sink
	hub       *pubsub.Hub[session.WorkingMemory]
	cancelled atomic.Bool
	logger    *zap.Logger
	modelHint string
	scope     tools.Scope
	baseDir   string

	lastSummary string
}

// Config configures a new Loop.
type Config struct {
	Session   *session.Session
	Provider  llm.Provider
	Registry  *tools.Registry
	Input     UserInputSource
	Sink      streaming.Sink
	Hub       *pubsub.Hub[session.WorkingMemory]
	Logger    *zap.Logger
	ModelHint string
	Scope     tools.Scope
	// BaseDir roots the builtin filesystem tools a spawned sub-agent's own
	// registry gets built with (spec §5: sub-agents own an independent
	// tool registry, not just an independent session).
	BaseDir string
}

// New builds a Loop. Sink and Hub may be nil to discard streaming
// fragments and working-memory notifications respectively.
func New(cfg Config) *Loop {
	sink := cfg.Sink
	if sink == nil {
		sink = streaming.DiscardSink
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scope := cfg.Scope
	if scope == "" {
		scope = tools.ScopeAgent
	}
	return &Loop{
		session:   cfg.Session,
		provider:  cfg.Provider,
		registry:  cfg.Registry,
		input:     cfg.Input,
		sink:      sink,
		hub:       cfg.Hub,
		logger:    logger,
		modelHint: cfg.ModelHint,
		scope:     scope,
		baseDir:   cfg.BaseDir,
	}
}

// LastSummary returns the complete_task summary from the most recent
// iteration that returned StepDone, or "" if none has yet.
func (l *Loop) LastSummary() string { return l.lastSummary }

// Cancel sets the cooperative cancellation flag (spec §5) and cancels
// every sub-agent currently registered in the shared cancellation
// registry, so a top-level cancellation reaches in-flight children too.
func (l *Loop) Cancel() {
	l.cancelled.Store(true)
	for _, cancel := range cancelRegistry.Seq2() {
		cancel()
	}
}

// Session returns the loop's underlying session.
func (l *Loop) Session() *session.Session { return l.session }

// SubmitUserInput appends text as a user-role message, for a caller
// driving a Loop whose UserInputSource returned ErrNoInputAvailable.
func (l *Loop) SubmitUserInput(text string) {
	l.session.AppendMessage(message.New(message.User, message.TextBlock{Text: text}))
}

// RunIteration runs one full turn: a compaction pre-check (itself possibly
// issuing its own request/response pair), then the normal
// build-send-extract-execute cycle (spec §4.4).
func (l *Loop) RunIteration(ctx context.Context) (StepResult, error) {
	if l.cancelled.Load() {
		return StepCancelled, nil
	}

	if l.session.ShouldCompact() {
		if err := l.compact(ctx); err != nil {
			return StepContinue, fmt.Errorf("agent: compaction: %w", err)
		}
	}

	if l.cancelled.Load() {
		return StepCancelled, nil
	}

	resp, err := l.send(ctx)
	if err != nil {
		if agentErr, ok := agenterrors.As(err); ok && agentErr.Kind == agenterrors.KindCancelled {
			return StepCancelled, nil
		}
		l.session.AppendMessage(message.New(message.User, message.TextBlock{Text: userFacingError(err)}))
		return StepContinue, nil
	}

	toolUses := extractToolUses(resp.Content)
	if len(toolUses) == 0 {
		return l.solicitUserInput(ctx)
	}

	requests := make([]session.ToolRequest, len(toolUses))
	for i, tu := range toolUses {
		requests[i] = session.ToolRequest{ID: tu.ID, Name: tu.Name, Input: tu.Input}
	}

	done, summary, err := l.executeTools(ctx, requests)
	if err != nil {
		return StepContinue, err
	}
	l.notifyWorkingMemory()
	if done {
		l.lastSummary = summary
		l.logger.Info("task complete", zap.String("session_id", l.session.ID()), zap.String("summary", summary))
		return StepDone, nil
	}
	return StepContinue, nil
}

func userFacingError(err error) string {
	if agentErr, ok := agenterrors.As(err); ok {
		return agentErr.UserMessage()
	}
	return err.Error()
}

func extractToolUses(blocks []message.Block) []message.ToolUseBlock {
	var out []message.ToolUseBlock
	for _, b := range blocks {
		if tu, ok := b.(message.ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// send implements step 1-2: build the outbound list, prepend the system
// prompt, send, and append the assistant response to history.
func (l *Loop) send(ctx context.Context) (*llm.LLMResponse, error) {
	outbound, err := l.session.RenderOutbound()
	if err != nil {
		return nil, fmt.Errorf("agent: render outbound: %w", err)
	}

	requestID := l.session.NextRequestID()
	req := llm.LLMRequest{
		Messages:     outbound,
		Tools:        l.registry.Specs(l.scope),
		SystemPrompt: SystemPrompt(l.modelHint),
		ModelHint:    l.modelHint,
	}

	resp, err := llm.WithRetry(ctx, nil, func(ctx context.Context) (*llm.LLMResponse, error) {
		return l.provider.Send(ctx, req, l.sink)
	})
	if err != nil {
		return nil, err
	}

	l.session.AppendMessage(message.Message{
		Role:      message.Assistant,
		Content:   resp.Content,
		RequestID: &requestID,
		Usage:     &resp.Usage,
	})
	return resp, nil
}

func (l *Loop) solicitUserInput(ctx context.Context) (StepResult, error) {
	if l.input == nil {
		return StepNeedsUserInput, nil
	}
	text, err := l.input.Solicit(ctx)
	if err != nil {
		if err == ErrNoInputAvailable {
			return StepNeedsUserInput, nil
		}
		return StepContinue, err
	}
	l.SubmitUserInput(text)
	return StepContinue, nil
}

func (l *Loop) notifyWorkingMemory() {
	if l.hub == nil {
		return
	}
	l.hub.Publish(pubsub.NewUpdatedEvent(l.session.ID(), l.session.WorkingMemory()))
}
