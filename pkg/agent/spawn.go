package agent

import (
	"context"
	"fmt"

	"github.com/forgekit/forge-agent/internal/csync"
	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/internal/session"
	"github.com/forgekit/forge-agent/pkg/tools"
	"github.com/forgekit/forge-agent/pkg/tools/builtin"
)

// cancelRegistry is a mutex-protected map of sub-agent cancel functions,
// keyed by the sub-agent's session ID (not by the parent's tool call id):
// entries are added before a sub-agent spawn and removed after it joins.
var cancelRegistry = csync.NewMap[string, context.CancelFunc]()

// Spawn implements tools.Spawner: it launches a sub-agent as a sibling
// goroutine owning an independent Session, history, and tool registry,
// sharing only the parent's cancellation registry and working-memory hub
// (spec §5). The hub already tags events by session ID (pubsub.Event),
// so forwarding the parent's hub unmodified satisfies "tagged so
// consumers can demultiplex" without a separate adapter type.
func (l *Loop) Spawn(ctx context.Context, task string, readOnly bool) (string, error) {
	scope := tools.ScopeSubAgentDefault
	if readOnly {
		scope = tools.ScopeSubAgentReadOnly
	}

	childSession := session.New(nil, nil, l.session.Config())
	childSession.AppendMessage(message.New(message.User, message.TextBlock{Text: task}))

	childCtx, cancel := context.WithCancel(ctx)
	key := childSession.ID()
	cancelRegistry.Set(key, cancel)
	defer func() {
		cancel()
		cancelRegistry.Delete(key)
	}()

	child := New(Config{
		Session:   childSession,
		Provider:  l.provider,
		Sink:      l.sink,
		Hub:       l.hub,
		Logger:    l.logger,
		ModelHint: l.modelHint,
		Scope:     scope,
		BaseDir:   l.baseDir,
	})

	childRegistry := tools.NewRegistry(l.logger)
	if err := builtin.Register(childRegistry, l.baseDir, child); err != nil {
		return "", fmt.Errorf("agent: build sub-agent registry: %w", err)
	}
	childRegistry.Freeze()
	child.registry = childRegistry

	for {
		step, err := child.RunIteration(childCtx)
		if err != nil {
			return "", fmt.Errorf("agent: sub-agent %q: %w", task, err)
		}
		switch step {
		case StepDone:
			return child.LastSummary(), nil
		case StepCancelled:
			return "", context.Canceled
		case StepNeedsUserInput:
			return "", fmt.Errorf("agent: sub-agent %q stalled soliciting user input", task)
		}
	}
}
