package agent

import (
	"context"
	"fmt"

	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/pkg/llm"
	"github.com/forgekit/forge-agent/pkg/streaming"
)

const compactionPrompt = `The conversation so far is approaching the model's context window. Summarize it in four sections: Original Task, Progress Made, Working Memory, Next Steps. Do not call any tools.`

const compactionInstruction = `Context was compacted; the summary above replaces the archived messages. Continue the task from Next Steps.`

// compact implements spec §4.4's compaction routine: ask for a structured
// summary, fold the exchange into history, then append the
// ContextCompaction boundary that RenderOutbound and ActiveMessages key
// off of. It runs as a prefix of RunIteration, so by the time this call's
// own step 1-5 body sends its request, the active set already starts at
// the fresh ContextCompaction block — the next call's ShouldCompact check
// sees that smaller exchange's usage, not this routine's own near-limit
// summary request.
func (l *Loop) compact(ctx context.Context) error {
	contextSizeBefore := l.session.ContextSize()
	archived := len(l.session.History())

	l.session.AppendMessage(message.New(message.User, message.TextBlock{Text: compactionPrompt}))

	outbound, err := l.session.RenderOutbound()
	if err != nil {
		return fmt.Errorf("render outbound: %w", err)
	}

	requestID := l.session.NextRequestID()
	req := llm.LLMRequest{
		Messages:     outbound,
		SystemPrompt: SystemPrompt(l.modelHint),
		ModelHint:    l.modelHint,
	}
	resp, err := llm.WithRetry(ctx, nil, func(ctx context.Context) (*llm.LLMResponse, error) {
		return l.provider.Send(ctx, req, streaming.DiscardSink)
	})
	if err != nil {
		return fmt.Errorf("summary request: %w", err)
	}

	assistant := message.Message{
		Role:      message.Assistant,
		Content:   resp.Content,
		RequestID: &requestID,
		Usage:     &resp.Usage,
	}
	l.session.AppendMessage(assistant)

	compactionNumber := l.session.CompactionCount() + 1
	l.session.AppendMessage(message.New(message.User,
		message.CompactionBlock{
			CompactionNumber:  compactionNumber,
			Summary:           assistant.Text(),
			MessagesArchived:  archived,
			ContextSizeBefore: contextSizeBefore,
		},
		message.TextBlock{Text: compactionInstruction},
	))
	l.session.RecordCompaction()
	return nil
}
