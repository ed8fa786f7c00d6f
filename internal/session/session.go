// Package session owns the Session aggregate (spec §3, §4.6): message
// history, the tool-execution log, working memory, and per-session
// configuration. A Session is the ownership root the agent loop drives;
// every mutation goes through it so history stays totally ordered (spec §5).
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/forgekit/forge-agent/internal/fsext"
	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/internal/ordered"
	"github.com/forgekit/forge-agent/pkg/tools"
)

// DefaultCompactionThreshold is the fraction of ContextLimit at which
// compaction triggers when no session-specific override is configured
// (spec §4.4).
const DefaultCompactionThreshold = 0.85

// Config carries the per-session settings spec §3 folds into the Session:
// context threshold, tool scope, tool syntax, and sandbox policy.
type Config struct {
	// ContextManagementEnabled gates compaction entirely; when false,
	// ShouldCompact always reports false regardless of size (spec §4.4:
	// "If context management is enabled AND...").
	ContextManagementEnabled bool
	// ContextLimit is the provider's context window in tokens. Compaction
	// never triggers when nil (spec §4.4: "a context_limit is set").
	ContextLimit *uint32
	// CompactionThreshold overrides DefaultCompactionThreshold when nonzero.
	CompactionThreshold float64
	ToolScope           tools.Scope
	ToolSyntax          string
	SandboxPolicy       string
}

func (c Config) threshold() float64 {
	if c.CompactionThreshold > 0 {
		return c.CompactionThreshold
	}
	return DefaultCompactionThreshold
}

// ToolRequest is one tool invocation extracted from an assistant response
// (spec §3).
type ToolRequest struct {
	ID          string
	Name        string
	Input       map[string]any
	StartOffset *int
	EndOffset   *int
}

// ToolExecution pairs a ToolRequest with the Result its handler produced
// (spec §3). Content is not stored directly here: Render is called fresh
// per outbound request (spec §4.5) so the newest execution of a given
// resource always wins.
type ToolExecution struct {
	Request   ToolRequest
	Result    tools.Result
	CreatedAt time.Time
}

// WorkingMemory is the Session's view of the workspace (spec §3):
// FileTrees is keyed by project name in insertion order so UI rendering is
// deterministic across restarts, matching SPEC_FULL §3's ordered-map
// encoding.
type WorkingMemory struct {
	CurrentTask       string
	FileTrees         *ordered.Map[string, *fsext.Tree]
	AvailableProjects []string
}

// NewWorkingMemory creates an empty WorkingMemory.
func NewWorkingMemory() WorkingMemory {
	return WorkingMemory{FileTrees: ordered.New[string, *fsext.Tree]()}
}

// Session is the ownership root spec §3 names: message history,
// tool-execution log, working memory, config, and the next_request_id
// counter. All mutation methods are safe for concurrent use, though spec §5
// expects a single writer (the owning agent loop) in practice.
type Session struct {
	mu sync.Mutex

	id             string
	history        []message.Message
	toolExecutions []ToolExecution
	workingMemory  WorkingMemory
	config         Config
	nextRequestID  uint64
	compactions    uint64

	initPath       *string
	initialProject *string
}

// New creates a Session for a fresh task, generating a new session id.
func New(initPath, initialProject *string, cfg Config) *Session {
	return &Session{
		id:             uuid.NewString(),
		workingMemory:  NewWorkingMemory(),
		config:         cfg,
		initPath:       initPath,
		initialProject: initialProject,
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// Config returns the session's configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// WorkingMemory returns the session's working memory. Callers that mutate
// FileTrees must hold no expectation of exclusivity; use SetWorkingMemory to
// publish a new snapshot.
func (s *Session) WorkingMemory() WorkingMemory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingMemory
}

// SetWorkingMemory replaces the session's working memory, e.g. after a
// directory rescan.
func (s *Session) SetWorkingMemory(wm WorkingMemory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workingMemory = wm
}

// NextRequestID increments and returns the session's request counter (spec
// §3 invariant d: monotonic per session, first assistant response is 1).
func (s *Session) NextRequestID() uint64 {
	return atomic.AddUint64(&s.nextRequestID, 1)
}

// AppendMessage appends msg to history, totally ordering it against every
// other append (spec §5).
func (s *Session) AppendMessage(msg message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
}

// History returns a copy of the full, uncompacted message history.
func (s *Session) History() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Message, len(s.history))
	copy(out, s.history)
	return out
}

// ActiveMessages returns the messages from (and including) the last
// CompactionBlock onward, or the entire history if none exists (spec §4.4
// step 4: "all messages from the last ContextCompaction block onward").
func (s *Session) ActiveMessages() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if _, ok := s.history[i].Compaction(); ok {
			out := make([]message.Message, len(s.history)-i)
			copy(out, s.history[i:])
			return out
		}
	}
	out := make([]message.Message, len(s.history))
	copy(out, s.history)
	return out
}

// CompactionCount reports how many compactions have occurred, used to
// derive the next CompactionBlock.CompactionNumber (spec §3 invariant c).
func (s *Session) CompactionCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactions
}

// RecordCompaction increments the compaction counter; called once the
// CompactionBlock message has been appended.
func (s *Session) RecordCompaction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compactions++
}

// ContextSize computes spec §3's context-size definition from the most
// recent assistant message carrying Usage, scanning the full history (not
// just the active set) since usage always lives on the latest response
// regardless of compaction.
func (s *Session) ContextSize() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		m := s.history[i]
		if m.Role == message.Assistant && m.Usage != nil {
			return m.ContextSize()
		}
	}
	return 0
}

// ShouldCompact reports whether context compaction should run before the
// next iteration (spec §4.4).
func (s *Session) ShouldCompact() bool {
	s.mu.Lock()
	cfg := s.config
	s.mu.Unlock()
	if !cfg.ContextManagementEnabled || cfg.ContextLimit == nil {
		return false
	}
	limit := float64(*cfg.ContextLimit)
	return float64(s.ContextSize()) >= cfg.threshold()*limit
}

// RecordToolExecution appends an execution to the tool-execution log.
func (s *Session) RecordToolExecution(exec ToolExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolExecutions = append(s.toolExecutions, exec)
}

// ToolExecutions returns a copy of the full tool-execution log, oldest
// first.
func (s *Session) ToolExecutions() []ToolExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolExecution, len(s.toolExecutions))
	copy(out, s.toolExecutions)
	return out
}

// FindExecution returns the ToolExecution whose request ID matches
// toolUseID, and whether one was found.
func (s *Session) FindExecution(toolUseID string) (ToolExecution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.toolExecutions) - 1; i >= 0; i-- {
		if s.toolExecutions[i].Request.ID == toolUseID {
			return s.toolExecutions[i], true
		}
	}
	return ToolExecution{}, false
}

// RenderOutbound clones ActiveMessages and lazily re-renders every
// ToolResultBlock's content by looking up its ToolExecution (spec §4.5).
// Executions are consulted newest-first through a single ResourcesTracker
// shared across the whole render pass, so the most recent rendering of a
// given resource wins and earlier ones collapse to a short reference.
func (s *Session) RenderOutbound() ([]message.Message, error) {
	active := s.ActiveMessages()
	tracker := tools.NewResourcesTracker()

	// Render every execution's content up front, newest first, so the
	// ResourcesTracker awards each distinct resource to its most recent
	// tool call regardless of which ToolResultBlock happens to reference it
	// (spec §4.5: "iterated newest first ... latest render of a resource is
	// canonical").
	execs := s.ToolExecutions()
	rendered := make(map[string]string, len(execs))
	for i := len(execs) - 1; i >= 0; i-- {
		e := execs[i]
		if _, done := rendered[e.Request.ID]; done {
			continue
		}
		rendered[e.Request.ID] = e.Result.Render(tracker)
	}

	out := make([]message.Message, len(active))
	for i, m := range active {
		if !containsToolResult(m) {
			out[i] = m
			continue
		}
		blocks := make([]message.Block, len(m.Content))
		for j, b := range m.Content {
			tr, ok := b.(message.ToolResultBlock)
			if !ok {
				blocks[j] = b
				continue
			}
			content, found := rendered[tr.ToolUseID]
			if !found {
				return nil, fmt.Errorf("session: no tool execution for tool_use_id %q", tr.ToolUseID)
			}
			tr.Content = content
			blocks[j] = tr
		}
		out[i] = message.Message{Role: m.Role, Content: blocks, RequestID: m.RequestID, Usage: m.Usage}
	}
	return out, nil
}

func containsToolResult(m message.Message) bool {
	for _, b := range m.Content {
		if _, ok := b.(message.ToolResultBlock); ok {
			return true
		}
	}
	return false
}
