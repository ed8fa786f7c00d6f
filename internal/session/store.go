package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forgekit/forge-agent/internal/fsext"
	"github.com/forgekit/forge-agent/internal/home"
	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/pkg/tools"
)

// storedResult is the durable, JSON-friendly stand-in for a tools.Result
// (an interface, so not itself marshalable). It is captured once at
// execution time from the live Result and replayed on restore; because its
// bodies are frozen at capture time it cannot re-run a handler, but it
// faithfully reproduces Render/Status/RenderForUI including dedup via
// tools.Dedupable.
type storedResult struct {
	Success    bool   `json:"success"`
	LLMBody    string `json:"llm_body"`
	UIBody     string `json:"ui_body"`
	StatusLine string `json:"status"`
	Kind       string `json:"resource_kind,omitempty"`
	Identity   string `json:"resource_id,omitempty"`
	ToolCallID string `json:"tool_call_id"`
}

func captureResult(toolCallID string, r tools.Result) storedResult {
	sr := storedResult{
		Success:    r.IsSuccess(),
		LLMBody:    r.Render(nil),
		UIBody:     r.RenderForUI(nil),
		StatusLine: r.Status(),
		ToolCallID: toolCallID,
	}
	if d, ok := r.(tools.Dedupable); ok {
		if kind, id, has := d.ResourceKey(); has {
			sr.Kind, sr.Identity = kind, id
		}
	}
	return sr
}

func (r storedResult) IsSuccess() bool { return r.Success }

func (r storedResult) Render(tracker *tools.ResourcesTracker) string {
	if r.Kind == "" || tracker == nil {
		return r.LLMBody
	}
	key := tools.ResourceKey(r.Kind, r.Identity)
	if !tracker.Claim(key, r.ToolCallID) {
		return tools.Reference(r.Kind, r.Identity, r.ToolCallID)
	}
	return r.LLMBody
}

func (r storedResult) Status() string { return r.StatusLine }

func (r storedResult) RenderForUI(*tools.ResourcesTracker) string { return r.UIBody }

func (r storedResult) ResourceKey() (kind, identity string, ok bool) {
	return r.Kind, r.Identity, r.Kind != ""
}

// storedExecution is the persisted form of a ToolExecution.
type storedExecution struct {
	Request   ToolRequest  `json:"request"`
	Result    storedResult `json:"result"`
	CreatedAt time.Time    `json:"created_at"`
}

// storedTree mirrors fsext.Tree for JSON encoding (Tree itself carries no
// json tags since list_directory never persists one directly).
type storedTree struct {
	ProjectName string      `json:"project_name"`
	Root        *fsext.Node `json:"root"`
	Truncated   bool        `json:"truncated"`
}

// Snapshot is the durable session shape spec §4.6 names: "session_id,
// messages, tool_executions, working_memory, init_path?, initial_project?,
// next_request_id".
type Snapshot struct {
	SessionID        string              `json:"session_id"`
	Messages         []message.Message   `json:"messages"`
	ToolExecutions   []storedExecution   `json:"tool_executions"`
	CurrentTask      string              `json:"current_task"`
	FileTrees        []storedTree        `json:"file_trees"`
	AvailableProjects []string           `json:"available_projects"`
	InitPath         *string             `json:"init_path,omitempty"`
	InitialProject   *string             `json:"initial_project,omitempty"`
	NextRequestID    uint64              `json:"next_request_id"`
	Compactions      uint64              `json:"compactions"`
	Config           Config              `json:"config"`
}

// Snapshot captures the session's current durable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	execs := make([]storedExecution, len(s.toolExecutions))
	for i, e := range s.toolExecutions {
		var sr storedResult
		if already, ok := e.Result.(storedResult); ok {
			sr = already
		} else {
			sr = captureResult(e.Request.ID, e.Result)
		}
		execs[i] = storedExecution{Request: e.Request, Result: sr, CreatedAt: e.CreatedAt}
	}

	var trees []storedTree
	for _, name := range s.workingMemory.FileTrees.Keys() {
		t, _ := s.workingMemory.FileTrees.Get(name)
		trees = append(trees, storedTree{ProjectName: t.ProjectName, Root: t.Root, Truncated: t.Truncated})
	}

	return Snapshot{
		SessionID:         s.id,
		Messages:          append([]message.Message(nil), s.history...),
		ToolExecutions:    execs,
		CurrentTask:       s.workingMemory.CurrentTask,
		FileTrees:         trees,
		AvailableProjects: append([]string(nil), s.workingMemory.AvailableProjects...),
		InitPath:          s.initPath,
		InitialProject:    s.initialProject,
		NextRequestID:     s.nextRequestID,
		Compactions:       s.compactions,
		Config:            s.config,
	}
}

// FromSnapshot reconstructs a Session from a persisted Snapshot (spec §4.6:
// "On restore, the entire snapshot is loaded ... the agent loop resumes
// with the same invariants").
func FromSnapshot(snap Snapshot) *Session {
	wm := NewWorkingMemory()
	wm.CurrentTask = snap.CurrentTask
	wm.AvailableProjects = snap.AvailableProjects
	for _, t := range snap.FileTrees {
		wm.FileTrees.Set(t.ProjectName, &fsext.Tree{ProjectName: t.ProjectName, Root: t.Root, Truncated: t.Truncated})
	}

	execs := make([]ToolExecution, len(snap.ToolExecutions))
	for i, e := range snap.ToolExecutions {
		execs[i] = ToolExecution{Request: e.Request, Result: e.Result, CreatedAt: e.CreatedAt}
	}

	return &Session{
		id:             snap.SessionID,
		history:        snap.Messages,
		toolExecutions: execs,
		workingMemory:  wm,
		config:         snap.Config,
		nextRequestID:  snap.NextRequestID,
		compactions:    snap.Compactions,
		initPath:       snap.InitPath,
		initialProject: snap.InitialProject,
	}
}

// RebuildFileTrees re-scans InitialProject from disk into working memory,
// replacing the tree restored from the snapshot for that project with the
// current directory contents (spec §4.6: "file trees for initial_project
// are rebuilt from disk").
func (s *Session) RebuildFileTrees(maxDepth, limit int) error {
	s.mu.Lock()
	initialProject := s.initialProject
	initPath := s.initPath
	s.mu.Unlock()
	if initialProject == nil || initPath == nil {
		return nil
	}
	tree, err := fsext.BuildTree(*initialProject, *initPath, maxDepth, limit)
	if err != nil {
		return fmt.Errorf("session: rebuild file tree for %q: %w", *initialProject, err)
	}
	s.mu.Lock()
	s.workingMemory.FileTrees.Set(*initialProject, tree)
	s.mu.Unlock()
	return nil
}

// Store persists Sessions to JSON snapshot files, one per session, under a
// directory (spec §4.6: "Persistence is atomic per append").
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating it if absent.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create store dir %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (st *Store) path(sessionID string) string {
	return filepath.Join(st.dir, sessionID+".json")
}

// Save atomically persists s's current snapshot (write-temp + rename, spec
// §4.6), grounded on the teacher's pattern-file write.
func (st *Store) Save(s *Session) error {
	raw, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal snapshot: %w", err)
	}
	return home.WriteFileAtomic(st.path(s.ID()), raw, 0o644)
}

// Load restores a Session from its persisted snapshot.
func (st *Store) Load(sessionID string) (*Session, error) {
	raw, err := os.ReadFile(st.path(sessionID))
	if err != nil {
		return nil, fmt.Errorf("session: read snapshot %q: %w", sessionID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("session: unmarshal snapshot %q: %w", sessionID, err)
	}
	return FromSnapshot(snap), nil
}
