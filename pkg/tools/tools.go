// Package tools implements the declarative tool registry and dispatch
// pipeline (spec §4.3): ToolSpec, ToolScope gating, typed dispatch through
// a JSON-Schema-validated handler, and the ResourcesTracker deduplication
// accumulator used by lazy tool-result rendering.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// Scope is a capability label limiting which tools are visible in a given
// execution context (spec §4.3).
type Scope string

const (
	ScopeAgent                Scope = "agent"
	ScopeAgentWithDiffBlocks  Scope = "agent_with_diff_blocks"
	ScopeSubAgentReadOnly     Scope = "sub_agent_read_only"
	ScopeSubAgentDefault      Scope = "sub_agent_default"
)

// Spec declares one tool: its name, JSON-Schema parameter shape, and which
// scopes may call it.
type Spec struct {
	Name              string
	Description       string
	ParametersSchema  map[string]any
	Annotations       map[string]string
	SupportedScopes   []Scope
	Hidden            bool
	TitleTemplate     string
	// ParallelSafe marks a tool as eligible to run concurrently with others
	// in the same batch (spec: only spawn_agent with mode=read_only).
	ParallelSafe bool
	// MultilineParams lists parameter names the XML/Caret streaming
	// dialects must treat as multi-line (spec §4.1).
	MultilineParams []string
}

// SupportsScope reports whether scope may invoke this tool.
func (s Spec) SupportsScope(scope Scope) bool {
	for _, sc := range s.SupportedScopes {
		if sc == scope {
			return true
		}
	}
	return false
}

// Result is the typed outcome of executing a tool (spec §4.3).
type Result interface {
	// IsSuccess reports whether the tool executed without error.
	IsSuccess() bool
	// Render produces the LLM-facing rendering, deduplicating large
	// resources through tracker.
	Render(tracker *ResourcesTracker) string
	// Status is a short UI status line.
	Status() string
	// RenderForUI produces the UI-facing rendering, which may differ from
	// Render (e.g. structured JSON instead of prose).
	RenderForUI(tracker *ResourcesTracker) string
}

// Dedupable is optionally implemented by a Result that participates in
// ResourcesTracker dedup, so a caller persisting a ToolExecution (spec §4.6)
// can recover the same resource key on restore instead of re-deriving it
// from Render's internal tracker.Claim call.
type Dedupable interface {
	// ResourceKey reports the (kind, identity) pair this Result dedups on,
	// and whether it participates in dedup at all.
	ResourceKey() (kind, identity string, ok bool)
}

// Handler executes one tool invocation against already-schema-validated
// input.
type Handler func(ctx context.Context, toolCallID string, input map[string]any) (Result, error)

type registeredTool struct {
	spec    Spec
	handler Handler
	schema  *gojsonschema.Schema
}

// Registry maps tool name to handler. It is mutable only until Freeze is
// called (spec §9: the global tool registry is read-only after startup).
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*registeredTool
	frozen bool
	logger *zap.Logger
}

// NewRegistry creates an empty, mutable Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{tools: make(map[string]*registeredTool), logger: logger}
}

// Register adds a tool and its handler. It panics if called after Freeze,
// matching the teacher's init-then-read singleton discipline (spec §9).
func (r *Registry) Register(spec Spec, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("tools: cannot Register after Freeze")
	}
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("tools: %q already registered", spec.Name)
	}

	var schema *gojsonschema.Schema
	if spec.ParametersSchema != nil {
		raw, err := json.Marshal(spec.ParametersSchema)
		if err != nil {
			return fmt.Errorf("tools: marshal schema for %q: %w", spec.Name, err)
		}
		schema, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return fmt.Errorf("tools: compile schema for %q: %w", spec.Name, err)
		}
	}

	r.tools[spec.Name] = &registeredTool{spec: spec, handler: handler, schema: schema}
	return nil
}

// Freeze marks the registry read-only; subsequent Register calls panic.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Specs returns every Spec visible in scope, in a stable order.
func (r *Registry) Specs(scope Scope) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Spec
	for _, t := range r.tools {
		if !t.spec.Hidden && t.spec.SupportsScope(scope) {
			out = append(out, t.spec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MultilineParams returns the set of parameter names that toolName's Spec
// registers as multi-line (nil for an unknown tool) — the streaming
// parser's XML/Caret dialects consult this through the
// streaming.MultilineLookup interface so they need not import this
// package's dispatch machinery.
func (r *Registry) MultilineParams(toolName string) map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[toolName]
	if !ok {
		return nil
	}
	out := make(map[string]bool, len(t.spec.MultilineParams))
	for _, p := range t.spec.MultilineParams {
		out[p] = true
	}
	return out
}

// Spawner launches a sub-agent and blocks until it finishes (spec §4.4,
// §5). Declared here so pkg/tools/builtin's spawn_agent can call into
// pkg/agent's Loop without importing pkg/agent, which itself imports
// pkg/tools/builtin.
type Spawner interface {
	Spawn(ctx context.Context, task string, readOnly bool) (summary string, err error)
}

// ErrUnknownTool is returned by Execute when name has no registered handler.
var ErrUnknownTool = fmt.Errorf("unknown tool")

// ErrSchemaValidation is returned by Execute when input fails schema
// validation.
var ErrSchemaValidation = fmt.Errorf("tool input failed schema validation")

// Execute validates input against the tool's schema, then dispatches to its
// handler (spec §4.3: "deserializes request.input against the schema,
// invokes the handler").
func (r *Registry) Execute(ctx context.Context, scope Scope, toolCallID, name string, input map[string]any) (Result, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if !t.spec.SupportsScope(scope) {
		return nil, fmt.Errorf("%w: %q not available in scope %q", ErrUnknownTool, name, scope)
	}

	if t.schema != nil {
		raw, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaValidation, err)
		}
		res, err := t.schema.Validate(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaValidation, err)
		}
		if !res.Valid() {
			return nil, fmt.Errorf("%w: %v", ErrSchemaValidation, res.Errors())
		}
	}

	r.logger.Debug("executing tool", zap.String("name", name), zap.String("tool_call_id", toolCallID))
	return t.handler(ctx, toolCallID, input)
}

// IsParallelSafe reports whether name may run concurrently with others in
// the same batch.
func (r *Registry) IsParallelSafe(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return ok && t.spec.ParallelSafe
}
