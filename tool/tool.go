// Package tool implements the function calling subsystem: schema validated
// tools invoked by the backend during a turn, and the registry the turn loop
// executes them through.
package tool

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/internal/util"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/model"
)

// Tool is a capability the backend may invoke during a turn.
//
// Implementations should be safe for concurrent use; different agents run
// turns in parallel against the same registry.
type Tool interface {
	// Name returns the unique snake_case identifier.
	Name() string

	// Description is shown to the backend to decide when to use the tool.
	Description() string

	// Parameters returns the JSON schema of the accepted arguments.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodePanic      = "PANIC"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Registry holds the tools available to agents.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding the given tools. Later tools with a
// duplicate name replace earlier ones.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds t, failing when the name is taken.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}

	r.tools[t.Name()] = t

	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]

	return t, ok
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Definitions returns the model-facing definitions of the named tools, or of
// all tools when no names are given. Unknown names are skipped.
func (r *Registry) Definitions(names ...string) []model.ToolDefinition {
	if len(names) == 0 {
		names = r.Names()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, model.NewToolDefinition(t.Name(), t.Description(), t.Parameters()))
	}

	return defs
}

// Subset returns a registry restricted to the named tools. Unknown names are skipped.
func (r *Registry) Subset(names ...string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub := &Registry{tools: make(map[string]Tool, len(names))}
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			sub.tools[name] = t
		}
	}

	return sub
}

// Execute decodes rawArgs and runs the named tool. A panic inside the tool is
// recovered and reported as a PANIC ToolError; any other failure is a *ToolError.
func (r *Registry) Execute(toolCtx *core.ToolContext, name, rawArgs string) (result any, err error) {
	logger := toolCtx.Logger()
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("tool.call.panic", "tool", name, "recover", rec, "stack", string(debug.Stack()))
			result, err = nil, &ToolError{Tool: name, Message: fmt.Sprintf("panic: %v", rec), Code: CodePanic}
		}
		logging.LogToolCall(logger, name, time.Since(start), err)
	}()

	impl, ok := r.Get(name)
	if !ok {
		return nil, &ToolError{Tool: name, Message: fmt.Sprintf("unknown tool: %s", name), Code: CodeNotFound}
	}

	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return nil, &ToolError{Tool: name, Message: fmt.Sprintf("invalid arguments: %v", err), Code: CodeValidation}
		}
	}

	return impl.Call(toolCtx, args)
}
