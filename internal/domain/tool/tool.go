package tool

import (
	"context"
	"fmt"
	"sync"
)

// Context carries the execution environment handed to every tool.
// ProjectRoot is the absolute directory all path arguments are resolved
// against and confined to.
type Context struct {
	ProjectRoot string
}

// Result is a tool's outcome. Errors are ordinary results with IsError
// set, never transport failures: the loop feeds them back to the model
// so it can self-correct.
type Result struct {
	Output  string
	IsError bool
}

// Errorf builds an error result.
func Errorf(format string, args ...interface{}) *Result {
	return &Result{Output: fmt.Sprintf(format, args...), IsError: true}
}

// Tool is a named, schema-described side-effecting operation bounded to
// the project root.
type Tool interface {
	// Name returns the wire name exposed to the provider.
	Name() string
	// Description returns the human-readable description.
	Description() string
	// Schema returns the JSON-schema argument declaration.
	Schema() map[string]interface{}
	// Execute runs the tool. A returned error is converted by the loop
	// into an error result; tools should prefer returning *Result with
	// IsError set so the message reaching the model stays descriptive.
	Execute(ctx context.Context, args map[string]interface{}, tc Context) (*Result, error)
}

// Definition is the declaration passed verbatim to the provider.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Registry maps tool names to tools. Registration order is preserved so
// the declaration list sent to the provider is stable.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Duplicate names are rejected.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get returns the tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.tools[name]
	return t, exists
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all tool definitions in registration order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
