// Package tools implements the capability registry: named, schema-validated
// operations that control loops invoke on behalf of agents.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is a single capability an agent can invoke.
type Tool interface {
	// Name returns the capability identifier, e.g. "file_write".
	Name() string

	// Description returns a one-line summary shown to the reasoning model.
	Description() string

	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() map[string]any

	// Execute runs the tool with already-validated arguments.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Registry holds the available tools and validates arguments against each
// tool's schema before execution.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its parameter schema. Registering a tool
// with a name already taken replaces the previous one.
func (r *Registry) Register(t Tool) error {
	params := t.Parameters()
	if params == nil {
		params = map[string]any{"type": "object"}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal schema for %s: %w", t.Name(), err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(t.Name()+".json", strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("add schema for %s: %w", t.Name(), err)
	}
	sch, err := c.Compile(t.Name() + ".json")
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", t.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.schemas[t.Name()] = sch
	return nil
}

// Get returns the named tool, or nil if not registered.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
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

// Execute validates args against the tool's schema and runs it.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	sch := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}

	if args == nil {
		args = map[string]any{}
	}
	// Round-trip through JSON so the validator sees canonical types.
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args for %s: %w", name, err)
	}
	canonical := map[string]any{}
	if err := json.Unmarshal(data, &canonical); err != nil {
		return nil, fmt.Errorf("unmarshal args for %s: %w", name, err)
	}
	if err := sch.Validate(canonical); err != nil {
		return nil, fmt.Errorf("invalid args for %s: %w", name, err)
	}

	// Tools receive the canonical form, so numeric args are always float64
	// regardless of how the caller built the map.
	return t.Execute(ctx, canonical)
}

// Descriptors renders the tool catalog as prompt text, one tool per line.
func (r *Registry) Descriptors() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		t := r.tools[name]
		params, _ := json.Marshal(t.Parameters())
		fmt.Fprintf(&b, "- %s: %s (args: %s)\n", t.Name(), t.Description(), params)
	}
	return b.String()
}
