// Package tools implements the tool/execution layer (C8): a registry of
// named tools indexed by name and category, the singleton VehicleState
// store, and JSON-Schema parameter validation.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cabinmind/copilot/pkg/models"
)

// Handler executes a validated tool call against the vehicle state store.
type Handler func(ctx context.Context, state *VehicleState, args json.RawMessage) (models.ToolResult, error)

// registeredTool pairs a descriptor with its bound handler.
type registeredTool struct {
	descriptor models.ToolDescriptor
	handler    Handler
}

// Registry is the tool/execution layer (C8). Indexed by name, with a
// secondary index by category (§4.8).
type Registry struct {
	state *VehicleState

	mu         sync.RWMutex
	tools      map[string]registeredTool
	byCategory map[string][]string
}

// NewRegistry creates an empty registry bound to state.
func NewRegistry(state *VehicleState) *Registry {
	return &Registry{
		state:      state,
		tools:      make(map[string]registeredTool),
		byCategory: make(map[string][]string),
	}
}

// Register adds a tool. Re-registering a name replaces it.
func (r *Registry) Register(descriptor models.ToolDescriptor, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[descriptor.Name] = registeredTool{descriptor: descriptor, handler: handler}
	r.byCategory[descriptor.Category] = append(r.byCategory[descriptor.Category], descriptor.Name)
}

// Get returns a tool's descriptor by name.
func (r *Registry) Get(name string) (models.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t.descriptor, ok
}

// List returns every registered tool descriptor.
func (r *Registry) List() []models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.descriptor)
	}
	return out
}

// ListByCategory returns every tool descriptor registered under category.
func (r *Registry) ListByCategory(category string) []models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.byCategory[category]
	out := make([]models.ToolDescriptor, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			out = append(out, t.descriptor)
		}
	}
	return out
}

// Execute validates args against the named tool's parameter schema and, if
// valid, dispatches to its handler (§4.8). A missing tool or invalid
// arguments both return a non-nil error rather than a panic; callers
// (notably the MCP server) translate the error into the appropriate wire
// error code.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (models.ToolResult, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return models.ToolResult{}, fmt.Errorf("tool not found: %s", name)
	}

	if err := validateArgs(name, t.descriptor.Parameters, args); err != nil {
		return models.ToolResult{}, err
	}

	return t.handler(ctx, r.state, args)
}
