package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Registry maps tool names to their implementations. Registration happens
// once at startup; after that the registry is read-only, so Dispatch needs no
// locking.
type Registry struct {
	tools map[string]Tool
	log   zerolog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		log:   log.With().Str("component", "tool_registry").Logger(),
	}
}

// Register adds a tool. Registering a duplicate name is a programming error.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	r.tools[name] = tool
	r.log.Debug().Str("tool", name).Msg("Registered tool")
	return nil
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch routes a call to the named tool. It is a pure routing layer: any
// side effects belong to the tool itself. Returns ErrUnknownTool for
// unregistered names and the tool's own ArgsError when the arguments do not
// bind to its request shape.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (any, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	return tool.Run(ctx, args)
}
