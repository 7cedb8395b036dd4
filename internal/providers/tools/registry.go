package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sandevgo/oppsbot/internal/core"
	"github.com/sandevgo/oppsbot/pkg/log"
)

// Handler executes one tool call. Arguments arrive as the raw JSON the
// model produced; handlers decode and validate them themselves.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Definition is one tool as a toolset declares it.
type Definition struct {
	Description string
	Schema      string
	Handler     Handler
}

// Toolset is anything that contributes named tools to the registry.
type Toolset interface {
	GetDefinitions() map[string]Definition
}

// Registry is the fixed set of named, schema-described operations
// exposed to the model. Tool names and arguments coming back from the
// model are untrusted; dispatch failures are returned as errors for
// the agent to wrap into tool-result turns.
type Registry struct {
	order []string
	tools map[string]Definition
}

func NewRegistry(toolsets ...Toolset) *Registry {
	r := &Registry{tools: make(map[string]Definition)}
	for _, ts := range toolsets {
		for name, def := range ts.GetDefinitions() {
			r.register(name, def)
		}
	}
	sort.Strings(r.order)
	return r
}

func (r *Registry) register(name string, def Definition) {
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = def
}

// Definitions returns the tool declarations sorted by name, in the
// model's function-calling format.
func (r *Registry) Definitions() []core.Tool {
	defs := make([]core.Tool, 0, len(r.order))
	for _, name := range r.order {
		def := r.tools[name]
		defs = append(defs, core.Tool{
			Type: "function",
			Function: core.Function{
				Name:        name,
				Description: def.Description,
				Parameters:  json.RawMessage(def.Schema),
			},
		})
	}
	return defs
}

func (r *Registry) Call(ctx context.Context, name string, args string) (string, error) {
	def, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	raw := json.RawMessage(args)
	if args == "" {
		raw = json.RawMessage("{}")
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("tool %s: arguments are not valid JSON", name)
	}

	log.FromCtx(ctx).Debug().Str("tool", name).Msg("dispatching tool call")
	return def.Handler(ctx, raw)
}
