package synapse

import "fmt"

// Registry maps tool names to their specs and handlers. It is built once
// at startup and never modified, so it is safe for concurrent use.
type Registry struct {
	order []string
	tools map[string]RegisteredTool
}

// NewRegistry builds a registry from the given tools, preserving order.
func NewRegistry(tools ...RegisteredTool) (*Registry, error) {
	r := &Registry{tools: make(map[string]RegisteredTool, len(tools))}
	for _, t := range tools {
		name := t.Spec.Name
		if name == "" {
			return nil, fmt.Errorf("tool name is required: %w", ErrValidation)
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tool %s has no handler: %w", name, ErrValidation)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool %s: %w", name, ErrValidation)
		}
		seen := make(map[string]bool, len(t.Spec.Parameters))
		for _, p := range t.Spec.Parameters {
			if p.Name == "" || seen[p.Name] {
				return nil, fmt.Errorf("tool %s: invalid parameter %q: %w", name, p.Name, ErrValidation)
			}
			seen[p.Name] = true
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (RegisteredTool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the tool specs in registration order.
func (r *Registry) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec)
	}
	return specs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
