package tools

import (
	"sort"

	"github.com/lifelink/copilot/internal/fault"
	"github.com/lifelink/copilot/internal/permissions"
)

// Registry is the static set of tools available to the service. It is built
// once at startup and read-only afterwards; there is no runtime
// registration surface.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a registry from the given tools. Registration fails for
// duplicates and for any tool whose name has no entry in the permission
// matrix: an unlisted tool would silently fall back to admin-only, which is
// almost never what a missing entry means.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		name := t.Name()
		if name == "" {
			return nil, fault.New(fault.KindValidation, "tool has empty name")
		}
		if _, dup := r.tools[name]; dup {
			return nil, fault.Newf(fault.KindValidation, "tool %q registered twice", name)
		}
		if !permissions.Registered(name) {
			return nil, fault.Newf(fault.KindValidation, "tool %q has no permission matrix entry", name)
		}
		r.tools[name] = t
	}
	return r, nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fault.Newf(fault.KindNotFound, "unknown tool %q", name)
	}
	return t, nil
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForRole returns the tools role may execute, sorted by name. The agent
// builds the model's tool list from this so denied tools are never offered.
func (r *Registry) ForRole(role permissions.Role) []Tool {
	allowed := permissions.Allowed(role)
	var out []Tool
	for _, name := range r.Names() {
		if allowed[name] {
			out = append(out, r.tools[name])
		}
	}
	return out
}
