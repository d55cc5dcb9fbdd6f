package types

import "fmt"

// Registry holds the process-wide target set. It is built once at startup
// and read-only afterwards, so lookups need no locking.
type Registry struct {
	targets []Target
	byID    map[string]Target
}

// NewRegistry validates the target set and builds the registry.
// An empty or malformed set is a configuration error: the process must
// refuse to start rather than run with nothing to monitor.
func NewRegistry(targets []Target) (*Registry, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("target registry is empty: at least one target is required")
	}

	byID := make(map[string]Target, len(targets))
	for _, t := range targets {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate target id %q", t.ID)
		}
		byID[t.ID] = t
	}

	out := make([]Target, len(targets))
	copy(out, targets)

	return &Registry{targets: out, byID: byID}, nil
}

// All returns every target in configuration order.
func (r *Registry) All() []Target {
	out := make([]Target, len(r.targets))
	copy(out, r.targets)
	return out
}

// Tier returns the targets in the given tier, in configuration order.
func (r *Registry) Tier(tier Tier) []Target {
	var out []Target
	for _, t := range r.targets {
		if t.Tier == tier {
			out = append(out, t)
		}
	}
	return out
}

// Get looks up a target by ID.
func (r *Registry) Get(id string) (Target, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	return len(r.targets)
}
