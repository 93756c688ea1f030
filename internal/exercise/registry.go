package exercise

import (
	"fmt"
	"sort"
	"strings"
)

// UnknownExerciseError is returned when an identifier is not in the registry.
type UnknownExerciseError struct {
	ID    string
	Known []string
}

func (e *UnknownExerciseError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("unknown exercise_id %q", e.ID)
	}
	return fmt.Sprintf("unknown exercise_id %q (known: %s)", e.ID, strings.Join(e.Known, ", "))
}

// Registry resolves exercise identifiers to definitions. It is read-only after construction
// and safe for concurrent use.
type Registry struct {
	defs map[string]Definition
	ids  []string
}

// NewRegistry validates defs and indexes them by ID. Duplicate IDs are rejected.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		d = d.withDefaults()
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.defs[d.ID]; dup {
			return nil, fmt.Errorf("duplicate exercise id %q", d.ID)
		}
		r.defs[d.ID] = d
		r.ids = append(r.ids, d.ID)
	}
	sort.Strings(r.ids)
	return r, nil
}

// Default returns a registry holding the built-in definitions.
func Default() *Registry {
	r, err := NewRegistry(Builtins()...)
	if err != nil {
		panic(fmt.Sprintf("built-in exercises: %v", err))
	}
	return r
}

// Lookup returns the definition for id or an *UnknownExerciseError.
func (r *Registry) Lookup(id string) (Definition, error) {
	d, ok := r.defs[id]
	if !ok {
		return Definition{}, &UnknownExerciseError{ID: id, Known: r.IDs()}
	}
	return d.Clone(), nil
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// List returns every definition sorted by ID.
func (r *Registry) List() []Definition {
	out := make([]Definition, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.defs[id].Clone())
	}
	return out
}

// Merge returns a new registry where defs replace same-ID entries and add new ones.
func (r *Registry) Merge(defs ...Definition) (*Registry, error) {
	byID := make(map[string]Definition, len(r.defs)+len(defs))
	for id, d := range r.defs {
		byID[id] = d
	}
	for _, d := range defs {
		byID[d.ID] = d
	}
	merged := make([]Definition, 0, len(byID))
	for _, d := range byID {
		merged = append(merged, d)
	}
	return NewRegistry(merged...)
}

// Restrict returns a registry holding only ids. An empty list returns r unchanged.
func (r *Registry) Restrict(ids []string) (*Registry, error) {
	if len(ids) == 0 {
		return r, nil
	}
	defs := make([]Definition, 0, len(ids))
	for _, id := range ids {
		d, err := r.Lookup(id)
		if err != nil {
			return nil, fmt.Errorf("restricting registry: %w", err)
		}
		defs = append(defs, d)
	}
	return NewRegistry(defs...)
}
