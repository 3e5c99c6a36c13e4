// pkg/audit/registry.go

package audit

import (
	"fmt"
)

// Factory constructs a Check for a registered id
type Factory func() (Check, error)

// Registry is the ordered list of checks belonging to one category.
// It is filled at startup and only read while a run is in progress.
type Registry struct {
	ids       []string
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register appends a check factory under id
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" {
		return fmt.Errorf("check id cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory for check %s cannot be nil", id)
	}
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("check %s: %w", id, ErrDuplicateCheck)
	}

	r.ids = append(r.ids, id)
	r.factories[id] = factory
	return nil
}

// MustRegister is Register for catalogue construction, where a failure is a programming error
func (r *Registry) MustRegister(id string, factory Factory) *Registry {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
	return r
}

// Add registers an already constructed check under its own id
func (r *Registry) Add(checks ...Check) *Registry {
	for _, check := range checks {
		c := check
		r.MustRegister(c.ID(), func() (Check, error) { return c, nil })
	}
	return r
}

// IDs returns the registered ids in registration order
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Len returns the number of registered checks
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ids)
}

// Resolve constructs the check registered under id. A panicking factory is
// reported as an error.
func (r *Registry) Resolve(id string) (check Check, err error) {
	var factory Factory
	exists := false
	if r != nil {
		factory, exists = r.factories[id]
	}
	if !exists {
		return nil, fmt.Errorf("check %s: %w", id, ErrUnknownCheck)
	}

	defer func() {
		if p := recover(); p != nil {
			check = nil
			err = fmt.Errorf("resolving check %s: %w: %v", id, ErrCheckPanic, p)
		}
	}()

	check, err = factory()
	if err != nil {
		return nil, fmt.Errorf("resolving check %s: %w", id, err)
	}
	if check == nil {
		return nil, fmt.Errorf("check %s: %w", id, ErrNilCheck)
	}
	return check, nil
}
