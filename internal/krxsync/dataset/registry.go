package dataset

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Registry maps dataset names to their implementations.
type Registry struct {
	datasets map[string]Dataset
	order    []string // insertion order for deterministic iteration
}

// NewRegistry creates a registry populated with every dataset in run order:
// the catalog first, since price datasets read the entity list it writes.
func NewRegistry() *Registry {
	r := &Registry{
		datasets: make(map[string]Dataset),
	}

	// Catalog
	r.Register(&Sector{})
	r.Register(&Ticker{})

	// Price
	r.Register(&Price{})
	r.Register(&Foreign{})

	return r
}

// Register adds a dataset to the registry.
func (r *Registry) Register(d Dataset) {
	name := d.Name()
	if _, ok := r.datasets[name]; !ok {
		r.order = append(r.order, name)
	}
	r.datasets[name] = d
}

// Get returns a dataset by name.
func (r *Registry) Get(name string) (Dataset, error) {
	d, ok := r.datasets[name]
	if !ok {
		return nil, eris.Errorf("dataset: unknown dataset %q (valid: %s)", name, strings.Join(r.AllNames(), ", "))
	}
	return d, nil
}

// Select returns datasets matching the given criteria, always in
// registration order. If phase is non-nil, only datasets in that phase are
// returned. If names is non-empty, only those named datasets are returned.
func (r *Registry) Select(phase *Phase, names []string) ([]Dataset, error) {
	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, err := r.Get(name); err != nil {
			return nil, err
		}
		want[name] = true
	}

	var result []Dataset
	for _, name := range r.order {
		d := r.datasets[name]
		if len(want) > 0 && !want[name] {
			continue
		}
		if phase != nil && d.Phase() != *phase {
			continue
		}
		result = append(result, d)
	}
	return result, nil
}

// All returns all datasets in registration order.
func (r *Registry) All() []Dataset {
	result := make([]Dataset, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.datasets[name])
	}
	return result
}

// AllNames returns all registered dataset names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
