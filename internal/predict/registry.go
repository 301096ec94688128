package predict

import (
	"fmt"
	"sort"
)

// Registry maps API model names onto adapters. Legacy ensemble aliases from
// the previous surface resolve to the boosted-tree adapter; the envelope
// metadata names the algorithm actually run.
type Registry struct {
	factories map[string]func() Model
}

// NewRegistry returns a registry with the four production adapters
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]func() Model{}}
	r.Register("lstm", func() Model { return NewLSTM() })
	r.Register("prophet", func() Model { return NewProphet() })
	r.Register("arima", func() Model { return NewARIMA() })
	r.Register("xgboost", func() Model { return NewXGBoost() })

	for _, alias := range []string{"randomforest", "random_forest", "gradientboost", "ensemble"} {
		r.Register(alias, func() Model { return NewXGBoost() })
	}
	return r
}

// Register adds or replaces a model factory
func (r *Registry) Register(name string, factory func() Model) {
	r.factories[name] = factory
}

// Get instantiates the adapter for name
func (r *Registry) Get(name string) (Model, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return factory(), nil
}

// Names lists registered model names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
