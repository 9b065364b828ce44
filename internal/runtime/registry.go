package runtime

import "tradeEngine/internal/ports"

// Registry maps strategy class names from configuration onto factories of
// known strategy implementations.
type Registry struct {
	factories map[string]ports.StrategyFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ports.StrategyFactory)}
}

// Register adds a factory under a class name. Registering the same name
// again replaces the factory.
func (r *Registry) Register(className string, factory ports.StrategyFactory) {
	r.factories[className] = factory
}

// Lookup resolves a class name.
func (r *Registry) Lookup(className string) (ports.StrategyFactory, bool) {
	f, ok := r.factories[className]
	return f, ok
}

// ClassNames lists every registered class.
func (r *Registry) ClassNames() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
