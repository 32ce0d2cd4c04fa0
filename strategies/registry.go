// Package strategies holds the built-in signal generators and a registry to
// select them by name.
package strategies

import (
	"fmt"
	"sort"

	"tradelab/internal/engine"
	"tradelab/strategies/donchian"
	"tradelab/types"
)

// Registry holds signal generators keyed by Name().
type Registry struct {
	generators map[string]engine.SignalGenerator
}

func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[string]engine.SignalGenerator),
	}
}

// Default returns a registry with every built-in strategy.
func Default() *Registry {
	r := NewRegistry()
	r.Register(NewSMACross())
	r.Register(NewSMARSI())
	r.Register(NewMACDVolume())
	r.Register(donchian.NewStrategy())
	return r
}

func (r *Registry) Register(g engine.SignalGenerator) {
	r.generators[g.Name()] = g
}

// Get looks up a generator by name. Unknown names wrap engine.ErrInvalidInput.
func (r *Registry) Get(name string) (engine.SignalGenerator, error) {
	g, ok := r.generators[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q (have %v)", engine.ErrInvalidInput, name, r.List())
	}
	return g, nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defaults returns the default params of a generator when it exposes them.
func Defaults(g engine.SignalGenerator) types.Params {
	if d, ok := g.(interface{ Defaults() types.Params }); ok {
		return d.Defaults()
	}
	return types.Params{}
}
