package capability

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
)

// Registry aggregates every provider's advertised capabilities into one
// discoverable catalog and resolves a capability name back to its owning
// provider. The provider list is constructed once during process
// initialization and injected here; the registry is immutable afterward.
type Registry struct {
	providers []Provider
	owners    map[string]Provider
	defs      map[string]Definition
}

// New creates a registry from the given providers. It fails with
// ErrDuplicateCapability if any two providers advertise the same name.
func New(providers ...Provider) (*Registry, error) {
	r := &Registry{
		providers: providers,
		owners:    make(map[string]Provider),
		defs:      make(map[string]Definition),
	}

	for _, p := range providers {
		for _, def := range p.Capabilities() {
			if owner, ok := r.owners[def.Name]; ok {
				return nil, goerr.Wrap(ErrDuplicateCapability, "capability registered twice",
					goerr.V("name", def.Name),
					goerr.V("provider", p.Name()),
					goerr.V("registered_by", owner.Name()))
			}
			r.owners[def.Name] = p
			r.defs[def.Name] = def
		}
	}

	return r, nil
}

// Definitions returns the full catalog in a stable order, for injection
// into the model's function-calling schema.
func (r *Registry) Definitions() []Definition {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.defs[name])
	}
	return defs
}

// Resolve returns the owning provider and definition for a capability name
func (r *Registry) Resolve(name string) (Provider, Definition, bool) {
	p, ok := r.owners[name]
	if !ok {
		return nil, Definition{}, false
	}
	return p, r.defs[name], true
}

// Health runs every provider's health check and returns the results keyed
// by provider name.
func (r *Registry) Health(ctx context.Context) map[string]bool {
	health := make(map[string]bool, len(r.providers))
	for _, p := range r.providers {
		health[p.Name()] = p.HealthCheck(ctx)
	}
	return health
}
