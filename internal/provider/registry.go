package provider

import "sort"

// Registry maps provider names to implementations. New backends are added
// by registering them here, never by branching on names in the worker.
// Registration happens at startup; reads after that are lock-free.
type Registry struct {
	providers map[string]AnalysisProvider
}

func NewRegistry(ps ...AnalysisProvider) *Registry {
	r := &Registry{providers: make(map[string]AnalysisProvider, len(ps))}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p AnalysisProvider) {
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (AnalysisProvider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
