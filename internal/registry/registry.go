package registry

import (
	"log/slog"
	"sort"
	"sync"
)

// Module is the interface that all function modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry maps dotted names to pluggable functions for a single engine.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]*Function
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{funcs: make(map[string]*Function)}
}

// Load registers every module in order.
func (r *Registry) Load(modules ...Module) *Registry {
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (*Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns every registered name in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Each calls fn for every registered function of the given kind, in name order.
func (r *Registry) Each(kind Kind, fn func(*Function)) {
	for _, name := range r.Names() {
		f, _ := r.Lookup(name)
		if f != nil && f.Kind == kind {
			fn(f)
		}
	}
}

func (r *Registry) add(fn *Function) {
	mustValidName(fn.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[fn.Name]; exists {
		panic("function '" + fn.Name + "' already registered")
	}
	slog.Debug("Registering function.", "name", fn.Name, "kind", fn.Kind.String())
	r.funcs[fn.Name] = fn
}
