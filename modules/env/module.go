// Package env exposes the process environment to pipelines as the leaf-only
// `$.env` function. It is not callable from expressions.
package env

import (
	"context"
	"os"
	"strings"

	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/internal/value"
)

// Module implements the registry.Module interface for this package.
// Lookup defaults to os.LookupEnv and Environ to os.Environ.
type Module struct {
	Lookup  func(string) (string, bool)
	Environ func() []string
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterContinuation("env", m.env)
}

// env answers with the named variable, or with every variable as a map when
// called without a name. A missing variable yields nil.
func (m *Module) env(_ context.Context, args []any, k registry.Callback) {
	if len(args) > 0 && args[0] != nil {
		lookup := m.Lookup
		if lookup == nil {
			lookup = os.LookupEnv
		}
		if v, ok := lookup(value.Stringify(args[0])); ok {
			k(nil, v)
			return
		}
		k(nil, nil)
		return
	}

	environ := m.Environ
	if environ == nil {
		environ = os.Environ
	}
	all := make(map[string]any)
	for _, e := range environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			all[pair[0]] = pair[1]
		}
	}
	k(nil, all)
}
