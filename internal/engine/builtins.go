package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/internal/store"
	"github.com/vk/chainrun/internal/value"
)

// Variables preset for every element run by $.map and $.filter.
const (
	ItemVar  = "_item"
	IndexVar = "_index"
)

// registerBuiltins adds the functions emitted by the normalizer and the
// recursive $.runChain. A registry shared by several engines keeps the
// first registration; the functions find their execution in the context.
func registerBuiltins(reg *registry.Registry) {
	builtins := map[string]registry.ContinuationFunc{
		"raise":    raise,
		"map":      collection(false),
		"filter":   collection(true),
		"runChain": runChain,
	}
	for _, name := range []string{"raise", "map", "filter", "runChain"} {
		if _, exists := reg.Lookup(name); exists {
			continue
		}
		reg.RegisterContinuation(name, builtins[name])
	}
}

// raise fails with its first argument as the message.
func raise(_ context.Context, args []any, k registry.Callback) {
	msg := ""
	if len(args) > 0 {
		msg = strings.TrimSpace(value.Stringify(args[0]))
	}
	if msg == "" {
		msg = "raised"
	}
	k(errors.New(msg), nil)
}

// collection runs a pipeline for every element of a list. The pipeline
// receives the element and its index as positional inputs and sees the
// caller's variables plus _item and _index. For map the results form the
// new list; for filter the elements whose result is truthy are kept. An
// empty pipeline returns the element unchanged.
func collection(filter bool) registry.ContinuationFunc {
	name := "map"
	if filter {
		name = "filter"
	}
	return func(ctx context.Context, args []any, k registry.Callback) {
		x, ok := fromContext(ctx)
		if !ok {
			k(fmt.Errorf("$.%s called outside a pipeline", name), nil)
			return
		}
		if len(args) < 1 {
			k(fmt.Errorf("$.%s expects a list", name), nil)
			return
		}
		var items []any
		switch t := value.Normalize(args[0]).(type) {
		case nil:
		case []any:
			items = t
		default:
			k(fmt.Errorf("$.%s expects a list, got %T", name, args[0]), nil)
			return
		}
		body := ""
		if len(args) > 1 {
			body = strings.TrimSpace(value.Stringify(args[1]))
		}
		parsed, _ := value.ParseJSON(body)
		if m, isMap := parsed.(map[string]any); isMap && len(m) == 0 {
			body = ""
		}

		out := make([]any, 0, len(items))
		for i, item := range items {
			result := item
			if body != "" {
				vars := x.scope()
				vars[ItemVar] = item
				vars[IndexVar] = float64(i)
				var err error
				result, err = x.engine.run(ctx, body, x.chainDir(), []any{item, float64(i)}, vars)
				if err != nil {
					k(fmt.Errorf("$.%s element %d: %w", name, i, err), nil)
					return
				}
			}
			if !filter {
				out = append(out, result)
			} else if value.Truthy(result) {
				out = append(out, item)
			}
		}
		k(nil, out)
	}
}

// runChain runs the pipeline given as the first argument with the remaining
// arguments as its positional inputs, in a fresh store.
func runChain(ctx context.Context, args []any, k registry.Callback) {
	x, ok := fromContext(ctx)
	if !ok {
		k(errors.New("$.runChain called outside a pipeline"), nil)
		return
	}
	if len(args) < 1 || args[0] == nil {
		k(errors.New("$.runChain expects a pipeline"), nil)
		return
	}
	result, err := x.engine.run(ctx, args[0], x.chainDir(), args[1:], nil)
	k(err, result)
}

// chainDir is the directory relative pipeline paths are resolved against.
func (x *execution) chainDir() string {
	dir, _ := x.store.Get(store.ChainCwd)
	if s := strings.TrimSuffix(value.Stringify(dir), "/"); s != "" {
		return s
	}
	return x.engine.workdir
}
