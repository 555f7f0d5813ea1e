package command

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/chainrun/internal/expr"
	"github.com/vk/chainrun/internal/process"
	"github.com/vk/chainrun/internal/registry"
)

// Invocation is everything a compiled command needs for one call.
type Invocation struct {
	Inputs []any
	Eval   *expr.Evaluator
	Dir    string
}

// Compiled is a leaf command ready to be invoked.
type Compiled struct {
	Kind Kind
	Text string

	body   string
	fn     *registry.Function
	lambda *expr.Lambda
	runner process.Runner
}

// Compiler turns command text into Compiled units. Compilations are cached
// by text, so every leaf with the same command shares one unit.
type Compiler struct {
	sb     *expr.Sandbox
	reg    *registry.Registry
	runner process.Runner
	cache  sync.Map
}

// NewCompiler creates a Compiler. runner serves shell commands.
func NewCompiler(sb *expr.Sandbox, reg *registry.Registry, runner process.Runner) *Compiler {
	return &Compiler{sb: sb, reg: reg, runner: runner}
}

// Compile compiles text. It fails when a wrapped body references an unknown
// `$` function, or is neither a lambda nor a parseable expression.
func (c *Compiler) Compile(text string) (*Compiled, error) {
	if cached, ok := c.cache.Load(text); ok {
		return cached.(*Compiled), nil
	}
	kind, body, canonical := Detect(text)
	out := &Compiled{Kind: kind, Text: canonical, body: body, runner: c.runner}

	switch {
	case kind == Shell:
		if c.runner == nil {
			return nil, fmt.Errorf("shell command %q: no process runner configured", canonical)
		}
	case body == "":
		if kind != Direct {
			return nil, fmt.Errorf("command %q has an empty body", canonical)
		}
	default:
		if name, ok := FunctionName(body); ok {
			fn, found := c.reg.Lookup(name)
			if !found {
				return nil, fmt.Errorf("command %q: unknown function $.%s", canonical, name)
			}
			out.fn = fn
			break
		}
		if expr.IsLambda(body) {
			l, err := c.sb.Lambda(body)
			if err != nil {
				return nil, fmt.Errorf("command %q: %w", canonical, err)
			}
			out.lambda = l
			break
		}
		if err := c.sb.Check(body); err != nil {
			return nil, fmt.Errorf("command %q: %w", canonical, err)
		}
	}

	actual, _ := c.cache.LoadOrStore(text, out)
	return actual.(*Compiled), nil
}

// Invoke runs the command with inv and blocks until it has a result.
// A panic inside a function or expression is returned as an error.
func (c *Compiled) Invoke(ctx context.Context, inv Invocation) (result any, err error) {
	if c.Kind == Shell {
		return c.runShell(ctx, inv)
	}
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("command %q panicked: %v", c.Text, r)
		}
	}()

	if c.fn != nil {
		return Call(ctx, c.fn, inv.Inputs)
	}
	if c.body == "" {
		return Pack(inv.Inputs), nil
	}

	evaluate := func() (any, error) {
		if c.lambda != nil {
			return inv.Eval.Call(ctx, c.lambda, inv.Inputs)
		}
		return inv.Eval.Expression(ctx, c.body)
	}
	switch c.Kind {
	case Continuation:
		return awaitContinuation(ctx, func(_ context.Context, _ []any, k registry.Callback) {
			v, err := evaluate()
			k(err, v)
		}, inv.Inputs)
	case Deferred:
		return registry.Go(evaluate).Await(ctx)
	default:
		return evaluate()
	}
}

// Call invokes a registry function according to its own convention and
// waits for the result.
func Call(ctx context.Context, fn *registry.Function, args []any) (any, error) {
	switch fn.Kind {
	case registry.Direct:
		return fn.Direct(ctx, args)
	case registry.Continuation:
		return awaitContinuation(ctx, fn.Continuation, args)
	case registry.Deferred:
		future := fn.Deferred(ctx, args)
		if future == nil {
			return nil, fmt.Errorf("$.%s returned no future", fn.Name)
		}
		return future.Await(ctx)
	}
	return nil, fmt.Errorf("$.%s has unknown kind %s", fn.Name, fn.Kind)
}

type outcome struct {
	val any
	err error
}

// awaitContinuation calls fn with a callback guarded to fire once and waits
// for it. Calls after the first, or after ctx is done, are dropped.
func awaitContinuation(ctx context.Context, fn registry.ContinuationFunc, args []any) (any, error) {
	ch := make(chan outcome, 1)
	var once sync.Once
	fn(ctx, args, func(err error, v any) {
		once.Do(func() { ch <- outcome{v, err} })
	})
	select {
	case o := <-ch:
		return o.val, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pack returns the single input unchanged, or all inputs as a list.
func Pack(inputs []any) any {
	if len(inputs) == 1 {
		return inputs[0]
	}
	out := make([]any, len(inputs))
	copy(out, inputs)
	return out
}
