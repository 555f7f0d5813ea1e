package registry

import (
	"context"
	"fmt"
)

// Kind is the calling convention of a registered function.
type Kind int

const (
	Direct Kind = iota
	Continuation
	Deferred
)

func (k Kind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Continuation:
		return "continuation"
	case Deferred:
		return "deferred"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Callback receives the outcome of a continuation function.
type Callback func(err error, result any)

// DirectFunc returns its result synchronously.
type DirectFunc func(ctx context.Context, args []any) (any, error)

// ContinuationFunc reports its result by calling k exactly once.
type ContinuationFunc func(ctx context.Context, args []any, k Callback)

// DeferredFunc returns a Future that settles with the result.
type DeferredFunc func(ctx context.Context, args []any) *Future

// Function is a registered pluggable function. Exactly one of the
// implementation fields is set, matching Kind.
type Function struct {
	Name         string
	Kind         Kind
	Direct       DirectFunc
	Continuation ContinuationFunc
	Deferred     DeferredFunc
}

// RegisterDirect registers a synchronous function.
func (r *Registry) RegisterDirect(name string, fn DirectFunc) {
	r.add(&Function{Name: name, Kind: Direct, Direct: fn})
}

// RegisterContinuation registers a callback-style function.
func (r *Registry) RegisterContinuation(name string, fn ContinuationFunc) {
	r.add(&Function{Name: name, Kind: Continuation, Continuation: fn})
}

// RegisterDeferred registers a function returning a Future.
func (r *Registry) RegisterDeferred(name string, fn DeferredFunc) {
	r.add(&Function{Name: name, Kind: Deferred, Deferred: fn})
}
