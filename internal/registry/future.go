package registry

import (
	"context"
	"sync"
)

// Future is a value that settles once with either a result or an error.
type Future struct {
	once sync.Once
	done chan struct{}
	val  any
	err  error
}

// NewFuture returns an unsettled Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Go runs fn on a new goroutine and returns a Future for its outcome.
func Go(fn func() (any, error)) *Future {
	f := NewFuture()
	go func() {
		v, err := fn()
		f.settle(v, err)
	}()
	return f
}

// Resolve settles the Future with v. Later calls are ignored.
func (f *Future) Resolve(v any) { f.settle(v, nil) }

// Reject settles the Future with err. Later calls are ignored.
func (f *Future) Reject(err error) { f.settle(nil, err) }

func (f *Future) settle(v any, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the Future has settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the Future settles or ctx is done.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
