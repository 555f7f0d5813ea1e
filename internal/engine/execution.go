package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vk/chainrun/internal/chain"
	"github.com/vk/chainrun/internal/command"
	"github.com/vk/chainrun/internal/ctxlog"
	"github.com/vk/chainrun/internal/expr"
	"github.com/vk/chainrun/internal/store"
	"github.com/vk/chainrun/internal/value"
	"golang.org/x/sync/errgroup"
)

// State is the execution state of a node.
type State int

const (
	Init State = iota
	BranchCheck
	Skipped
	Running
	LoopCheck
	Repeating
	Done
	Errored
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case BranchCheck:
		return "branch-check"
	case Skipped:
		return "skipped"
	case Running:
		return "running"
	case LoopCheck:
		return "loop-check"
	case Repeating:
		return "repeating"
	case Done:
		return "done"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type executionKey struct{}

// execution is one invocation of a tree. It owns the store and the halt
// signal; mu serializes result commits against the halt.
type execution struct {
	engine *Engine
	root   *chain.Chain
	store  *store.Store
	eval   *expr.Evaluator

	mu       sync.Mutex
	failure  error
	halted   atomic.Bool
	halt     chan struct{}
	haltOnce sync.Once
}

func fromContext(ctx context.Context) (*execution, bool) {
	x, ok := ctx.Value(executionKey{}).(*execution)
	return x, ok
}

// newExecution seeds the store: reserved entries, the root's vars, the
// caller's presets, the positional inputs bound to the declared params, the
// result variable and finally the declared verbosity. A param without a
// positional value keeps an existing preset. The returned context carries the
// execution for built-in functions.
func (e *Engine) newExecution(ctx context.Context, root *chain.Chain, src source, ins []any, vars map[string]any) (*execution, context.Context, error) {
	initial := store.Reserved(e.workdir)
	initial[store.Verbose] = float64(e.verbose)
	initial[store.Description] = src.label
	if src.dir != "" {
		initial[store.ChainCwd] = withSlash(src.dir)
	}
	initial = value.Merge(initial, root.Vars)
	if presets, ok := value.Normalize(vars).(map[string]any); ok {
		initial = value.Merge(initial, presets)
	}

	x := &execution{
		engine: e,
		root:   root,
		store:  store.New(initial),
		halt:   make(chan struct{}),
	}
	ctx = context.WithValue(ctx, executionKey{}, x)
	x.eval = e.sandbox.Evaluator(ctx, x.store)

	for i, name := range root.Params {
		var v any
		if i < len(ins) {
			v = value.Normalize(ins[i])
		} else if x.store.Has(name) {
			continue
		}
		if err := x.eval.Assign(ctx, name, v); err != nil {
			return nil, nil, fmt.Errorf("failed to bind input %d to '%s': %w", i, name, err)
		}
	}
	// An unassigned result reads as nil, not as its own name.
	if expr.IsName(root.Result) && !x.store.Has(root.Result) {
		x.store.Set(root.Result, nil)
	}
	if root.Verbose != 0 {
		x.store.Set(store.Verbose, float64(root.Verbose))
	}
	return x, ctx, nil
}

// run walks the tree and waits until it completes or halts.
func (x *execution) run(ctx context.Context) (any, error) {
	logger := ctxlog.FromContext(ctx)
	if x.level() >= 1 {
		logger.Info("Pipeline normalized.", "chain", x.root.Describe())
		logger.Info("Initial state.", "vars", x.store.Snapshot())
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		x.runNode(ctx, x.root)
	}()

	select {
	case <-finished:
	case <-x.halt:
		logger.Debug("Pipeline halted before all work settled.")
	case <-ctx.Done():
		x.halted.Store(true)
		return nil, ctx.Err()
	}

	result := x.eval.Evaluate(ctx, x.root.Result)
	if err := x.err(); err != nil {
		return result, err
	}
	return result, nil
}

func (x *execution) err() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.failure != nil {
		return x.failure
	}
	if x.store.HasError() {
		return fmt.Errorf("%w: %s", ErrFlagged, x.store.ErrorMessage())
	}
	return nil
}

// stopped reports whether no new work may start.
func (x *execution) stopped(ctx context.Context) bool {
	return x.halted.Load() || ctx.Err() != nil || x.store.HasError()
}

func (x *execution) runNode(ctx context.Context, c *chain.Chain) {
	x.trace(ctx, c, Init)
	if x.stopped(ctx) {
		x.trace(ctx, c, Errored)
		return
	}
	x.trace(ctx, c, BranchCheck)
	if !x.eval.Condition(ctx, c.Branch) {
		x.trace(ctx, c, Skipped)
		return
	}
	for repeat := false; ; repeat = true {
		if repeat {
			x.trace(ctx, c, Repeating)
		}
		x.trace(ctx, c, Running)
		if c.IsLeaf() {
			x.runLeaf(ctx, c)
		} else {
			x.runGroup(ctx, c)
		}
		if x.stopped(ctx) {
			x.trace(ctx, c, Errored)
			return
		}
		x.trace(ctx, c, LoopCheck)
		if !x.eval.Condition(ctx, c.Loop) {
			x.trace(ctx, c, Done)
			return
		}
	}
}

func (x *execution) runGroup(ctx context.Context, c *chain.Chain) {
	if c.Mode == chain.Parallel {
		var g errgroup.Group
		for _, child := range c.Chains {
			g.Go(func() error {
				x.runNode(ctx, child)
				return nil
			})
		}
		_ = g.Wait()
		return
	}
	for _, child := range c.Chains {
		if x.stopped(ctx) {
			return
		}
		x.runNode(ctx, child)
	}
}

func (x *execution) runLeaf(ctx context.Context, c *chain.Chain) {
	inputs := make([]any, len(c.Ins))
	for i, stmt := range c.Ins {
		inputs[i] = x.eval.Evaluate(ctx, stmt)
	}
	if x.level() >= 2 {
		ctxlog.FromContext(ctx).Info("Invoking command.", "chain", c.ID, "command", c.Command.Text, "kind", c.Command.Kind.String(), "ins", inputs)
	}
	result, err := c.Command.Invoke(ctx, command.Invocation{
		Inputs: inputs,
		Eval:   x.eval,
		Dir:    x.chainDir(),
	})
	x.commit(ctx, c, result, err)
}

// commit applies a leaf outcome unless the execution has already halted.
func (x *execution) commit(ctx context.Context, c *chain.Chain, result any, err error) {
	logger := ctxlog.FromContext(ctx)
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.halted.Load() || x.store.HasError() {
		logger.Debug("Discarding result that arrived after the pipeline halted.", "chain", c.ID)
		return
	}
	if err != nil {
		x.failLocked(ctx, c, err)
		return
	}
	if err := x.eval.Assign(ctx, c.Out, result); err != nil {
		x.failLocked(ctx, c, err)
		return
	}
	if x.level() >= 3 {
		logger.Info("Variable assigned.", "chain", c.ID, "out", c.Out, "vars", x.store.Snapshot())
	}
}

// failLocked records the error triple and completes the invocation.
func (x *execution) failLocked(ctx context.Context, c *chain.Chain, err error) {
	ctxlog.FromContext(ctx).Error("Chain failed.", "chain", c.ID, "command", c.Command.Text, "error", err)
	x.store.SetError(err.Error(), map[string]any{
		"chain":   float64(c.ID),
		"command": c.Command.Text,
		"message": err.Error(),
	})
	x.failure = &LeafError{ChainID: c.ID, Command: c.Command.Text, Err: err}
	x.halted.Store(true)
	x.haltOnce.Do(func() { close(x.halt) })
}

func (x *execution) trace(ctx context.Context, c *chain.Chain, s State) {
	if x.level() >= 2 {
		ctxlog.FromContext(ctx).Info("Chain state changed.", "chain", c.ID, "state", s.String())
	}
}

// level reads `_verbose`, which a pipeline may change while it runs.
func (x *execution) level() int {
	v, _ := x.store.Get(store.Verbose)
	if f, ok := value.Normalize(v).(float64); ok {
		return int(f)
	}
	return 0
}

// scope returns a copy of the store without the error triple, used to seed
// pipelines started from inside this one.
func (x *execution) scope() map[string]any {
	vars := x.store.Snapshot()
	delete(vars, store.Error)
	delete(vars, store.ErrorMessage)
	delete(vars, store.ErrorObject)
	return vars
}

func withSlash(dir string) string {
	if strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}
