package engine

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/chainrun/internal/chain"
	"github.com/vk/chainrun/internal/command"
	"github.com/vk/chainrun/internal/ctxlog"
	"github.com/vk/chainrun/internal/expr"
	"github.com/vk/chainrun/internal/process"
	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/internal/value"
)

// Engine executes pipelines. It is safe for concurrent use; every call gets
// its own Variable Store.
type Engine struct {
	reg        *registry.Registry
	sandbox    *expr.Sandbox
	normalizer *chain.Normalizer
	memo       sync.Map

	workdir string
	verbose int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkdir sets the directory used for `_init_cwd`, as the default
// `_chain_cwd`, and to resolve relative description file paths.
func WithWorkdir(dir string) Option {
	return func(e *Engine) { e.workdir = dir }
}

// WithVerbose sets the `_verbose` level of pipelines that do not declare one.
func WithVerbose(level int) Option {
	return func(e *Engine) { e.verbose = level }
}

// New creates an Engine over reg and registers the built-in functions the
// normalizer relies on. runner serves shell leaves; without one, shell
// commands fail to compile.
func New(reg *registry.Registry, runner process.Runner, opts ...Option) *Engine {
	e := &Engine{reg: reg}
	for _, opt := range opts {
		opt(e)
	}
	if e.workdir == "" {
		if wd, err := os.Getwd(); err == nil {
			e.workdir = wd
		}
	}
	registerBuiltins(reg)

	e.sandbox = expr.NewSandbox(reg)
	e.normalizer = chain.NewNormalizer(command.NewCompiler(e.sandbox, reg, runner))
	return e
}

// Normalize resolves and compiles description without running it.
func (e *Engine) Normalize(ctx context.Context, description any) (*chain.Chain, error) {
	root, _, err := e.resolve(ctx, description, e.workdir)
	return root, err
}

// Execute runs description with positional inputs ins and preset variables
// vars, and returns the normalized final value: nil becomes "", strings lose
// trailing newlines, and maps and lists are rendered as JSON. The value is
// returned even when the pipeline failed.
func (e *Engine) Execute(ctx context.Context, description any, ins []any, vars map[string]any) (any, error) {
	result, err := e.Run(ctx, description, ins, vars)
	return Finalize(result), err
}

// Run is Execute without the final normalization, for callers that keep
// working with structured values, such as pipelines calling pipelines.
func (e *Engine) Run(ctx context.Context, description any, ins []any, vars map[string]any) (any, error) {
	return e.run(ctx, description, e.workdir, ins, vars)
}

func (e *Engine) run(ctx context.Context, description any, baseDir string, ins []any, vars map[string]any) (any, error) {
	ctx = ctxlog.With(ctx, "run", uuid.NewString())
	logger := ctxlog.FromContext(ctx)

	root, src, err := e.resolve(ctx, description, baseDir)
	if err != nil {
		logger.Error("Pipeline could not be normalized.", "error", err)
		return nil, err
	}
	x, ctx, err := e.newExecution(ctx, root, src, ins, vars)
	if err != nil {
		return nil, err
	}
	logger.Debug("Pipeline started.", "description", src.label)
	result, err := x.run(ctx)
	if err != nil {
		logger.Debug("Pipeline failed.", "error", err)
	} else {
		logger.Debug("Pipeline finished.")
	}
	return result, err
}

// Finalize normalizes a final pipeline value for callers expecting text.
func Finalize(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimRight(t, "\r\n")
	case []any, map[string]any:
		return value.Stringify(t)
	}
	return v
}
