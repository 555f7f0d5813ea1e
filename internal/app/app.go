package app

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/vk/chainrun/internal/ctxlog"
	"github.com/vk/chainrun/internal/engine"
	"github.com/vk/chainrun/internal/process"
	"github.com/vk/chainrun/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	errW     io.Writer
	config   *Config
	logger   *slog.Logger
	registry *registry.Registry
	engine   *engine.Engine
}

// NewApp is the constructor for the main application. Results go to outW,
// logs and failure reports to errW. Without modules, the built-in set is
// loaded.
func NewApp(outW, errW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg, errW)
	logger.Debug("Logger configured successfully.")

	workdir := cfg.Workdir
	if workdir == "" {
		if wd, err := os.Getwd(); err == nil {
			workdir = wd
		}
	}

	runner := process.NewShellRunner(errW)
	if len(modules) == 0 {
		modules = coreModules(outW, runner, workdir)
	}
	reg := registry.New().Load(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules))

	eng := engine.New(reg, runner,
		engine.WithWorkdir(workdir),
		engine.WithVerbose(cfg.Verbose),
	)
	logger.Debug("Engine ready.", "workdir", workdir, "functions", len(reg.Names()))

	return &App{
		outW:     outW,
		errW:     errW,
		config:   cfg,
		logger:   logger,
		registry: reg,
		engine:   eng,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Engine returns the application's engine. This is primarily for testing.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
