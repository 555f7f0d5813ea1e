// Package eisn provides `$.eisn`: execute a command if a source file is
// newer than its destination, the way a build step skips up-to-date output.
package eisn

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vk/chainrun/internal/ctxlog"
	"github.com/vk/chainrun/internal/process"
	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/internal/value"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	Runner process.Runner
	// Dir resolves relative paths and is the command's working directory.
	Dir string
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterDeferred("eisn", func(ctx context.Context, args []any) *registry.Future {
		return registry.Go(func() (any, error) { return m.eisn(ctx, args) })
	})
}

// eisn(srcFile, dstFile, command) runs command when dstFile is missing or
// older than srcFile, and answers with {isCommandExecuted}.
func (m *Module) eisn(ctx context.Context, args []any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("eisn expects a source file, a destination file and a command, got %d arguments", len(args))
	}
	if m.Runner == nil {
		return nil, errors.New("eisn: no process runner configured")
	}
	src, dst := m.path(args[0]), m.path(args[1])
	commandLine := value.Stringify(args[2])
	logger := ctxlog.FromContext(ctx).With("src", src, "dst", dst)

	srcInfo, err := os.Stat(src)
	if err != nil {
		return result(false), fmt.Errorf("eisn: %w", err)
	}
	dstInfo, err := os.Stat(dst)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("Destination missing, executing command.")
	case err != nil:
		return result(false), fmt.Errorf("eisn: %w", err)
	case !srcInfo.ModTime().After(dstInfo.ModTime()):
		logger.Debug("Destination is up to date, skipping command.")
		return result(false), nil
	default:
		logger.Debug("Source is newer, executing command.")
	}

	if _, _, err := m.Runner.Run(ctx, commandLine, m.Dir); err != nil {
		return nil, err
	}
	return result(true), nil
}

func (m *Module) path(v any) string {
	p := value.Stringify(v)
	if m.Dir != "" && !filepath.IsAbs(p) {
		return filepath.Join(m.Dir, p)
	}
	return p
}

func result(executed bool) map[string]any {
	return map[string]any{"isCommandExecuted": executed}
}
