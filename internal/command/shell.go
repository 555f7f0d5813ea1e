package command

import (
	"context"
	"errors"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/vk/chainrun/internal/process"
	"github.com/vk/chainrun/internal/value"
)

// ShellLine appends each input to template as one quoted shell word. Lists
// and maps are passed as JSON text.
func ShellLine(template string, inputs []any) string {
	if len(inputs) == 0 {
		return template
	}
	words := make([]string, len(inputs))
	for i, in := range inputs {
		words[i] = value.Stringify(in)
	}
	return template + " " + shellquote.Join(words...)
}

func (c *Compiled) runShell(ctx context.Context, inv Invocation) (any, error) {
	line := ShellLine(c.body, inv.Inputs)
	stdout, stderr, err := c.runner.Run(ctx, line, inv.Dir)
	if err != nil {
		var perr *process.Error
		if !errors.As(err, &perr) {
			err = &process.Error{CommandLine: line, Stderr: stderr, Err: err}
		}
		return nil, err
	}
	return strings.TrimSpace(stdout), nil
}
