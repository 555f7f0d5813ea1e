// Package core provides the general purpose `$` functions: packing values,
// printing, prompting, and string and collection helpers.
package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/vk/chainrun/internal/command"
	"github.com/vk/chainrun/internal/ctxlog"
	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/internal/value"
)

// Module implements the registry.Module interface for this package.
// Nil streams default to the process's standard streams.
type Module struct {
	Out    io.Writer
	In     io.Reader
	Prompt io.Writer

	once   sync.Once
	reader *bufio.Reader
	mu     sync.Mutex
}

// Register registers the functions with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterDirect("pack", pack)
	r.RegisterDirect("concat", concat)
	r.RegisterDirect("join", join)
	r.RegisterDirect("split", split)
	r.RegisterDirect("push", push)
	r.RegisterDirect("merge", merge)
	r.RegisterContinuation("print", m.print)
	r.RegisterContinuation("prompt", m.prompt)
}

func pack(_ context.Context, args []any) (any, error) {
	return command.Pack(args), nil
}

// concat joins the text of every argument.
func concat(_ context.Context, args []any) (any, error) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(value.Stringify(a))
	}
	return b.String(), nil
}

// join(list, delimiter)
func join(_ context.Context, args []any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	list, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("join expects a list, got %T", args[0])
	}
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = value.Stringify(v)
	}
	return strings.Join(parts, delimiter(args)), nil
}

// split(text, delimiter)
func split(_ context.Context, args []any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	parts := strings.Split(value.Stringify(args[0]), delimiter(args))
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func delimiter(args []any) string {
	if len(args) > 1 {
		return value.Stringify(args[1])
	}
	return ""
}

// push(list, value) returns list with value appended.
func push(_ context.Context, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("push expects a list and a value, got %d arguments", len(args))
	}
	var list []any
	switch t := args[0].(type) {
	case nil:
	case []any:
		list = t
	default:
		return nil, fmt.Errorf("push expects a list, got %T", args[0])
	}
	out := make([]any, len(list), len(list)+1)
	copy(out, list)
	return append(out, args[1]), nil
}

// merge overlays maps from left to right, nested maps included.
func merge(_ context.Context, args []any) (any, error) {
	out := map[string]any{}
	for i, a := range args {
		if a == nil {
			continue
		}
		m, ok := a.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("merge argument %d is %T, not a map", i, a)
		}
		out = value.Merge(out, m)
	}
	return out, nil
}

// print writes its argument on a line of its own and returns it.
func (m *Module) print(ctx context.Context, args []any, k registry.Callback) {
	var msg any = ""
	if len(args) > 0 {
		msg = args[0]
	}
	ctxlog.FromContext(ctx).Debug("Printing value.")

	m.mu.Lock()
	_, err := fmt.Fprintln(writerOr(m.Out, os.Stdout), value.Stringify(msg))
	m.mu.Unlock()
	if err != nil {
		k(fmt.Errorf("failed to print: %w", err), nil)
		return
	}
	k(nil, msg)
}

// prompt shows its argument and answers with one line of input.
func (m *Module) prompt(_ context.Context, args []any, k registry.Callback) {
	m.once.Do(func() {
		in := m.In
		if in == nil {
			in = os.Stdin
		}
		m.reader = bufio.NewReader(in)
	})
	text := ""
	if len(args) > 0 {
		text = value.Stringify(args[0])
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprint(writerOr(m.Prompt, os.Stderr), text+" ")
	line, err := m.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		k(fmt.Errorf("failed to read answer: %w", err), nil)
		return
	}
	k(nil, strings.TrimRight(line, "\r\n"))
}

func writerOr(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
