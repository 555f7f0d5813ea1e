package expr

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/chainrun/internal/ctxlog"
	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/internal/store"
	"github.com/vk/chainrun/internal/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// LiteralMarker prefixes a statement that must be taken verbatim.
const LiteralMarker = "`"

var (
	identPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	dottedPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*|\[[^\[\]]+\])+$`)
)

// IsName reports whether s is a plain variable name.
func IsName(s string) bool { return identPattern.MatchString(s) }

// Sandbox holds what evaluators share across invocations: the function
// registry and the caches of parsed expressions and lambdas.
type Sandbox struct {
	reg     *registry.Registry
	exprs   sync.Map
	lambdas sync.Map
}

// NewSandbox creates a Sandbox exposing the direct functions of reg.
func NewSandbox(reg *registry.Registry) *Sandbox {
	return &Sandbox{reg: reg}
}

// Evaluator resolves statements against one store.
type Evaluator struct {
	sb    *Sandbox
	store *store.Store
	funcs map[string]function.Function
}

// Evaluator binds the sandbox to a store. Registry functions called from
// expressions receive ctx.
func (sb *Sandbox) Evaluator(ctx context.Context, st *store.Store) *Evaluator {
	return &Evaluator{sb: sb, store: st, funcs: functionTable(ctx, sb.reg)}
}

// Store returns the store the evaluator reads from.
func (e *Evaluator) Store() *store.Store { return e.store }

// Evaluate resolves stmt to a value. It never fails: a statement that cannot
// be resolved is returned as it was given. Maps and slices are evaluated
// member by member.
func (e *Evaluator) Evaluate(ctx context.Context, stmt any) any {
	switch t := stmt.(type) {
	case []any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = e.Evaluate(ctx, m)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, m := range t {
			out[k] = e.Evaluate(ctx, m)
		}
		return out
	case string:
		return e.evaluateString(ctx, t)
	default:
		return stmt
	}
}

func (e *Evaluator) evaluateString(ctx context.Context, stmt string) any {
	s := strings.TrimSpace(stmt)
	if s == "" {
		return stmt
	}
	if strings.HasPrefix(s, LiteralMarker) {
		return strings.TrimPrefix(s, LiteralMarker)
	}
	if v, ok := e.store.Get(s); ok {
		return v
	}
	if v, ok := value.ParseJSON(s); ok {
		return v
	}
	if identPattern.MatchString(s) {
		return s
	}
	if Enclosed(s, '[', ']') {
		parts := SplitTopLevel(s[1:len(s)-1], ',')
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = e.evaluateString(ctx, p)
		}
		return out
	}
	if dottedPattern.MatchString(s) {
		if v, ok := e.store.Lookup(s); ok {
			return v
		}
	}
	v, err := e.Expression(ctx, s)
	if err != nil {
		ctxlog.FromContext(ctx).Debug("Statement kept as literal.", "statement", s, "error", err)
		return stmt
	}
	return v
}

// Condition evaluates a branch or loop statement. Variables are tested
// directly; anything else is evaluated as an expression. A statement that
// fails to evaluate is false.
func (e *Evaluator) Condition(ctx context.Context, stmt string) bool {
	s := strings.TrimSpace(stmt)
	if s == "" {
		return false
	}
	if v, ok := e.store.Get(s); ok {
		return value.Truthy(v)
	}
	v, err := e.Expression(ctx, s)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Condition could not be evaluated, treating as false.", "condition", s, "error", err)
		return false
	}
	return value.Truthy(v)
}

// Expression evaluates src in the sandbox and returns the error instead of
// falling back.
func (e *Evaluator) Expression(ctx context.Context, src string) (any, error) {
	ex, err := e.sb.parse(src)
	if err != nil {
		return nil, err
	}
	return e.eval(ctx, ex, nil)
}

// Assign writes v to the variable or path name. Computed indexes such as
// `rows[i + 1]` are evaluated as statements.
func (e *Evaluator) Assign(ctx context.Context, name string, v any) error {
	return e.store.SetVariable(name, v, func(stmt string) any {
		return e.Evaluate(ctx, stmt)
	})
}

func (sb *Sandbox) parse(src string) (hclsyntax.Expression, error) {
	if cached, ok := sb.exprs.Load(src); ok {
		return cached.(hclsyntax.Expression), nil
	}
	ex, diags := hclsyntax.ParseExpression([]byte(Rewrite(src)), "statement", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %q: %w", src, diags)
	}
	sb.exprs.Store(src, ex)
	return ex, nil
}

func (e *Evaluator) eval(ctx context.Context, ex hclsyntax.Expression, bound map[string]any) (any, error) {
	vars := make(map[string]cty.Value)
	for _, traversal := range ex.Variables() {
		name := traversal.RootName()
		if _, done := vars[name]; done {
			continue
		}
		var raw any
		var ok bool
		if bv, isBound := bound[name]; isBound {
			raw, ok = bv, true
		} else {
			raw, ok = e.store.Get(name)
		}
		if !ok || name == store.Functions {
			continue
		}
		cv, err := value.ToCty(raw)
		if err != nil {
			ctxlog.FromContext(ctx).Debug("Variable hidden from expression.", "name", name, "error", err)
			continue
		}
		vars[name] = cv
	}

	hctx := &hcl.EvalContext{Variables: vars, Functions: e.funcs}
	out, diags := ex.Value(hctx)
	if diags.HasErrors() {
		return nil, diags
	}
	if !out.IsWhollyKnown() {
		return nil, fmt.Errorf("expression result is not known")
	}
	return value.FromCty(out)
}

// Check reports whether src parses as an expression.
func (sb *Sandbox) Check(src string) error {
	_, err := sb.parse(src)
	return err
}
