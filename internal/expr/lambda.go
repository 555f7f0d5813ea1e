package expr

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsyntax"
)

var lambdaPattern = regexp.MustCompile(`^\s*(?:\(([^()]*)\)|([A-Za-z_][A-Za-z0-9_]*))\s*=>\s*([\s\S]+)$`)

// Lambda is a compiled `params => body` function.
type Lambda struct {
	Params []string
	Body   string
	expr   hclsyntax.Expression
}

// IsLambda reports whether src has the `params => body` shape.
func IsLambda(src string) bool {
	return lambdaPattern.MatchString(src)
}

// ParseLambda splits src into parameter names and body text. A body of the
// form `{ return expr }` is reduced to expr.
func ParseLambda(src string) (params []string, body string, ok bool) {
	m := lambdaPattern.FindStringSubmatch(src)
	if m == nil {
		return nil, "", false
	}
	if m[2] != "" {
		params = []string{m[2]}
	} else {
		for _, p := range strings.Split(m[1], ",") {
			if p = strings.TrimSpace(p); p != "" {
				params = append(params, p)
			}
		}
	}
	body = strings.TrimSpace(m[3])
	if Enclosed(body, '{', '}') {
		inner := strings.TrimSpace(body[1 : len(body)-1])
		if strings.HasPrefix(inner, "return ") || strings.HasPrefix(inner, "return(") {
			body = strings.TrimSpace(strings.TrimPrefix(inner, "return"))
		}
	}
	body = strings.TrimSpace(strings.TrimSuffix(body, ";"))
	return params, body, body != ""
}

// Lambda compiles src, reusing an earlier compilation of the same text.
func (sb *Sandbox) Lambda(src string) (*Lambda, error) {
	if cached, ok := sb.lambdas.Load(src); ok {
		return cached.(*Lambda), nil
	}
	params, body, ok := ParseLambda(src)
	if !ok {
		return nil, fmt.Errorf("not a lambda: %q", src)
	}
	for _, p := range params {
		if !identPattern.MatchString(p) {
			return nil, fmt.Errorf("invalid lambda parameter %q in %q", p, src)
		}
	}
	ex, err := sb.parse(body)
	if err != nil {
		return nil, err
	}
	l := &Lambda{Params: params, Body: body, expr: ex}
	actual, _ := sb.lambdas.LoadOrStore(src, l)
	return actual.(*Lambda), nil
}

// Call evaluates the lambda body with its parameters bound positionally to
// args on top of the store variables. Missing arguments are null.
func (e *Evaluator) Call(ctx context.Context, l *Lambda, args []any) (any, error) {
	bound := make(map[string]any, len(l.Params))
	for i, p := range l.Params {
		if i < len(args) {
			bound[p] = args[i]
		} else {
			bound[p] = nil
		}
	}
	return e.eval(ctx, l.expr, bound)
}
