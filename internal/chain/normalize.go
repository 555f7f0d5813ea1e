package chain

import (
	"fmt"
	"math"
	"strings"

	"github.com/vk/chainrun/internal/command"
	"github.com/vk/chainrun/internal/expr"
	"github.com/vk/chainrun/internal/value"
)

const defaultOut = "_ans"

// Canonicalize rewrites a raw description into canonical form. The root of
// the result also carries the root-only keys vars, verbose, params (the
// declared input names, always present) and result (the statement giving the
// final value).
func Canonicalize(description any) (map[string]any, error) {
	root, err := objectify(description, "root")
	if err != nil {
		return nil, err
	}
	rootKeys, err := extractRoot(root)
	if err != nil {
		return nil, err
	}

	node, err := canonicalNode(root, "root")
	if err != nil {
		return nil, err
	}
	assignIDs(node, 1)

	if _, declared := rootKeys[keyParams]; !declared {
		rootKeys[keyParams] = []any{}
	}
	if _, declared := rootKeys[keyResult]; !declared {
		rootKeys[keyResult] = defaultOut
		if out, isLeaf := node[keyOut].(string); isLeaf && out != "" {
			rootKeys[keyResult] = out
		}
	}
	for k, v := range rootKeys {
		node[k] = v
	}
	return node, nil
}

// extractRoot collects the root-only keys. The declared ins and out are
// recorded as params and result but stay on the step, where a leaf root
// still uses them.
func extractRoot(root map[string]any) (map[string]any, error) {
	keys := make(map[string]any)
	if vars, ok := root[keyVars]; ok {
		m, isMap := value.Normalize(vars).(map[string]any)
		if !isMap && vars != nil {
			return nil, errorf("root", "vars must be a mapping, got %T", vars)
		}
		if m != nil {
			keys[keyVars] = m
		}
	}
	if v, ok := root[keyVerbose]; ok {
		level, err := verbosity(v)
		if err != nil {
			return nil, &NormalizationError{Path: "root", Err: err}
		}
		if level != 0 {
			keys[keyVerbose] = level
		}
	}
	if p, ok := root[keyParams]; ok {
		keys[keyParams] = stringList(statementList(p))
	} else if ins, ok := root[keyIns]; ok {
		keys[keyParams] = stringList(statementList(ins))
	}
	if r, ok := root[keyResult].(string); ok && r != "" {
		keys[keyResult] = r
	} else if out, ok := root[keyOut]; ok {
		if s := strings.TrimSpace(value.Stringify(out)); s != "" {
			keys[keyResult] = s
		}
	}
	for _, k := range []string{keyVars, keyVerbose, keyParams, keyResult} {
		delete(root, k)
	}
	return keys, nil
}

func verbosity(v any) (int, error) {
	switch t := value.Normalize(v).(type) {
	case float64:
		if t != math.Trunc(t) || t < 0 {
			return 0, fmt.Errorf("verbose must be a non-negative integer, got %v", t)
		}
		return int(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("verbose must be a number, got %T", v)
}

// canonicalNode applies the rewrites to one step and recurses into its
// children. Splitting rewrites produce a new step that is canonicalized
// from the start.
func canonicalNode(raw any, path string) (map[string]any, error) {
	step, err := objectify(raw, path)
	if err != nil {
		return nil, err
	}
	if step, err = expandCollection(step, path); err != nil {
		return nil, err
	}
	step = applyDefaults(step)
	if split, ok := splitError(step); ok {
		return canonicalNode(split, path)
	}
	if split, ok, err := splitElse(step, path); err != nil {
		return nil, err
	} else if ok {
		return canonicalNode(split, path)
	}
	step = revealNested(step)
	if step, err = normalizeMode(step, path); err != nil {
		return nil, err
	}

	if _, isGroup := step[keyChains]; isGroup {
		children := step[keyChains].([]any)
		canonical := make([]any, len(children))
		for i, child := range children {
			c, err := canonicalNode(child, fmt.Sprintf("%s.chains[%d]", path, i))
			if err != nil {
				return nil, err
			}
			canonical[i] = c
		}
		return map[string]any{
			keyBranch: step[keyBranch],
			keyLoop:   step[keyLoop],
			keyMode:   step[keyMode],
			keyChains: canonical,
		}, nil
	}
	return resolveShorthand(step, path)
}

// objectify turns a bare string into a command step and a list into a
// series, then resolves key synonyms.
func objectify(raw any, path string) (map[string]any, error) {
	switch t := value.Normalize(raw).(type) {
	case string:
		return map[string]any{keyCommand: t}, nil
	case []any:
		return map[string]any{keySeries: t}, nil
	case map[string]any:
		return resolveSynonyms(t), nil
	case nil:
		return nil, errorf(path, "empty step")
	default:
		return nil, errorf(path, "unsupported step of type %T", raw)
	}
}

// controlKeys stay on the step produced by map/filter sugar.
var controlKeys = []string{keyBranch, keyLoop, keyElse, keyError, keyErrorMessage}

// expandCollection rewrites `{map: list, into: target, ...}` and its filter
// twin into a leaf calling the $.map or $.filter combinator. The remaining
// keys form the pipeline run for every element; it is passed as a literal
// JSON statement.
func expandCollection(step map[string]any, path string) (map[string]any, error) {
	_, isMap := step[keyMap]
	_, isFilter := step[keyFilter]
	if !isMap && !isFilter {
		return step, nil
	}
	if isMap && isFilter {
		return nil, errorf(path, "step cannot use both map and filter")
	}
	kind := keyMap
	if isFilter {
		kind = keyFilter
	}
	into, ok := step[keyInto]
	if !ok {
		return nil, errorf(path, "%s requires into", kind)
	}

	leaf := make(map[string]any)
	rest := make(map[string]any)
	for k, v := range step {
		rest[k] = v
	}
	for _, k := range controlKeys {
		if v, ok := step[k]; ok {
			leaf[k] = v
			delete(rest, k)
		}
	}
	delete(rest, kind)
	delete(rest, keyInto)

	body, err := value.Marshal(rest)
	if err != nil {
		return nil, errorf(path, "encode %s body: %v", kind, err)
	}
	leaf[keyCommand] = "[$." + kind + "]"
	leaf[keyIns] = []any{statement(step[kind]), expr.LiteralMarker + string(body)}
	leaf[keyOut] = value.Stringify(into)
	return leaf, nil
}

func applyDefaults(step map[string]any) map[string]any {
	out := copyStep(step)
	out[keyBranch] = condition(step, keyBranch, "true")
	out[keyLoop] = condition(step, keyLoop, "false")
	return out
}

func condition(step map[string]any, key, def string) string {
	v, ok := step[key]
	if !ok || v == nil {
		return def
	}
	if s := strings.TrimSpace(value.Stringify(v)); s != "" {
		return s
	}
	return def
}

// splitError rewrites a step carrying an error condition into a series
// that checks the condition, runs the step, and checks it again.
func splitError(step map[string]any) (map[string]any, bool) {
	raw, ok := step[keyError]
	if !ok {
		return nil, false
	}
	inner := copyStep(step)
	delete(inner, keyError)
	delete(inner, keyErrorMessage)

	cond := strings.TrimSpace(value.Stringify(raw))
	if cond == "" {
		return inner, true
	}
	message := expr.LiteralMarker + cond
	if m, ok := step[keyErrorMessage]; ok && m != nil {
		message = statement(m)
	}
	raise := func() map[string]any {
		return map[string]any{
			keyBranch:  cond,
			keyLoop:    "false",
			keyIns:     []any{message},
			keyOut:     defaultOut,
			keyCommand: "[$.raise]",
		}
	}
	return map[string]any{
		keyBranch: "true",
		keyLoop:   "false",
		keySeries: []any{raise(), inner, raise()},
	}, true
}

// splitElse rewrites a step carrying a non-empty else payload into a
// parallel pair: the step itself and the payload guarded by the negated
// branch.
func splitElse(step map[string]any, path string) (map[string]any, bool, error) {
	raw, ok := step[keyElse]
	if !ok {
		return nil, false, nil
	}
	inner := copyStep(step)
	delete(inner, keyElse)
	if isEmpty(raw) {
		return inner, true, nil
	}

	otherwise, err := objectify(raw, path+".else")
	if err != nil {
		return nil, false, err
	}
	negated := "!(" + inner[keyBranch].(string) + ")"
	if _, guarded := otherwise[keyBranch]; guarded {
		otherwise = map[string]any{keyBranch: negated, keySeries: []any{otherwise}}
	} else {
		otherwise[keyBranch] = negated
	}
	return map[string]any{
		keyBranch:   "true",
		keyLoop:     "false",
		keyParallel: []any{inner, otherwise},
	}, true, nil
}

// revealNested turns a step whose command is a list into a series.
func revealNested(step map[string]any) map[string]any {
	switch cmd := step[keyCommand].(type) {
	case []any:
		out := copyStep(step)
		delete(out, keyCommand)
		out[keySeries] = cmd
		return out
	case map[string]any:
		out := copyStep(step)
		delete(out, keyCommand)
		out[keySeries] = []any{cmd}
		return out
	}
	return step
}

// normalizeMode folds series and parallel into mode and chains. A step
// with ins or out but no command gets the empty command; a step with
// nothing to run becomes an empty series.
func normalizeMode(step map[string]any, path string) (map[string]any, error) {
	out := copyStep(step)
	series, hasSeries := out[keySeries]
	parallel, hasParallel := out[keyParallel]
	chains, hasChains := out[keyChains]
	delete(out, keySeries)
	delete(out, keyParallel)

	if hasSeries && hasParallel {
		return nil, errorf(path, "step cannot be both series and parallel")
	}
	mode := Series
	switch {
	case hasSeries:
		chains, hasChains = series, true
	case hasParallel:
		mode, chains, hasChains = Parallel, parallel, true
	case hasChains:
		if m, ok := out[keyMode]; ok && m != nil {
			mode = Mode(strings.ToLower(value.Stringify(m)))
			if mode != Series && mode != Parallel {
				return nil, errorf(path, "unknown mode %q", m)
			}
		}
	}

	if !hasChains {
		delete(out, keyMode)
		_, hasIns := out[keyIns]
		_, hasOut := out[keyOut]
		if _, isLeaf := out[keyCommand]; !isLeaf && (hasIns || hasOut) {
			out[keyCommand] = ""
		}
		if _, isLeaf := out[keyCommand]; isLeaf {
			return out, nil
		}
		chains = []any{}
	}
	if _, isLeaf := out[keyCommand]; isLeaf {
		return nil, errorf(path, "step cannot have both a command and child steps")
	}
	list, ok := chains.([]any)
	if !ok {
		list = []any{chains}
	}
	out[keyMode] = string(mode)
	out[keyChains] = list
	return out, nil
}

func assignIDs(node map[string]any, next int) int {
	node[keyID] = next
	next++
	if children, ok := node[keyChains].([]any); ok {
		for _, child := range children {
			next = assignIDs(child.(map[string]any), next)
		}
	}
	return next
}

// statement renders a description value as a statement. Strings are kept
// and everything else becomes JSON, which evaluates back to the value.
func statement(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := value.Marshal(v)
	if err != nil {
		return value.Stringify(v)
	}
	return string(b)
}

// statementList reads declared ins: a comma separated string, optionally
// in parentheses, or a list.
func statementList(v any) []string {
	switch t := value.Normalize(v).(type) {
	case nil:
		return []string{}
	case []any:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = statement(e)
		}
		return out
	case string:
		return splitIns(t)
	default:
		return []string{statement(t)}
	}
}

func splitIns(s string) []string {
	s = unwrapParens(s)
	parts := expr.SplitTopLevel(s, ',')
	if parts == nil {
		return []string{}
	}
	return parts
}

func unwrapParens(s string) string {
	s = strings.TrimSpace(s)
	if expr.Enclosed(s, '(', ')') {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func copyStep(step map[string]any) map[string]any {
	out := make(map[string]any, len(step)+2)
	for k, v := range step {
		out[k] = v
	}
	return out
}

// commandText collapses a leaf's command into its canonical text.
func commandText(raw string) string {
	_, _, canonical := command.Detect(raw)
	return canonical
}
