package chain

import (
	"strings"

	"github.com/vk/chainrun/internal/expr"
	"github.com/vk/chainrun/internal/value"
)

const (
	longArrow  = "-->"
	shortArrow = "->"
)

// arrowParts is what the shorthand grammar found in a command string.
// Parts the shorthand leaves out are nil or empty.
type arrowParts struct {
	ins     []string
	command string
	out     string
}

// parseArrows applies the shorthand grammar, first match wins:
//
//	INS --> OUT            no command
//	INS -> COMMAND -> OUT
//	(INS) -> COMMAND       when the left part is parenthesized
//	COMMAND -> OUT
//	COMMAND
func parseArrows(s, path string) (arrowParts, error) {
	if long := splitArrow(s, longArrow); len(long) > 1 {
		if len(long) > 2 {
			return arrowParts{}, errorf(path, "unrecognized shorthand %q: more than one %s", s, longArrow)
		}
		return arrowParts{ins: insPart(long[0]), out: unwrapParens(long[1])}, nil
	}
	short := splitArrow(s, shortArrow)
	switch len(short) {
	case 1:
		return arrowParts{command: strings.TrimSpace(s)}, nil
	case 2:
		left := strings.TrimSpace(short[0])
		if expr.Enclosed(left, '(', ')') {
			return arrowParts{ins: insPart(left), command: short[1]}, nil
		}
		return arrowParts{command: left, out: unwrapParens(short[1])}, nil
	case 3:
		return arrowParts{ins: insPart(short[0]), command: short[1], out: unwrapParens(short[2])}, nil
	default:
		return arrowParts{}, errorf(path, "unrecognized shorthand %q: too many %s", s, shortArrow)
	}
}

// insPart returns nil for a blank part so that declared ins fill the gap.
func insPart(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return splitIns(s)
}

// splitArrow splits s on arrow where it appears outside quotes and outside
// parentheses, brackets and braces.
func splitArrow(s, arrow string) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case depth == 0 && strings.HasPrefix(s[i:], arrow):
			if arrow == shortArrow && i > 0 && s[i-1] == '-' {
				continue
			}
			parts = append(parts, strings.TrimSpace(s[start:i]))
			i += len(arrow) - 1
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// resolveShorthand produces the canonical leaf. Declared ins and out win;
// arrow parts fill only the keys the step does not declare.
func resolveShorthand(step map[string]any, path string) (map[string]any, error) {
	raw := value.Stringify(step[keyCommand])
	parts, err := parseArrows(raw, path)
	if err != nil {
		return nil, err
	}

	ins := parts.ins
	if declared, ok := step[keyIns]; ok {
		ins = statementList(declared)
	}
	if ins == nil {
		ins = []string{}
	}
	out := parts.out
	if declared, ok := step[keyOut]; ok {
		out = strings.TrimSpace(value.Stringify(declared))
	}
	if out == "" {
		out = defaultOut
	}

	return map[string]any{
		keyBranch:  step[keyBranch],
		keyLoop:    step[keyLoop],
		keyIns:     stringList(ins),
		keyOut:     out,
		keyCommand: commandText(parts.command),
	}, nil
}
