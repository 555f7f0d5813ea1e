package expr

import (
	"strings"
)

// FuncNamespace prefixes the sandbox name of every registry function.
const FuncNamespace = "fn::"

// SandboxName returns the name under which the registry function name is
// callable inside an expression.
func SandboxName(name string) string {
	return FuncNamespace + strings.ReplaceAll(name, ".", "::")
}

// Rewrite converts a pipeline expression into HCL native syntax.
func Rewrite(src string) string {
	var b strings.Builder
	b.Grow(len(src) + 8)
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '"':
			end := closingQuote(src, i)
			b.WriteString(src[i:end])
			i = end
		case c == '\'':
			end := closingQuote(src, i)
			inner := src[i+1 : end]
			if end-1 > i && src[end-1] == '\'' {
				inner = src[i+1 : end-1]
			}
			b.WriteByte('"')
			b.WriteString(requote(inner))
			b.WriteByte('"')
			i = end
		case strings.HasPrefix(src[i:], "==="):
			b.WriteString("==")
			i += 3
		case strings.HasPrefix(src[i:], "!=="):
			b.WriteString("!=")
			i += 3
		case c == '$' && i+1 < len(src) && src[i+1] == '.':
			name, next := readDotted(src, i+2)
			if name != "" && nextNonSpace(src, next) == '(' {
				b.WriteString(SandboxName(name))
			} else {
				b.WriteString(src[i:next])
			}
			i = next
		case c == '-':
			if isExponent(src, i) {
				b.WriteByte('-')
			} else {
				b.WriteString(" - ")
			}
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// closingQuote returns the offset just past the string literal opened at
// start, honoring backslash escapes. An unterminated literal runs to the end.
func closingQuote(src string, start int) int {
	q := src[start]
	for j := start + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case q:
			return j + 1
		}
	}
	return len(src)
}

// requote turns the body of a single-quoted literal into the body of a
// double-quoted HCL literal.
func requote(inner string) string {
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case c == '\\' && i+1 < len(inner) && inner[i+1] == '\'':
			b.WriteByte('\'')
			i++
		case c == '\\' && i+1 < len(inner):
			b.WriteByte(c)
			b.WriteByte(inner[i+1])
			i++
		case c == '"':
			b.WriteString(`\"`)
		case (c == '$' || c == '%') && i+1 < len(inner) && inner[i+1] == '{':
			b.WriteByte(c)
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func readDotted(src string, i int) (string, int) {
	start := i
	for i < len(src) {
		c := src[i]
		if isIdentByte(c) || (c == '.' && i+1 < len(src) && isIdentByte(src[i+1])) {
			i++
			continue
		}
		break
	}
	return src[start:i], i
}

func nextNonSpace(src string, i int) byte {
	for ; i < len(src); i++ {
		if src[i] != ' ' && src[i] != '\t' {
			return src[i]
		}
	}
	return 0
}

// isExponent reports whether the minus at i belongs to a number such as 1e-5.
func isExponent(src string, i int) bool {
	if i < 2 || (src[i-1] != 'e' && src[i-1] != 'E') {
		return false
	}
	j := i - 1
	for j > 0 && isIdentByte(src[j-1]) {
		j--
	}
	return src[j] >= '0' && src[j] <= '9'
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// SplitTopLevel splits s on sep wherever sep is outside quotes and outside
// parentheses, brackets and braces. Parts are trimmed. An all-blank s
// yields no parts.
func SplitTopLevel(s string, sep byte) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
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
		case c == sep && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// Enclosed reports whether s starts with open and ends with the close that
// matches it, so that `(a)(b)` is not treated as one parenthesized group.
func Enclosed(s string, open, close byte) bool {
	if len(s) < 2 || s[0] != open || s[len(s)-1] != close {
		return false
	}
	depth := 0
	var quote byte
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
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}
