package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vk/chainrun/internal/expr"
)

// Kind is the calling convention of a compiled command.
type Kind int

const (
	Shell Kind = iota
	Direct
	Continuation
	Deferred
)

func (k Kind) String() string {
	switch k {
	case Shell:
		return "shell"
	case Direct:
		return "direct"
	case Continuation:
		return "continuation"
	case Deferred:
		return "deferred"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var functionRef = regexp.MustCompile(`^\$\.([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)$`)

// Collapse joins the lines of text into one and squeezes runs of whitespace.
func Collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Detect returns the calling convention of text and the body inside its
// wrapper. A lambda without a wrapper is reported as Direct and the returned
// text is wrapped in braces.
func Detect(text string) (kind Kind, body, canonical string) {
	t := Collapse(text)
	switch {
	case t == "":
		return Direct, "", ""
	case expr.Enclosed(t, '{', '}'):
		return Direct, strings.TrimSpace(t[1 : len(t)-1]), t
	case expr.Enclosed(t, '[', ']'):
		return Continuation, strings.TrimSpace(t[1 : len(t)-1]), t
	case strings.HasPrefix(t, "<") && strings.HasSuffix(t, ">") && len(t) > 1:
		return Deferred, strings.TrimSpace(t[1 : len(t)-1]), t
	case strings.Contains(t, "=>"):
		return Direct, t, "{" + t + "}"
	default:
		return Shell, t, t
	}
}

// FunctionName returns the registry name referenced by a `$.name` body.
func FunctionName(body string) (string, bool) {
	m := functionRef.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}
