// Package chain turns pipeline descriptions into canonical Chain trees.
//
// A description is loosely structured: steps may be plain strings, keys may
// use any alias from the Synonyms table, and commands may use the arrow
// shorthand (`ins -> command -> out`, `ins --> out`). Normalization runs as
// a sequence of pure rewrites over map[string]any values, each returning a
// new map, and ends with a canonical description (see Canonicalize) that is
// then compiled into Chain nodes (see Normalizer.Build).
//
// Canonicalize is idempotent: canonicalizing a canonical description returns
// an equal description, and Chain.Describe renders a built tree back into
// that form.
package chain

import (
	"github.com/vk/chainrun/internal/command"
)

// Mode is the execution mode of a group.
type Mode string

const (
	Series   Mode = "series"
	Parallel Mode = "parallel"
)

// Chain is one node of a canonical pipeline tree. A node is a leaf when it
// has a Command and a group otherwise.
type Chain struct {
	ID      int
	Branch  string
	Loop    string
	Ins     []string
	Out     string
	Command *command.Compiled
	Mode    Mode
	Chains  []*Chain

	// Set on the root only.
	Vars    map[string]any
	Params  []string
	Result  string
	Verbose int
}

// IsLeaf reports whether c runs a command.
func (c *Chain) IsLeaf() bool { return c.Command != nil }

// Walk calls fn for c and every descendant in pre-order.
func (c *Chain) Walk(fn func(*Chain)) {
	fn(c)
	for _, child := range c.Chains {
		child.Walk(fn)
	}
}

// Describe renders c as a canonical description.
func (c *Chain) Describe() map[string]any {
	out := map[string]any{
		keyID:     c.ID,
		keyBranch: c.Branch,
		keyLoop:   c.Loop,
	}
	if c.IsLeaf() {
		out[keyIns] = stringList(c.Ins)
		out[keyOut] = c.Out
		out[keyCommand] = c.Command.Text
	} else {
		chains := make([]any, len(c.Chains))
		for i, child := range c.Chains {
			chains[i] = child.Describe()
		}
		out[keyMode] = string(c.Mode)
		out[keyChains] = chains
	}
	if c.Vars != nil {
		out[keyVars] = c.Vars
	}
	if c.Verbose != 0 {
		out[keyVerbose] = c.Verbose
	}
	if c.Params != nil {
		out[keyParams] = stringList(c.Params)
	}
	if c.Result != "" {
		out[keyResult] = c.Result
	}
	return out
}

func stringList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
