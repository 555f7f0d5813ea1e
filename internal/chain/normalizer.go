package chain

import (
	"fmt"

	"github.com/vk/chainrun/internal/command"
	"github.com/vk/chainrun/internal/value"
)

// Normalizer builds compiled Chain trees from descriptions.
type Normalizer struct {
	compiler *command.Compiler
}

// NewNormalizer creates a Normalizer that compiles leaves with compiler.
func NewNormalizer(compiler *command.Compiler) *Normalizer {
	return &Normalizer{compiler: compiler}
}

// Normalize canonicalizes description and compiles the result.
func (n *Normalizer) Normalize(description any) (*Chain, error) {
	canonical, err := Canonicalize(description)
	if err != nil {
		return nil, err
	}
	return n.Build(canonical)
}

// Build compiles a canonical description into a Chain tree.
func (n *Normalizer) Build(canonical map[string]any) (*Chain, error) {
	root, err := n.build(canonical, "root")
	if err != nil {
		return nil, err
	}
	if vars, ok := canonical[keyVars].(map[string]any); ok {
		root.Vars = value.DeepCopy(vars).(map[string]any)
	}
	if v, ok := canonical[keyVerbose]; ok {
		if root.Verbose, err = verbosity(v); err != nil {
			return nil, &NormalizationError{Path: "root", Err: err}
		}
	}
	if p, ok := canonical[keyParams]; ok {
		root.Params = statementList(p)
	}
	root.Result = defaultOut
	if r, ok := canonical[keyResult].(string); ok && r != "" {
		root.Result = r
	}
	return root, nil
}

func (n *Normalizer) build(node map[string]any, path string) (*Chain, error) {
	c := &Chain{
		Branch: value.Stringify(node[keyBranch]),
		Loop:   value.Stringify(node[keyLoop]),
	}
	if id, ok := value.Normalize(node[keyID]).(float64); ok {
		c.ID = int(id)
	}

	if children, ok := node[keyChains].([]any); ok {
		c.Mode = Mode(value.Stringify(node[keyMode]))
		c.Chains = make([]*Chain, len(children))
		for i, child := range children {
			m, ok := child.(map[string]any)
			if !ok {
				return nil, errorf(path, "child %d is %T, not a canonical step", i, child)
			}
			built, err := n.build(m, fmt.Sprintf("%s.chains[%d]", path, i))
			if err != nil {
				return nil, err
			}
			c.Chains[i] = built
		}
		return c, nil
	}

	c.Ins = statementList(node[keyIns])
	c.Out = value.Stringify(node[keyOut])
	compiled, err := n.compiler.Compile(value.Stringify(node[keyCommand]))
	if err != nil {
		return nil, &NormalizationError{Path: path, Err: err}
	}
	c.Command = compiled
	return c, nil
}
