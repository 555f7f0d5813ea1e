package expr

import (
	"context"
	"fmt"

	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/internal/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// standardFunctions is the whitelist of cty library functions visible to
// every expression.
var standardFunctions = map[string]function.Function{
	"abs":        stdlib.AbsoluteFunc,
	"ceil":       stdlib.CeilFunc,
	"floor":      stdlib.FloorFunc,
	"max":        stdlib.MaxFunc,
	"min":        stdlib.MinFunc,
	"pow":        stdlib.PowFunc,
	"int":        stdlib.IntFunc,
	"parseint":   stdlib.ParseIntFunc,
	"length":     stdlib.LengthFunc,
	"strlen":     stdlib.StrlenFunc,
	"lower":      stdlib.LowerFunc,
	"upper":      stdlib.UpperFunc,
	"substr":     stdlib.SubstrFunc,
	"trimspace":  stdlib.TrimSpaceFunc,
	"chomp":      stdlib.ChompFunc,
	"replace":    stdlib.ReplaceFunc,
	"split":      stdlib.SplitFunc,
	"join":       stdlib.JoinFunc,
	"format":     stdlib.FormatFunc,
	"concat":     stdlib.ConcatFunc,
	"contains":   stdlib.ContainsFunc,
	"distinct":   stdlib.DistinctFunc,
	"flatten":    stdlib.FlattenFunc,
	"element":    stdlib.ElementFunc,
	"keys":       stdlib.KeysFunc,
	"values":     stdlib.ValuesFunc,
	"lookup":     stdlib.LookupFunc,
	"merge":      stdlib.MergeFunc,
	"range":      stdlib.RangeFunc,
	"reverse":    stdlib.ReverseListFunc,
	"slice":      stdlib.SliceFunc,
	"sort":       stdlib.SortFunc,
	"jsonencode": stdlib.JSONEncodeFunc,
	"jsondecode": stdlib.JSONDecodeFunc,
}

// functionTable returns the standard functions plus a wrapper for every
// direct registry function, bound to ctx.
func functionTable(ctx context.Context, reg *registry.Registry) map[string]function.Function {
	table := make(map[string]function.Function, len(standardFunctions)+8)
	for name, fn := range standardFunctions {
		table[name] = fn
	}
	if reg == nil {
		return table
	}
	reg.Each(registry.Direct, func(f *registry.Function) {
		table[SandboxName(f.Name)] = wrapDirect(ctx, f)
	})
	return table
}

func wrapDirect(ctx context.Context, f *registry.Function) function.Function {
	return function.New(&function.Spec{
		Description: fmt.Sprintf("$.%s", f.Name),
		VarParam: &function.Parameter{
			Name:             "args",
			Type:             cty.DynamicPseudoType,
			AllowNull:        true,
			AllowDynamicType: true,
		},
		Type: function.StaticReturnType(cty.DynamicPseudoType),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			native := make([]any, len(args))
			for i, a := range args {
				v, err := value.FromCty(a)
				if err != nil {
					return cty.NilVal, function.NewArgError(i, err)
				}
				native[i] = v
			}
			out, err := f.Direct(ctx, native)
			if err != nil {
				return cty.NilVal, err
			}
			return value.ToCty(out)
		},
	})
}
