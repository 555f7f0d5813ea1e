// Package expr is the statement evaluator. A statement is any textual value
// found in a pipeline: a literal, a variable name, a dotted path, a JSON
// literal, or an expression.
//
// Expressions run in a sandbox built on the HCL native syntax. The only
// names visible to an expression are the variables of the current store,
// a fixed set of cty standard library functions and the direct `$`
// functions of the registry, called as `$.name(...)`. Nothing from the host
// process environment is reachable.
//
// Before parsing, expressions are rewritten from the pipeline dialect:
// single-quoted strings become double-quoted, `===` and `!==` become `==`
// and `!=`, binary minus gets spaces so that `n-1` is not read as one
// identifier, and `$.a.b(` becomes the namespaced call `fn::a::b(`.
package expr
