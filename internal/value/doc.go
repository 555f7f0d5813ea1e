// Package value holds the helpers shared by every component that touches
// pipeline data: normalization of caller-supplied Go values into the
// JSON-like shape the engine works with (nil, bool, float64, string, []any,
// map[string]any), deep copies, recursive merges, truthiness, the JSON text
// form used for shell arguments and final results, and the bridge to the
// cty values seen by sandboxed expressions.
//
// Values of any other Go type are opaque. They can be stored and passed to
// pluggable functions but are hidden from expressions.
package value
