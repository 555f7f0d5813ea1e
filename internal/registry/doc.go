// Package registry holds the pluggable function namespace that pipelines
// reach through `$`. Modules register named functions under dotted names
// (for example "core.print" or "eisn"), each following one of three calling
// conventions:
//
//   - Direct functions return their result synchronously.
//   - Continuation functions receive a callback that they must invoke exactly
//     once, possibly from another goroutine.
//   - Deferred functions return a Future that settles later.
//
// The registry knows nothing about pipelines. The command compiler and the
// expression evaluator decide how each convention is driven.
package registry
