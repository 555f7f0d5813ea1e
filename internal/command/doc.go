// Package command compiles the command text of a pipeline leaf into a
// Compiled unit with a single blocking Invoke method.
//
// The form of the text decides the calling convention:
//
//	{...}          direct: evaluated synchronously
//	[...]          continuation: the function reports through a callback
//	<...>          deferred: the function returns a future
//	x => ...       direct, as if wrapped in {...}
//	anything else  shell: run by the process service
//	empty          pack: returns its single input, or all inputs as a list
//
// Inside a wrapper the body is a `$` function reference such as `$.print`,
// a lambda, or an expression whose value is the result.
package command
