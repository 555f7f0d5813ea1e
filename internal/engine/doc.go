// Package engine runs canonical Chain trees.
//
// An Engine resolves a description (inline text, a structured value, or the
// path of a description file), normalizes and compiles it once, and executes
// it against a fresh Variable Store per invocation. Each node goes through
// the same state machine:
//
//	Init -> BranchCheck -> {Skipped | Running} -> LoopCheck -> {Repeating -> Running | Done}
//
// with Errored reachable from any state once the store's error flag is set.
// Series children run in order; parallel children run on their own
// goroutines behind an errgroup barrier. The first leaf failure records the
// error triple in the store, stops new work from starting and completes the
// invocation at once; results of work still in flight are discarded.
package engine
