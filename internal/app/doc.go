// Package app contains the core application logic. It wires the logger, the
// `$` function registry, the process runner and the pipeline engine, and runs
// one pipeline per invocation, decoupled from any specific entrypoint like a
// CLI or server.
package app
