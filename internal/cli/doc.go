// Package cli turns command-line arguments into an app.Config. Flags come
// first; the first positional argument is the pipeline and the rest are its
// inputs. Usage and validation failures are reported as ExitError with the
// exit code the process should use.
package cli
