package chain

import "fmt"

// NormalizationError reports a description that cannot be turned into a
// Chain tree. Path locates the offending step, for example "root.chains[1]".
type NormalizationError struct {
	Path string
	Err  error
}

func (e *NormalizationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("normalize: %v", e.Err)
	}
	return fmt.Sprintf("normalize %s: %v", e.Path, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

func errorf(path, format string, args ...any) error {
	return &NormalizationError{Path: path, Err: fmt.Errorf(format, args...)}
}
