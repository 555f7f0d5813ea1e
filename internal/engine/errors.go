package engine

import (
	"errors"
	"fmt"
)

// ErrFlagged is returned when a pipeline set the error flag itself, for
// example by assigning `_error`, without a failing leaf.
var ErrFlagged = errors.New("pipeline error flag set")

// LeafError reports the leaf failure that halted a pipeline.
type LeafError struct {
	ChainID int
	Command string
	Err     error
}

func (e *LeafError) Error() string {
	return fmt.Sprintf("chain %d (%s): %v", e.ChainID, e.Command, e.Err)
}

func (e *LeafError) Unwrap() error { return e.Err }
