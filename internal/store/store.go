// Package store implements the Variable Store threaded through one pipeline
// invocation. The store maps names to structured values and supports writes
// through dotted and indexed paths such as `user.tags[2]` or `rows[i].name`.
//
// A Store is safe for concurrent use. Every read returns a deep copy, so
// callers never observe a half-applied write, but no read-modify-write
// atomicity is offered across separate calls.
package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/vk/chainrun/internal/value"
)

// Reserved variable names present in every store.
const (
	Functions    = "$"
	Answer       = "_ans"
	Error        = "_error"
	ErrorMessage = "_error_message"
	ErrorObject  = "_error_object"
	InitCwd      = "_init_cwd"
	ChainCwd     = "_chain_cwd"
	Verbose      = "_verbose"
	Description  = "_description"
)

// AssignmentError reports a write that could not be applied to a path.
type AssignmentError struct {
	Path string
	Err  error
}

func (e *AssignmentError) Error() string {
	return fmt.Sprintf("cannot assign %q: %v", e.Path, e.Err)
}

func (e *AssignmentError) Unwrap() error { return e.Err }

// Resolver evaluates the statement found inside a bracketed path index.
type Resolver func(statement string) any

// Store is a mutable mapping from variable name to structured value.
type Store struct {
	mu   sync.RWMutex
	vars map[string]any
}

// Reserved returns the reserved entries a fresh store starts with. cwd is
// used for both working directory entries and gets a trailing slash.
func Reserved(cwd string) map[string]any {
	if cwd != "" && !strings.HasSuffix(cwd, "/") {
		cwd += "/"
	}
	return map[string]any{
		Answer:       nil,
		Error:        false,
		ErrorMessage: "",
		ErrorObject:  nil,
		InitCwd:      cwd,
		ChainCwd:     cwd,
		Verbose:      0.0,
		Description:  "",
	}
}

// New creates a store seeded with a copy of initial.
func New(initial map[string]any) *Store {
	vars := make(map[string]any, len(initial))
	for k, v := range initial {
		vars[k] = value.DeepCopy(value.Normalize(v))
	}
	return &Store{vars: vars}
}

// Get returns a copy of the variable stored under name.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return value.DeepCopy(v), ok
}

// Has reports whether name is a top-level variable.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vars[name]
	return ok
}

// Set assigns v to the top-level variable name without any path handling.
func (s *Store) Set(name string, v any) {
	v = value.DeepCopy(value.Normalize(v))
	s.mu.Lock()
	s.vars[name] = v
	s.mu.Unlock()
}

// Snapshot returns a deep copy of every variable.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		out[k] = value.DeepCopy(v)
	}
	return out
}

// SetError records the error triple.
func (s *Store) SetError(message string, obj any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[Error] = true
	s.vars[ErrorMessage] = message
	s.vars[ErrorObject] = value.DeepCopy(value.Normalize(obj))
}

// HasError reports whether the error flag is set.
func (s *Store) HasError() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return value.Truthy(s.vars[Error])
}

// ErrorMessage returns the recorded error message.
func (s *Store) ErrorMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return value.Stringify(s.vars[ErrorMessage])
}

// Lookup resolves a path whose every segment exists in nested values.
// Bracketed indexes must be literals or names of existing variables.
func (s *Store) Lookup(path string) (any, bool) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.vars[segs[0].key]
	if !ok {
		return nil, false
	}
	for _, seg := range segs[1:] {
		if seg.expr != "" {
			seg, ok = s.literalIndexLocked(seg)
			if !ok {
				return nil, false
			}
		}
		cur, ok = step(cur, seg)
		if !ok {
			return nil, false
		}
	}
	return value.DeepCopy(cur), true
}

func step(cur any, seg segment) (any, bool) {
	switch c := cur.(type) {
	case map[string]any:
		key := seg.key
		if seg.isIndex {
			key = fmt.Sprint(seg.index)
		}
		v, ok := c[key]
		return v, ok
	case []any:
		if !seg.isIndex || seg.index < 0 || seg.index >= len(c) {
			return nil, false
		}
		return c[seg.index], true
	}
	return nil, false
}
