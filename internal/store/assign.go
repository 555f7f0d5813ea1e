package store

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vk/chainrun/internal/value"
)

// segment is one step of an assignment path. A bracketed index that is not
// a literal keeps its statement in expr until it is resolved.
type segment struct {
	key     string
	index   int
	isIndex bool
	expr    string
}

// SetVariable assigns v to the variable or path name. String values holding
// JSON text are decoded first. Indexes in brackets that are neither literals
// nor variable names are evaluated with resolve, which may be nil.
//
// A failed write also sets the error flag and message in the store.
func (s *Store) SetVariable(name string, v any, resolve Resolver) error {
	if str, ok := v.(string); ok {
		if parsed, ok := value.ParseJSON(str); ok {
			v = parsed
		}
	}
	v = value.DeepCopy(value.Normalize(v))

	s.mu.Lock()
	if _, exists := s.vars[name]; exists || !strings.ContainsAny(name, ".[") {
		s.vars[name] = v
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	err := s.assignPath(name, v, resolve)
	if err != nil {
		aerr := &AssignmentError{Path: name, Err: err}
		s.SetError(aerr.Error(), map[string]any{"path": name})
		return aerr
	}
	return nil
}

func (s *Store) assignPath(name string, v any, resolve Resolver) error {
	segs, err := parsePath(name)
	if err != nil {
		return err
	}
	for i, seg := range segs {
		if seg.expr == "" {
			continue
		}
		s.mu.RLock()
		lit, ok := s.literalIndexLocked(seg)
		s.mu.RUnlock()
		if ok {
			segs[i] = lit
			continue
		}
		if resolve == nil {
			return fmt.Errorf("cannot resolve index [%s]", seg.expr)
		}
		segs[i], err = indexFromValue(resolve(seg.expr))
		if err != nil {
			return fmt.Errorf("index [%s]: %w", seg.expr, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	root := segs[0].key
	updated, err := assign(value.DeepCopy(s.vars[root]), segs[1:], v)
	if err != nil {
		return err
	}
	s.vars[root] = updated
	return nil
}

// literalIndexLocked resolves an index naming an existing variable. The
// caller holds the lock.
func (s *Store) literalIndexLocked(seg segment) (segment, bool) {
	v, ok := s.vars[seg.expr]
	if !ok {
		return seg, false
	}
	out, err := indexFromValue(v)
	return out, err == nil
}

func indexFromValue(v any) (segment, error) {
	switch t := value.Normalize(v).(type) {
	case float64:
		if t != math.Trunc(t) || t < 0 {
			return segment{}, fmt.Errorf("invalid index %v", t)
		}
		return segment{index: int(t), isIndex: true}, nil
	case string:
		return segment{key: t}, nil
	}
	return segment{}, fmt.Errorf("index must be a number or string, got %T", v)
}

// maxIndexGap bounds how many elements one assignment may append to a list.
const maxIndexGap = 1 << 16

// assign writes v at segs below cur and returns the updated container.
// Missing containers are created from the kind of the next segment.
func assign(cur any, segs []segment, v any) (any, error) {
	if len(segs) == 0 {
		return v, nil
	}
	seg, rest := segs[0], segs[1:]
	switch c := cur.(type) {
	case nil:
		if seg.isIndex {
			return assign(make([]any, 0), segs, v)
		}
		return assign(make(map[string]any), segs, v)
	case map[string]any:
		key := seg.key
		if seg.isIndex {
			key = strconv.Itoa(seg.index)
		}
		child, err := assign(c[key], rest, v)
		if err != nil {
			return nil, err
		}
		c[key] = child
		return c, nil
	case []any:
		if !seg.isIndex {
			return nil, fmt.Errorf("cannot set field %q on a list", seg.key)
		}
		if seg.index-len(c) >= maxIndexGap {
			return nil, fmt.Errorf("index %d is too far past the end of a list of length %d", seg.index, len(c))
		}
		for len(c) <= seg.index {
			c = append(c, nil)
		}
		child, err := assign(c[seg.index], rest, v)
		if err != nil {
			return nil, err
		}
		c[seg.index] = child
		return c, nil
	default:
		return nil, fmt.Errorf("cannot descend into %T", cur)
	}
}

var errEmptyPath = errors.New("empty path")

// parsePath splits `a.b[0]["c"][i].d` into segments.
func parsePath(path string) ([]segment, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errEmptyPath
	}
	var segs []segment
	i := 0
	readName := func() (string, error) {
		start := i
		for i < len(path) && path[i] != '.' && path[i] != '[' {
			i++
		}
		name := strings.TrimSpace(path[start:i])
		if name == "" {
			return "", fmt.Errorf("empty segment at offset %d in %q", start, path)
		}
		return name, nil
	}

	first, err := readName()
	if err != nil {
		return nil, err
	}
	segs = append(segs, segment{key: first})

	for i < len(path) {
		switch path[i] {
		case '.':
			i++
			name, err := readName()
			if err != nil {
				return nil, err
			}
			segs = append(segs, segment{key: name})
		case '[':
			end, err := matchBracket(path, i)
			if err != nil {
				return nil, err
			}
			segs = append(segs, indexSegment(strings.TrimSpace(path[i+1:end])))
			i = end + 1
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d in %q", path[i], i, path)
		}
	}
	return segs, nil
}

func indexSegment(inner string) segment {
	if n, err := strconv.Atoi(inner); err == nil && n >= 0 {
		return segment{index: n, isIndex: true}
	}
	if len(inner) >= 2 {
		q := inner[0]
		if (q == '"' || q == '\'') && inner[len(inner)-1] == q {
			return segment{key: inner[1 : len(inner)-1]}
		}
	}
	return segment{expr: inner}
}

func matchBracket(path string, open int) (int, error) {
	depth := 0
	var quote byte
	for j := open; j < len(path); j++ {
		ch := path[j]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[':
			depth++
		case ch == ']':
			depth--
			if depth == 0 {
				return j, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced brackets in %q", path)
}
