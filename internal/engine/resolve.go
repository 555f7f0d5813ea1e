package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/chainrun/internal/chain"
	"github.com/vk/chainrun/internal/ctxlog"
	"github.com/vk/chainrun/internal/value"
)

const labelLength = 50

// source describes where a pipeline came from.
type source struct {
	label string
	dir   string
}

// resolve turns a description into a compiled tree. Strings naming an
// existing file relative to baseDir are loaded from disk; other strings are
// inline text, compiled once per distinct text.
func (e *Engine) resolve(ctx context.Context, description any, baseDir string) (*chain.Chain, source, error) {
	logger := ctxlog.FromContext(ctx)

	switch d := description.(type) {
	case *chain.Chain:
		return d, source{label: scriptLabel(value.Stringify(d.Describe()))}, nil
	case string:
		if cached, ok := e.memo.Load(d); ok {
			logger.Debug("Using memoized pipeline.", "label", scriptLabel(d))
			return cached.(*chain.Chain), source{label: scriptLabel(d)}, nil
		}
		if path, ok := descriptionFile(d, baseDir); ok {
			logger.Debug("Loading pipeline file.", "path", path)
			root, err := e.load(path)
			if err != nil {
				return nil, source{}, err
			}
			return root, source{label: "FILE: " + filepath.Base(path), dir: filepath.Dir(path)}, nil
		}
		parsed, err := chain.Parse(d)
		if err != nil {
			return nil, source{}, err
		}
		root, err := e.normalizer.Normalize(parsed)
		if err != nil {
			return nil, source{}, err
		}
		actual, _ := e.memo.LoadOrStore(d, root)
		return actual.(*chain.Chain), source{label: scriptLabel(d)}, nil
	default:
		root, err := e.normalizer.Normalize(description)
		if err != nil {
			return nil, source{}, err
		}
		return root, source{label: scriptLabel(value.Stringify(description))}, nil
	}
}

func (e *Engine) load(path string) (*chain.Chain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file '%s': %w", path, err)
	}
	parsed, err := chain.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pipeline file '%s': %w", path, err)
	}
	return e.normalizer.Normalize(parsed)
}

// descriptionFile reports the absolute path of the regular file named by s.
func descriptionFile(s, baseDir string) (string, bool) {
	if s == "" || strings.ContainsAny(s, "\n{}") {
		return "", false
	}
	path := s
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, true
	}
	return abs, true
}

func scriptLabel(text string) string {
	text = strings.TrimSpace(text)
	if r := []rune(text); len(r) > labelLength {
		text = string(r[:labelLength])
	}
	return "SCRIPT: " + text
}
