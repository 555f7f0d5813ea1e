package chain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vk/chainrun/internal/value"
	"gopkg.in/yaml.v3"
)

var (
	// `- |text` and `- >text` list items with the text on the same line.
	inlineBlockItem = regexp.MustCompile(`(?m)^(\s*)-(\s+)[>|](.+)$`)
	// `key: |text` and `- key: |text` map entries with the text on the same line.
	inlineBlockEntry = regexp.MustCompile(`(?m)^(\s*)([-\s\w]+:)(\s+)[>|](.+)$`)
	// A real block scalar header such as `|-` or `>2 # comment`.
	blockHeader = regexp.MustCompile(`^[-+]?[0-9]?[-+]?\s*(#.*)?$`)
)

// Standardize rewrites block-scalar indicators followed by text on the same
// line, which YAML rejects, into quoted scalars.
func Standardize(text string) string {
	text = inlineBlockItem.ReplaceAllStringFunc(text, func(line string) string {
		m := inlineBlockItem.FindStringSubmatch(line)
		if blockHeader.MatchString(m[3]) {
			return line
		}
		return m[1] + "-" + m[2] + quote(m[3])
	})
	return inlineBlockEntry.ReplaceAllStringFunc(text, func(line string) string {
		m := inlineBlockEntry.FindStringSubmatch(line)
		if blockHeader.MatchString(m[4]) {
			return line
		}
		return m[1] + m[2] + m[3] + quote(m[4])
	})
}

func quote(s string) string {
	b, _ := value.Marshal(s)
	return string(b)
}

// Parse decodes a textual description. JSON documents are decoded as they
// are; anything else is standardized and decoded as YAML.
func Parse(text string) (any, error) {
	if v, ok := value.ParseJSON(text); ok {
		return v, nil
	}
	var doc any
	if err := yaml.Unmarshal([]byte(Standardize(text)), &doc); err != nil {
		return nil, &NormalizationError{Err: fmt.Errorf("parse description: %w", err)}
	}
	if doc == nil && strings.TrimSpace(text) != "" {
		return nil, &NormalizationError{Err: fmt.Errorf("parse description: no content")}
	}
	return value.Normalize(doc), nil
}
