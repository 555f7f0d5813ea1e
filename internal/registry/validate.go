package registry

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidName reports whether name is a dotted sequence of identifiers, the
// only form reachable as `$.name` from a pipeline.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r == '_' || unicode.IsLetter(r):
			case i > 0 && unicode.IsDigit(r):
			default:
				return false
			}
		}
	}
	return true
}

func mustValidName(name string) {
	if !ValidName(name) {
		panic(fmt.Sprintf("invalid function name '%s': want dotted identifiers", name))
	}
}
