package registry

import (
	"slices"
	"strings"
)

const DefaultPrefix = "RS_"

// Policy decides which member names are surfaced.
type Policy struct {
	// Prefix is the naming convention filter. Empty admits every name.
	Prefix string
	// Exclude drops names containing any of these markers, e.g. generated
	// signature helpers.
	Exclude []string
	// Whitelist, when set, admits only the listed names.
	Whitelist []string
}

func DefaultPolicy() Policy {
	return Policy{
		Prefix:  DefaultPrefix,
		Exclude: []string{"__DelegateSignature"},
	}
}

// Allows reports whether a prefixed member name is surfaced. A non-empty
// Whitelist must also list it.
func (p Policy) Allows(name string) bool {
	if name == "" || !strings.HasPrefix(name, p.Prefix) {
		return false
	}
	for _, marker := range p.Exclude {
		if marker != "" && strings.Contains(name, marker) {
			return false
		}
	}
	if len(p.Whitelist) > 0 && !slices.Contains(p.Whitelist, name) {
		return false
	}
	return true
}
