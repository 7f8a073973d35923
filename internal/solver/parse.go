package solver

import (
	"fmt"
	"strings"
)

// ParseSolveOutput parses knife solve output. The first line is a header;
// every other non-blank line is "name version".
func ParseSolveOutput(data []byte) ([]Cookbook, error) {
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return []Cookbook{}, nil
	}

	cookbooks := make([]Cookbook, 0, len(lines)-1)
	for i, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cols := strings.Fields(line)
		if len(cols) != 2 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedOutput, i+2, line)
		}
		cookbooks = append(cookbooks, Cookbook{Name: cols[0], Version: cols[1]})
	}
	return cookbooks, nil
}

// Classify splits cookbooks by owned name prefixes, preserving input order.
func Classify(cookbooks []Cookbook, ownedPrefixes []string) Cookbooks {
	out := Cookbooks{Owned: []Cookbook{}, ThirdParty: []Cookbook{}}
	for _, cookbook := range cookbooks {
		if isOwned(cookbook.Name, ownedPrefixes) {
			out.Owned = append(out.Owned, cookbook)
		} else {
			out.ThirdParty = append(out.ThirdParty, cookbook)
		}
	}
	return out
}

func isOwned(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
