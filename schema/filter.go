package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// FilterTables keeps the tables matching one of `targetTables` (all of them when
// empty) and not matching any of `skipTables`. Patterns are regular expressions
// matched against the whole table name. Foreign keys are kept as they are.
func FilterTables(s *Schema, targetTables []string, skipTables []string) (*Schema, error) {
	targets, err := compilePatterns(targetTables)
	if err != nil {
		return nil, err
	}
	skips, err := compilePatterns(skipTables)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 && len(skips) == 0 {
		return s, nil
	}

	filtered := &Schema{
		Namespaces: s.Namespaces,
		Sequences:  s.Sequences,
	}
	for _, table := range s.Tables {
		if len(targets) > 0 && !matchAny(targets, table.Name) {
			continue
		}
		if matchAny(skips, table.Name) {
			continue
		}
		filtered.Tables = append(filtered.Tables, table)
	}
	return filtered, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	var result []*regexp.Regexp
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid table pattern %q: %w", pattern, err)
		}
		result = append(result, re)
	}
	return result, nil
}

func matchAny(patterns []*regexp.Regexp, name string) bool {
	for _, re := range patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
