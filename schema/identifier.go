package schema

import (
	"strings"
)

// normalizeName returns the key used to compare identifiers. Unquoted
// identifiers are treated case-insensitively on every supported database,
// so names are folded to lowercase and surrounding quotes are removed.
func normalizeName(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = strings.ToLower(unquote(part))
	}
	return strings.Join(parts, ".")
}

func unquote(name string) string {
	if len(name) < 2 {
		return name
	}
	switch {
	case name[0] == '"' && name[len(name)-1] == '"',
		name[0] == '`' && name[len(name)-1] == '`',
		name[0] == '[' && name[len(name)-1] == ']':
		return name[1 : len(name)-1]
	}
	return name
}

// SplitTableName splits `ns.table` into its namespace and table name.
// The namespace is empty for unqualified names.
func SplitTableName(name string) (string, string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func namesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if normalizeName(a[i]) != normalizeName(b[i]) {
			return false
		}
	}
	return true
}

// SplitIdentifier splits a possibly qualified, possibly quoted name into its
// unquoted parts, keeping their case.
func SplitIdentifier(name string) []string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = unquote(part)
	}
	return parts
}
