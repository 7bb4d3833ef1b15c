package database

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sqldef/schemadiff/schema"
)

var typeArgsPattern = regexp.MustCompile(`^\s*([^(]+?)\s*\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)\s*(.*?)\s*$`)

// ParseColumnType splits a declared type such as `varchar(255)` or
// `numeric(10, 2)` into the type name and its length, or its precision and
// scale. Anything after the arguments, e.g. ` unsigned`, is kept in the type name.
func ParseColumnType(name, typeName string) schema.Column {
	column := schema.Column{Name: name, Type: strings.ToLower(strings.TrimSpace(typeName))}
	match := typeArgsPattern.FindStringSubmatch(typeName)
	if match == nil {
		return column
	}

	column.Type = strings.ToLower(strings.TrimSpace(match[1] + " " + match[4]))
	first, _ := strconv.Atoi(match[2])
	if schema.NormalizeType(column.Type) == "decimal" {
		column.Precision = &first
		scale := 0
		if match[3] != "" {
			scale, _ = strconv.Atoi(match[3])
		}
		column.Scale = &scale
	} else {
		column.Length = &first
	}
	return column
}
