package schema

import (
	"strings"
)

var (
	// Portable type tags, keyed by the spellings accepted in snapshots and returned by introspection.
	dataTypeAliases = map[string]string{
		"int":               "integer",
		"int4":              "integer",
		"serial":            "integer",
		"mediumint":         "integer",
		"int2":              "smallint",
		"tinyint":           "smallint",
		"int8":              "bigint",
		"bigserial":         "bigint",
		"bool":              "boolean",
		"bit":               "boolean",
		"varchar":           "string",
		"character varying": "string",
		"nvarchar":          "string",
		"char":              "string",
		"character":         "string",
		"nchar":             "string",
		"bpchar":            "string",
		"ntext":             "text",
		"mediumtext":        "text",
		"longtext":          "text",
		"clob":              "text",
		"numeric":           "decimal",
		"real":              "float",
		"float4":            "float",
		"float8":            "float",
		"double":            "float",
		"double precision":  "float",
		"timestamp":         "datetime",
		"timestamptz":       "datetime",
		"datetime2":         "datetime",
		"varbinary":         "binary",
		"bytea":             "blob",
		"longblob":          "blob",
		"jsonb":             "json",
		"uuid":              "guid",
		"uniqueidentifier":  "guid",
	}
)

// NormalizeType folds a type name to its portable type tag so that
// snapshots written by hand and schemas exported from a database compare equal.
// Unknown names are only lowercased.
func NormalizeType(typeName string) string {
	normalized := strings.ToLower(strings.TrimSpace(typeName))
	if alias, ok := dataTypeAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// normalizeDefault strips the decorations databases add to default expressions,
// e.g. `'foo'::character varying` on PostgreSQL or `((0))` on SQL Server.
func normalizeDefault(def *string) *string {
	if def == nil {
		return nil
	}
	value := strings.TrimSpace(*def)
	for len(value) >= 2 && value[0] == '(' && value[len(value)-1] == ')' {
		value = strings.TrimSpace(value[1 : len(value)-1])
	}
	if i := strings.Index(value, "::"); i > 0 && strings.HasPrefix(value, "'") {
		value = value[:i]
	}
	if strings.EqualFold(value, "null") {
		return nil
	}
	return &value
}

// normalizeReferentialAction returns the canonical spelling of ON DELETE/ON UPDATE;
// NO ACTION and RESTRICT are the implicit defaults and compare equal to no action.
func normalizeReferentialAction(action string) string {
	action = strings.ToUpper(strings.Join(strings.Fields(action), " "))
	switch action {
	case "", "NO ACTION", "RESTRICT":
		return ""
	default:
		return action
	}
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
