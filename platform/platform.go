// Package platform renders the DDLs of a schema.Diff for each supported database family.
package platform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sqldef/schemadiff/schema"
)

var (
	// ErrNotSupported is returned when a database cannot express a change with DDL.
	ErrNotSupported = errors.New("not supported by the platform")
	ErrUnknownMode  = errors.New("unknown generator mode")
)

// New returns the renderer of the database family `mode`.
func New(mode schema.GeneratorMode) (schema.Platform, error) {
	switch mode {
	case schema.GeneratorModePostgres:
		return &PostgresPlatform{}, nil
	case schema.GeneratorModeMysql:
		return &MysqlPlatform{}, nil
	case schema.GeneratorModeMssql:
		return &MssqlPlatform{}, nil
	case schema.GeneratorModeSQLite3:
		return &SQLite3Platform{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
}

var (
	_ schema.Platform = (*PostgresPlatform)(nil)
	_ schema.Platform = (*MysqlPlatform)(nil)
	_ schema.Platform = (*MssqlPlatform)(nil)
	_ schema.Platform = (*SQLite3Platform)(nil)
)

// typeMap turns the portable type of a column into the native type of a database.
type typeMap struct {
	natives map[string]string
	// sized lists the tags which take a length.
	sized map[string]bool
	// defaultLength is used for sized tags without a length. Zero omits the length.
	defaultLength int
}

func (m typeMap) render(column schema.Column) string {
	tag := schema.NormalizeType(column.Type)
	native, ok := m.natives[tag]
	if !ok {
		// Unknown types are written by the user in the native spelling already.
		return column.Type
	}
	if m.sized[tag] {
		length := m.defaultLength
		if column.Length != nil {
			length = *column.Length
		}
		if length > 0 {
			return fmt.Sprintf("%s(%d)", native, length)
		}
	}
	if tag == "decimal" && column.Precision != nil {
		scale := 0
		if column.Scale != nil {
			scale = *column.Scale
		}
		return fmt.Sprintf("%s(%d, %d)", native, *column.Precision, scale)
	}
	return native
}

// quoteName quotes every part of a qualified name with `quote`.
func quoteName(name string, quote func(string) string) string {
	parts := schema.SplitIdentifier(name)
	for i, part := range parts {
		parts[i] = quote(part)
	}
	return strings.Join(parts, ".")
}

func quoteNames(names []string, quote func(string) string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quoteName(name, quote)
	}
	return strings.Join(quoted, ", ")
}

// unqualified returns the last part of a qualified name.
func unqualified(name string) string {
	parts := schema.SplitIdentifier(name)
	return parts[len(parts)-1]
}

// qualifyLike puts `name` in the namespace of `table`.
func qualifyLike(table, name string) string {
	parts := schema.SplitIdentifier(table)
	if len(parts) == 1 {
		return name
	}
	return strings.Join(append(parts[:len(parts)-1], name), ".")
}

// foreignKeyName returns the constraint name of `fk`. Unnamed keys get a
// deterministic name so that the key created here can be dropped later.
func foreignKeyName(fk schema.ForeignKey, table string) string {
	if fk.Name != "" {
		return fk.Name
	}
	return fmt.Sprintf("fk_%s_%s", unqualified(table), strings.Join(fk.Columns, "_"))
}

func foreignKeyDefinition(fk schema.ForeignKey, quote func(string) string) string {
	ddl := fmt.Sprintf(
		"FOREIGN KEY (%s) REFERENCES %s (%s)",
		quoteNames(fk.Columns, quote),
		quoteName(fk.ReferencedTable, quote),
		quoteNames(fk.ReferencedColumns, quote),
	)
	if onDelete := strings.TrimSpace(fk.OnDelete); onDelete != "" {
		ddl += " ON DELETE " + strings.ToUpper(onDelete)
	}
	if onUpdate := strings.TrimSpace(fk.OnUpdate); onUpdate != "" {
		ddl += " ON UPDATE " + strings.ToUpper(onUpdate)
	}
	return ddl
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func addedIndexes(diff *schema.TableDiff) []schema.Index {
	return append(append([]schema.Index(nil), diff.AddedIndexes...), diff.ChangedIndexes...)
}

func droppedIndexes(diff *schema.TableDiff) []schema.Index {
	return append(append([]schema.Index(nil), diff.RemovedIndexes...), diff.ChangedIndexes...)
}

func addedForeignKeys(diff *schema.TableDiff) []schema.ForeignKey {
	return append(append([]schema.ForeignKey(nil), diff.AddedForeignKeys...), diff.ChangedForeignKeys...)
}

// droppedForeignKeys returns the keys to drop before the table is altered. A
// changed key is dropped under its old definition, which has the same name.
func droppedForeignKeys(diff *schema.TableDiff) []schema.ForeignKey {
	return append(append([]schema.ForeignKey(nil), diff.RemovedForeignKeys...), diff.ChangedForeignKeys...)
}

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotSupported, fmt.Sprintf(format, args...))
}
