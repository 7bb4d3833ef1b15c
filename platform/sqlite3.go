package platform

import (
	"fmt"
	"strings"

	"github.com/sqldef/schemadiff/schema"
)

// SQLite3Platform renders DDLs for SQLite. Foreign keys only exist as part of
// CREATE TABLE, and ALTER TABLE can neither change a column nor its constraints.
type SQLite3Platform struct{}

var sqlite3Types = typeMap{
	natives: map[string]string{
		"integer":  "integer",
		"smallint": "smallint",
		"bigint":   "bigint",
		"boolean":  "boolean",
		"string":   "varchar",
		"text":     "text",
		"decimal":  "numeric",
		"float":    "real",
		"date":     "date",
		"time":     "time",
		"datetime": "datetime",
		"binary":   "blob",
		"blob":     "blob",
		"json":     "text",
		"guid":     "text",
	},
	sized: map[string]bool{"string": true},
}

func (p *SQLite3Platform) SupportsSchemas() bool               { return false }
func (p *SQLite3Platform) SupportsSequences() bool             { return false }
func (p *SQLite3Platform) SupportsForeignKeyConstraints() bool { return false }

func sqlite3QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (p *SQLite3Platform) quote(name string) string {
	return quoteName(name, sqlite3QuoteIdentifier)
}

func (p *SQLite3Platform) CreateSchemaSQL(name string) (string, error) {
	return "", unsupported("schema %q on sqlite3", name)
}

func (p *SQLite3Platform) DropForeignKeySQL(fk schema.ForeignKey, table string) (string, error) {
	return "", unsupported("dropping foreign key %q of %s on sqlite3", foreignKeyName(fk, table), table)
}

func (p *SQLite3Platform) AlterSequenceSQL(seq schema.Sequence) (string, error) {
	return "", unsupported("sequence %q on sqlite3", seq.Name)
}

func (p *SQLite3Platform) DropSequenceSQL(name string) (string, error) {
	return "", unsupported("sequence %q on sqlite3", name)
}

func (p *SQLite3Platform) CreateSequenceSQL(seq schema.Sequence) (string, error) {
	return "", unsupported("sequence %q on sqlite3", seq.Name)
}

func (p *SQLite3Platform) CreateTableSQL(table *schema.Table) ([]string, error) {
	// AUTOINCREMENT is only allowed on an INTEGER PRIMARY KEY column, and
	// SQLite requires that exact spelling, so the declared type (bigint,
	// int, ...) is replaced. Such a column is exported back as integer.
	inlinePrimaryKey := ""
	if len(table.PrimaryKey) == 1 {
		if column, ok := table.Column(table.PrimaryKey[0]); ok && column.AutoIncrement {
			inlinePrimaryKey = column.Name
		}
	}

	var definitions []string
	for _, column := range table.Columns {
		if column.Name == inlinePrimaryKey {
			definitions = append(definitions, sqlite3QuoteIdentifier(column.Name)+" integer PRIMARY KEY AUTOINCREMENT")
			continue
		}
		definitions = append(definitions, p.columnDefinition(column))
	}
	if len(table.PrimaryKey) > 0 && inlinePrimaryKey == "" {
		definitions = append(definitions, fmt.Sprintf("PRIMARY KEY (%s)", quoteNames(table.PrimaryKey, sqlite3QuoteIdentifier)))
	}
	for _, fk := range table.ForeignKeys {
		definitions = append(definitions, fmt.Sprintf(
			"CONSTRAINT %s %s", sqlite3QuoteIdentifier(foreignKeyName(fk, table.Name)), foreignKeyDefinition(fk, sqlite3QuoteIdentifier),
		))
	}

	ddls := []string{fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", p.quote(table.Name), strings.Join(definitions, ",\n  "))}
	for _, index := range table.Indexes {
		ddls = append(ddls, p.createIndexSQL(index, table.Name))
	}
	return ddls, nil
}

func (p *SQLite3Platform) CreateForeignKeySQL(fk schema.ForeignKey, table string) (string, error) {
	return "", unsupported("adding foreign key %q to %s on sqlite3", foreignKeyName(fk, table), table)
}

func (p *SQLite3Platform) DropTableSQL(name string) (string, error) {
	return "DROP TABLE " + p.quote(name), nil
}

func (p *SQLite3Platform) AlterTableSQL(diff *schema.TableDiff) ([]string, error) {
	switch {
	case len(diff.ChangedColumns) > 0:
		return nil, unsupported("changing column %q of %s on sqlite3", diff.ChangedColumns[0].Column.Name, diff.Name)
	case len(diff.AddedForeignKeys) > 0, len(diff.RemovedForeignKeys) > 0, len(diff.ChangedForeignKeys) > 0:
		return nil, unsupported("altering foreign keys of %s on sqlite3", diff.Name)
	}
	for _, index := range append(addedIndexes(diff), diff.RemovedIndexes...) {
		if index.Primary {
			return nil, unsupported("altering the primary key of %s on sqlite3", diff.Name)
		}
	}

	table := p.quote(diff.Name)
	var ddls []string
	for _, index := range droppedIndexes(diff) {
		ddls = append(ddls, "DROP INDEX "+p.quote(qualifyLike(diff.Name, index.Name)))
	}
	// SQLite has no way to rename an index.
	for _, renamed := range diff.RenamedIndexes {
		ddls = append(ddls, "DROP INDEX "+p.quote(qualifyLike(diff.Name, renamed.From)))
	}

	for _, renamed := range diff.RenamedColumns {
		ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, sqlite3QuoteIdentifier(renamed.From), sqlite3QuoteIdentifier(renamed.Column.Name)))
	}
	for _, column := range diff.RemovedColumns {
		ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, sqlite3QuoteIdentifier(column.Name)))
	}
	for _, column := range diff.AddedColumns {
		ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, p.columnDefinition(column)))
	}

	for _, renamed := range diff.RenamedIndexes {
		ddls = append(ddls, p.createIndexSQL(renamed.Index, diff.Name))
	}
	for _, index := range addedIndexes(diff) {
		ddls = append(ddls, p.createIndexSQL(index, diff.Name))
	}

	if diff.NewName != "" {
		ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", table, sqlite3QuoteIdentifier(unqualified(diff.NewName))))
	}
	return ddls, nil
}

func (p *SQLite3Platform) columnDefinition(column schema.Column) string {
	ddl := sqlite3QuoteIdentifier(column.Name) + " " + sqlite3Types.render(column)
	if column.NotNull {
		ddl += " NOT NULL"
	}
	if column.Default != nil {
		ddl += " DEFAULT " + *column.Default
	}
	return ddl
}

func (p *SQLite3Platform) createIndexSQL(index schema.Index, table string) string {
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf(
		"CREATE %sINDEX %s ON %s (%s)",
		unique, p.quote(qualifyLike(table, index.Name)), sqlite3QuoteIdentifier(unqualified(table)), quoteNames(index.Columns, sqlite3QuoteIdentifier),
	)
}
