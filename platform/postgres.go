package platform

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/sqldef/schemadiff/schema"
	"github.com/sqldef/schemadiff/util"
)

type PostgresPlatform struct{}

var postgresTypes = typeMap{
	natives: map[string]string{
		"integer":  "integer",
		"smallint": "smallint",
		"bigint":   "bigint",
		"boolean":  "boolean",
		"string":   "varchar",
		"text":     "text",
		"decimal":  "numeric",
		"float":    "double precision",
		"date":     "date",
		"time":     "time",
		"datetime": "timestamp",
		"binary":   "bytea",
		"blob":     "bytea",
		"json":     "jsonb",
		"guid":     "uuid",
	},
	sized: map[string]bool{"string": true},
}

func (p *PostgresPlatform) SupportsSchemas() bool               { return true }
func (p *PostgresPlatform) SupportsSequences() bool             { return true }
func (p *PostgresPlatform) SupportsForeignKeyConstraints() bool { return true }

func (p *PostgresPlatform) quote(name string) string {
	return quoteName(name, pq.QuoteIdentifier)
}

func (p *PostgresPlatform) CreateSchemaSQL(name string) (string, error) {
	return "CREATE SCHEMA " + p.quote(name), nil
}

func (p *PostgresPlatform) DropForeignKeySQL(fk schema.ForeignKey, table string) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", p.quote(table), pq.QuoteIdentifier(p.foreignKeyName(fk, table))), nil
}

func (p *PostgresPlatform) AlterSequenceSQL(seq schema.Sequence) (string, error) {
	ddl := fmt.Sprintf("ALTER SEQUENCE %s INCREMENT BY %d", p.quote(seq.Name), seq.IncrementBy())
	if seq.Cache > 0 {
		ddl += fmt.Sprintf(" CACHE %d", seq.Cache)
	}
	return ddl, nil
}

func (p *PostgresPlatform) DropSequenceSQL(name string) (string, error) {
	return "DROP SEQUENCE " + p.quote(name), nil
}

func (p *PostgresPlatform) CreateSequenceSQL(seq schema.Sequence) (string, error) {
	ddl := fmt.Sprintf("CREATE SEQUENCE %s INCREMENT BY %d START WITH %d", p.quote(seq.Name), seq.IncrementBy(), seq.StartWith())
	if seq.Cache > 0 {
		ddl += fmt.Sprintf(" CACHE %d", seq.Cache)
	}
	return ddl, nil
}

func (p *PostgresPlatform) CreateTableSQL(table *schema.Table) ([]string, error) {
	var definitions []string
	for _, column := range table.Columns {
		definitions = append(definitions, p.columnDefinition(column))
	}
	if len(table.PrimaryKey) > 0 {
		definitions = append(definitions, fmt.Sprintf("PRIMARY KEY (%s)", quoteNames(table.PrimaryKey, pq.QuoteIdentifier)))
	}

	ddls := []string{fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", p.quote(table.Name), strings.Join(definitions, ",\n  "))}
	for _, index := range table.Indexes {
		ddls = append(ddls, p.createIndexSQL(index, table.Name))
	}
	if table.Comment != "" {
		ddls = append(ddls, fmt.Sprintf("COMMENT ON TABLE %s IS %s", p.quote(table.Name), quoteString(table.Comment)))
	}
	for _, column := range table.Columns {
		if column.Comment != "" {
			ddls = append(ddls, p.columnCommentSQL(table.Name, column))
		}
	}
	return ddls, nil
}

func (p *PostgresPlatform) CreateForeignKeySQL(fk schema.ForeignKey, table string) (string, error) {
	return fmt.Sprintf(
		"ALTER TABLE %s ADD CONSTRAINT %s %s",
		p.quote(table), pq.QuoteIdentifier(p.foreignKeyName(fk, table)), foreignKeyDefinition(fk, pq.QuoteIdentifier),
	), nil
}

func (p *PostgresPlatform) DropTableSQL(name string) (string, error) {
	return "DROP TABLE " + p.quote(name), nil
}

func (p *PostgresPlatform) AlterTableSQL(diff *schema.TableDiff) ([]string, error) {
	table := p.quote(diff.Name)
	var ddls []string

	for _, fk := range droppedForeignKeys(diff) {
		ddl, err := p.DropForeignKeySQL(fk, diff.Name)
		if err != nil {
			return nil, err
		}
		ddls = append(ddls, ddl)
	}
	for _, index := range droppedIndexes(diff) {
		if index.Primary {
			ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table, pq.QuoteIdentifier(unqualified(diff.Name)+"_pkey")))
			continue
		}
		ddls = append(ddls, "DROP INDEX "+p.quote(qualifyLike(diff.Name, index.Name)))
	}

	for _, renamed := range diff.RenamedColumns {
		ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, pq.QuoteIdentifier(renamed.From), pq.QuoteIdentifier(renamed.Column.Name)))
	}
	for _, column := range diff.RemovedColumns {
		ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, pq.QuoteIdentifier(column.Name)))
	}
	for _, column := range diff.AddedColumns {
		ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, p.columnDefinition(column)))
		if column.Comment != "" {
			ddls = append(ddls, p.columnCommentSQL(diff.Name, column))
		}
	}
	for _, changed := range diff.ChangedColumns {
		ddls = append(ddls, p.alterColumnSQL(diff.Name, changed)...)
	}

	for _, renamed := range diff.RenamedIndexes {
		ddls = append(ddls, fmt.Sprintf("ALTER INDEX %s RENAME TO %s", p.quote(qualifyLike(diff.Name, renamed.From)), pq.QuoteIdentifier(renamed.Index.Name)))
	}
	for _, index := range addedIndexes(diff) {
		if index.Primary {
			ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", table, quoteNames(index.Columns, pq.QuoteIdentifier)))
			continue
		}
		ddls = append(ddls, p.createIndexSQL(index, diff.Name))
	}
	for _, fk := range addedForeignKeys(diff) {
		ddl, err := p.CreateForeignKeySQL(fk, diff.Name)
		if err != nil {
			return nil, err
		}
		ddls = append(ddls, ddl)
	}

	if diff.NewName != "" {
		ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", table, pq.QuoteIdentifier(unqualified(diff.NewName))))
	}
	return ddls, nil
}

func (p *PostgresPlatform) alterColumnSQL(table string, changed schema.ColumnDiff) []string {
	prefix := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s", p.quote(table), pq.QuoteIdentifier(changed.Column.Name))
	column := changed.Column
	var ddls []string

	if changed.HasChanged("type") || changed.HasChanged("length") || changed.HasChanged("precision") || changed.HasChanged("scale") {
		ddls = append(ddls, fmt.Sprintf("%s TYPE %s", prefix, postgresTypes.render(column)))
	}
	if changed.HasChanged("default") {
		if column.Default != nil {
			ddls = append(ddls, fmt.Sprintf("%s SET DEFAULT %s", prefix, *column.Default))
		} else {
			ddls = append(ddls, prefix+" DROP DEFAULT")
		}
	}
	if changed.HasChanged("notnull") {
		if column.NotNull {
			ddls = append(ddls, prefix+" SET NOT NULL")
		} else {
			ddls = append(ddls, prefix+" DROP NOT NULL")
		}
	}
	if changed.HasChanged("autoincrement") {
		if column.AutoIncrement {
			ddls = append(ddls, prefix+" ADD GENERATED BY DEFAULT AS IDENTITY")
		} else {
			ddls = append(ddls, prefix+" DROP IDENTITY IF EXISTS")
		}
	}
	if changed.HasChanged("comment") {
		ddls = append(ddls, p.columnCommentSQL(table, column))
	}
	return ddls
}

// foreignKeyName names unnamed keys the way PostgreSQL itself does.
func (p *PostgresPlatform) foreignKeyName(fk schema.ForeignKey, table string) string {
	if fk.Name != "" {
		return fk.Name
	}
	return util.PostgresConstraintName(unqualified(table), strings.Join(fk.Columns, "_"), "fkey")
}

func (p *PostgresPlatform) columnDefinition(column schema.Column) string {
	ddl := pq.QuoteIdentifier(column.Name) + " " + postgresTypes.render(column)
	if column.AutoIncrement {
		ddl += " GENERATED BY DEFAULT AS IDENTITY"
	}
	if column.NotNull {
		ddl += " NOT NULL"
	}
	if column.Default != nil && !column.AutoIncrement {
		ddl += " DEFAULT " + *column.Default
	}
	return ddl
}

func (p *PostgresPlatform) createIndexSQL(index schema.Index, table string) string {
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, pq.QuoteIdentifier(index.Name), p.quote(table), quoteNames(index.Columns, pq.QuoteIdentifier))
}

func (p *PostgresPlatform) columnCommentSQL(table string, column schema.Column) string {
	comment := "NULL"
	if column.Comment != "" {
		comment = quoteString(column.Comment)
	}
	return fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s", p.quote(table), pq.QuoteIdentifier(column.Name), comment)
}
