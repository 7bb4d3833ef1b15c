package platform

import (
	"fmt"
	"strings"

	"github.com/sqldef/schemadiff/schema"
)

// MssqlPlatform renders DDLs for SQL Server. Defaults are named constraints
// (DF_<table>_<column>) so that they can be dropped when a column changes.
// Comments are not rendered: SQL Server stores them as extended properties.
type MssqlPlatform struct{}

var mssqlTypes = typeMap{
	natives: map[string]string{
		"integer":  "int",
		"smallint": "smallint",
		"bigint":   "bigint",
		"boolean":  "bit",
		"string":   "nvarchar",
		"text":     "nvarchar(max)",
		"decimal":  "decimal",
		"float":    "float",
		"date":     "date",
		"time":     "time",
		"datetime": "datetime2",
		"binary":   "varbinary",
		"blob":     "varbinary(max)",
		"json":     "nvarchar(max)",
		"guid":     "uniqueidentifier",
	},
	sized:         map[string]bool{"string": true, "binary": true},
	defaultLength: 255,
}

func (p *MssqlPlatform) SupportsSchemas() bool               { return true }
func (p *MssqlPlatform) SupportsSequences() bool             { return true }
func (p *MssqlPlatform) SupportsForeignKeyConstraints() bool { return true }

func mssqlQuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (p *MssqlPlatform) quote(name string) string {
	return quoteName(name, mssqlQuoteIdentifier)
}

func (p *MssqlPlatform) CreateSchemaSQL(name string) (string, error) {
	return "CREATE SCHEMA " + p.quote(name), nil
}

func (p *MssqlPlatform) DropForeignKeySQL(fk schema.ForeignKey, table string) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", p.quote(table), mssqlQuoteIdentifier(foreignKeyName(fk, table))), nil
}

func (p *MssqlPlatform) AlterSequenceSQL(seq schema.Sequence) (string, error) {
	ddl := fmt.Sprintf("ALTER SEQUENCE %s INCREMENT BY %d", p.quote(seq.Name), seq.IncrementBy())
	if seq.Cache > 0 {
		ddl += fmt.Sprintf(" CACHE %d", seq.Cache)
	}
	return ddl, nil
}

func (p *MssqlPlatform) DropSequenceSQL(name string) (string, error) {
	return "DROP SEQUENCE " + p.quote(name), nil
}

func (p *MssqlPlatform) CreateSequenceSQL(seq schema.Sequence) (string, error) {
	ddl := fmt.Sprintf("CREATE SEQUENCE %s START WITH %d INCREMENT BY %d", p.quote(seq.Name), seq.StartWith(), seq.IncrementBy())
	if seq.Cache > 0 {
		ddl += fmt.Sprintf(" CACHE %d", seq.Cache)
	}
	return ddl, nil
}

func (p *MssqlPlatform) CreateTableSQL(table *schema.Table) ([]string, error) {
	var definitions []string
	for _, column := range table.Columns {
		definitions = append(definitions, p.columnDefinition(table.Name, column))
	}
	if len(table.PrimaryKey) > 0 {
		definitions = append(definitions, fmt.Sprintf(
			"CONSTRAINT %s PRIMARY KEY (%s)", mssqlQuoteIdentifier(p.primaryKeyName(table.Name)), quoteNames(table.PrimaryKey, mssqlQuoteIdentifier),
		))
	}

	ddls := []string{fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", p.quote(table.Name), strings.Join(definitions, ",\n  "))}
	for _, index := range table.Indexes {
		ddls = append(ddls, p.createIndexSQL(index, table.Name))
	}
	return ddls, nil
}

func (p *MssqlPlatform) CreateForeignKeySQL(fk schema.ForeignKey, table string) (string, error) {
	return fmt.Sprintf(
		"ALTER TABLE %s ADD CONSTRAINT %s %s",
		p.quote(table), mssqlQuoteIdentifier(foreignKeyName(fk, table)), foreignKeyDefinition(fk, mssqlQuoteIdentifier),
	), nil
}

func (p *MssqlPlatform) DropTableSQL(name string) (string, error) {
	return "DROP TABLE " + p.quote(name), nil
}

func (p *MssqlPlatform) AlterTableSQL(diff *schema.TableDiff) ([]string, error) {
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
			ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table, mssqlQuoteIdentifier(p.primaryKeyName(diff.Name))))
			continue
		}
		ddls = append(ddls, fmt.Sprintf("DROP INDEX %s ON %s", mssqlQuoteIdentifier(index.Name), table))
	}

	for _, renamed := range diff.RenamedColumns {
		ddls = append(ddls, p.renameSQL(diff.Name+"."+renamed.From, renamed.Column.Name, "COLUMN"))
	}
	for _, column := range diff.RemovedColumns {
		if column.Default != nil {
			ddls = append(ddls, p.dropDefaultSQL(diff.Name, column.Name))
		}
		ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, mssqlQuoteIdentifier(column.Name)))
	}
	for _, column := range diff.AddedColumns {
		ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s ADD %s", table, p.columnDefinition(diff.Name, column)))
	}
	for _, changed := range diff.ChangedColumns {
		alter, err := p.alterColumnSQL(diff.Name, changed)
		if err != nil {
			return nil, err
		}
		ddls = append(ddls, alter...)
	}

	for _, renamed := range diff.RenamedIndexes {
		ddls = append(ddls, p.renameSQL(diff.Name+"."+renamed.From, renamed.Index.Name, "INDEX"))
	}
	for _, index := range addedIndexes(diff) {
		if index.Primary {
			ddls = append(ddls, fmt.Sprintf(
				"ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY (%s)", table, mssqlQuoteIdentifier(p.primaryKeyName(diff.Name)), quoteNames(index.Columns, mssqlQuoteIdentifier),
			))
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
		ddls = append(ddls, p.renameSQL(diff.Name, unqualified(diff.NewName), ""))
	}
	return ddls, nil
}

func (p *MssqlPlatform) alterColumnSQL(table string, changed schema.ColumnDiff) ([]string, error) {
	column := changed.Column
	if changed.HasChanged("autoincrement") {
		return nil, unsupported("changing IDENTITY of %s.%s on mssql", table, column.Name)
	}

	var ddls []string
	if changed.HasChanged("default") && changed.OldColumn.Default != nil {
		ddls = append(ddls, p.dropDefaultSQL(table, column.Name))
	}
	if changed.HasChanged("type") || changed.HasChanged("length") || changed.HasChanged("precision") || changed.HasChanged("scale") || changed.HasChanged("notnull") {
		null := " NULL"
		if column.NotNull {
			null = " NOT NULL"
		}
		ddls = append(ddls, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s%s", p.quote(table), mssqlQuoteIdentifier(column.Name), mssqlTypes.render(column), null))
	}
	if changed.HasChanged("default") && column.Default != nil {
		ddls = append(ddls, fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s DEFAULT %s FOR %s",
			p.quote(table), mssqlQuoteIdentifier(p.defaultName(table, column.Name)), *column.Default, mssqlQuoteIdentifier(column.Name),
		))
	}
	return ddls, nil
}

func (p *MssqlPlatform) columnDefinition(table string, column schema.Column) string {
	ddl := mssqlQuoteIdentifier(column.Name) + " " + mssqlTypes.render(column)
	if column.AutoIncrement {
		ddl += " IDENTITY(1,1)"
	}
	if column.NotNull {
		ddl += " NOT NULL"
	} else {
		ddl += " NULL"
	}
	if column.Default != nil {
		ddl += fmt.Sprintf(" CONSTRAINT %s DEFAULT %s", mssqlQuoteIdentifier(p.defaultName(table, column.Name)), *column.Default)
	}
	return ddl
}

func (p *MssqlPlatform) createIndexSQL(index schema.Index, table string) string {
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, mssqlQuoteIdentifier(index.Name), p.quote(table), quoteNames(index.Columns, mssqlQuoteIdentifier))
}

func (p *MssqlPlatform) dropDefaultSQL(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", p.quote(table), mssqlQuoteIdentifier(p.defaultName(table, column)))
}

// renameSQL calls sp_rename. `kind` is empty for tables.
func (p *MssqlPlatform) renameSQL(from, to, kind string) string {
	ddl := fmt.Sprintf("EXEC sp_rename N%s, N%s", quoteString(from), quoteString(to))
	if kind != "" {
		ddl += fmt.Sprintf(", N'%s'", kind)
	}
	return ddl
}

func (p *MssqlPlatform) primaryKeyName(table string) string {
	return "PK_" + unqualified(table)
}

func (p *MssqlPlatform) defaultName(table, column string) string {
	return fmt.Sprintf("DF_%s_%s", unqualified(table), column)
}
