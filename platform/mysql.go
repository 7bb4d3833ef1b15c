package platform

import (
	"fmt"
	"strings"

	"github.com/sqldef/schemadiff/schema"
)

// MysqlPlatform renders DDLs for MySQL and MariaDB, which have neither
// schemas separate from databases nor sequences.
type MysqlPlatform struct{}

var mysqlTypes = typeMap{
	natives: map[string]string{
		"integer":  "int",
		"smallint": "smallint",
		"bigint":   "bigint",
		"boolean":  "tinyint(1)",
		"string":   "varchar",
		"text":     "text",
		"decimal":  "decimal",
		"float":    "double",
		"date":     "date",
		"time":     "time",
		"datetime": "datetime",
		"binary":   "varbinary",
		"blob":     "longblob",
		"json":     "json",
		"guid":     "char(36)",
	},
	sized:         map[string]bool{"string": true, "binary": true},
	defaultLength: 255,
}

func (p *MysqlPlatform) SupportsSchemas() bool               { return false }
func (p *MysqlPlatform) SupportsSequences() bool             { return false }
func (p *MysqlPlatform) SupportsForeignKeyConstraints() bool { return true }

func mysqlQuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (p *MysqlPlatform) quote(name string) string {
	return quoteName(name, mysqlQuoteIdentifier)
}

func (p *MysqlPlatform) CreateSchemaSQL(name string) (string, error) {
	return "", unsupported("schema %q on mysql", name)
}

func (p *MysqlPlatform) DropForeignKeySQL(fk schema.ForeignKey, table string) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", p.quote(table), mysqlQuoteIdentifier(foreignKeyName(fk, table))), nil
}

func (p *MysqlPlatform) AlterSequenceSQL(seq schema.Sequence) (string, error) {
	return "", unsupported("sequence %q on mysql", seq.Name)
}

func (p *MysqlPlatform) DropSequenceSQL(name string) (string, error) {
	return "", unsupported("sequence %q on mysql", name)
}

func (p *MysqlPlatform) CreateSequenceSQL(seq schema.Sequence) (string, error) {
	return "", unsupported("sequence %q on mysql", seq.Name)
}

func (p *MysqlPlatform) CreateTableSQL(table *schema.Table) ([]string, error) {
	var definitions []string
	for _, column := range table.Columns {
		definitions = append(definitions, p.columnDefinition(column))
	}
	if len(table.PrimaryKey) > 0 {
		definitions = append(definitions, fmt.Sprintf("PRIMARY KEY (%s)", quoteNames(table.PrimaryKey, mysqlQuoteIdentifier)))
	}
	for _, index := range table.Indexes {
		definitions = append(definitions, p.indexDefinition(index))
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", p.quote(table.Name), strings.Join(definitions, ",\n  "))
	if table.Comment != "" {
		ddl += " COMMENT = " + quoteString(table.Comment)
	}
	return []string{ddl}, nil
}

func (p *MysqlPlatform) CreateForeignKeySQL(fk schema.ForeignKey, table string) (string, error) {
	return fmt.Sprintf(
		"ALTER TABLE %s ADD CONSTRAINT %s %s",
		p.quote(table), mysqlQuoteIdentifier(foreignKeyName(fk, table)), foreignKeyDefinition(fk, mysqlQuoteIdentifier),
	), nil
}

func (p *MysqlPlatform) DropTableSQL(name string) (string, error) {
	return "DROP TABLE " + p.quote(name), nil
}

func (p *MysqlPlatform) AlterTableSQL(diff *schema.TableDiff) ([]string, error) {
	prefix := "ALTER TABLE " + p.quote(diff.Name)
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
			ddls = append(ddls, prefix+" DROP PRIMARY KEY")
			continue
		}
		ddls = append(ddls, fmt.Sprintf("%s DROP INDEX %s", prefix, mysqlQuoteIdentifier(index.Name)))
	}

	for _, renamed := range diff.RenamedColumns {
		ddls = append(ddls, fmt.Sprintf("%s CHANGE COLUMN %s %s", prefix, mysqlQuoteIdentifier(renamed.From), p.columnDefinition(renamed.Column)))
	}
	for _, column := range diff.RemovedColumns {
		ddls = append(ddls, fmt.Sprintf("%s DROP COLUMN %s", prefix, mysqlQuoteIdentifier(column.Name)))
	}
	for _, column := range diff.AddedColumns {
		ddls = append(ddls, fmt.Sprintf("%s ADD COLUMN %s", prefix, p.columnDefinition(column)))
	}
	for _, changed := range diff.ChangedColumns {
		ddls = append(ddls, fmt.Sprintf("%s MODIFY COLUMN %s", prefix, p.columnDefinition(changed.Column)))
	}

	for _, renamed := range diff.RenamedIndexes {
		ddls = append(ddls, fmt.Sprintf("%s RENAME INDEX %s TO %s", prefix, mysqlQuoteIdentifier(renamed.From), mysqlQuoteIdentifier(renamed.Index.Name)))
	}
	for _, index := range addedIndexes(diff) {
		ddls = append(ddls, fmt.Sprintf("%s ADD %s", prefix, p.indexDefinition(index)))
	}
	for _, fk := range addedForeignKeys(diff) {
		ddl, err := p.CreateForeignKeySQL(fk, diff.Name)
		if err != nil {
			return nil, err
		}
		ddls = append(ddls, ddl)
	}

	if diff.NewName != "" {
		ddls = append(ddls, fmt.Sprintf("%s RENAME TO %s", prefix, p.quote(diff.NewName)))
	}
	return ddls, nil
}

func (p *MysqlPlatform) columnDefinition(column schema.Column) string {
	ddl := mysqlQuoteIdentifier(column.Name) + " " + mysqlTypes.render(column)
	if column.Unsigned {
		ddl += " UNSIGNED"
	}
	if column.NotNull {
		ddl += " NOT NULL"
	} else {
		ddl += " NULL"
	}
	if column.Default != nil {
		ddl += " DEFAULT " + *column.Default
	}
	if column.AutoIncrement {
		ddl += " AUTO_INCREMENT"
	}
	if column.Comment != "" {
		ddl += " COMMENT " + quoteString(column.Comment)
	}
	return ddl
}

func (p *MysqlPlatform) indexDefinition(index schema.Index) string {
	columns := quoteNames(index.Columns, mysqlQuoteIdentifier)
	switch {
	case index.Primary:
		return fmt.Sprintf("PRIMARY KEY (%s)", columns)
	case index.Unique:
		return fmt.Sprintf("UNIQUE KEY %s (%s)", mysqlQuoteIdentifier(index.Name), columns)
	default:
		return fmt.Sprintf("KEY %s (%s)", mysqlQuoteIdentifier(index.Name), columns)
	}
}
