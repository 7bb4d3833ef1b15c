package mysql

import (
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	driver "github.com/go-sql-driver/mysql"
	"github.com/sqldef/schemadiff/database"
	"github.com/sqldef/schemadiff/schema"
	"github.com/sqldef/schemadiff/util"
)

// Types whose character_maximum_length is part of the declared type.
var sizedTypes = map[string]bool{
	"char":      true,
	"varchar":   true,
	"binary":    true,
	"varbinary": true,
}

var numericTypes = map[string]bool{
	"tinyint":   true,
	"smallint":  true,
	"mediumint": true,
	"int":       true,
	"bigint":    true,
	"decimal":   true,
	"float":     true,
	"double":    true,
	"bit":       true,
}

type MysqlDatabase struct {
	config database.Config
	db     *sql.DB
}

type tableInfo struct {
	name    string
	comment string
}

func NewDatabase(config database.Config) (database.Database, error) {
	if config.SslMode == "custom" {
		if err := registerTLSConfig(config.SslCa); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("mysql", mysqlBuildDSN(config))
	if err != nil {
		return nil, err
	}
	return newDatabase(db, config), nil
}

func newDatabase(db *sql.DB, config database.Config) *MysqlDatabase {
	return &MysqlDatabase{
		db:     db,
		config: config,
	}
}

// ExportSchema exports the tables of the connected database. MySQL has
// neither namespaces nor sequences.
func (d *MysqlDatabase) ExportSchema() (*schema.Schema, error) {
	tables, err := d.tables()
	if err != nil {
		return nil, err
	}
	slog.Debug("Exporting MySQL schema", "database", d.config.DbName, "tables", len(tables))

	exported, err := database.ConcurrentMapFuncWithError(tables, d.config.DumpConcurrency, d.exportTable)
	if err != nil {
		return nil, err
	}
	return &schema.Schema{Tables: exported}, nil
}

func (d *MysqlDatabase) tables() ([]tableInfo, error) {
	rows, err := d.db.Query(
		"select table_name, table_comment from information_schema.tables where table_schema = database() and table_type = 'BASE TABLE' order by table_name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []tableInfo
	for rows.Next() {
		var table tableInfo
		if err := rows.Scan(&table.name, &table.comment); err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, rows.Err()
}

func (d *MysqlDatabase) exportTable(info tableInfo) (*schema.Table, error) {
	table := &schema.Table{Name: info.name, Comment: info.comment}

	var err error
	if table.Columns, err = d.getColumns(info.name); err != nil {
		return nil, fmt.Errorf("columns of %s: %w", info.name, err)
	}
	if err = d.exportIndexes(table); err != nil {
		return nil, fmt.Errorf("indexes of %s: %w", info.name, err)
	}
	if table.ForeignKeys, err = d.getForeignKeys(info.name); err != nil {
		return nil, fmt.Errorf("foreign keys of %s: %w", info.name, err)
	}
	return table, nil
}

func (d *MysqlDatabase) getColumns(table string) ([]schema.Column, error) {
	rows, err := d.db.Query(`select
		column_name, data_type, column_type, character_maximum_length, numeric_precision, numeric_scale,
		is_nullable, column_default, extra, column_comment
	from information_schema.columns
	where table_schema = database() and table_name = ?
	order by ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var name, dataType, columnType, isNullable, extra, comment string
		var length, precision, scale sql.NullInt64
		var dflt sql.NullString
		if err := rows.Scan(&name, &dataType, &columnType, &length, &precision, &scale, &isNullable, &dflt, &extra, &comment); err != nil {
			return nil, err
		}
		columns = append(columns, buildColumn(columnInfo{
			name:       name,
			dataType:   strings.ToLower(dataType),
			columnType: strings.ToLower(columnType),
			length:     length,
			precision:  precision,
			scale:      scale,
			nullable:   isNullable == "YES",
			dflt:       dflt,
			extra:      strings.ToLower(extra),
			comment:    comment,
		}))
	}
	return columns, rows.Err()
}

type columnInfo struct {
	name, dataType, columnType string
	length, precision, scale   sql.NullInt64
	nullable                   bool
	dflt                       sql.NullString
	extra                      string
	comment                    string
}

func buildColumn(info columnInfo) schema.Column {
	column := schema.Column{
		Name:          info.name,
		Type:          info.dataType,
		NotNull:       !info.nullable,
		Unsigned:      strings.Contains(info.columnType, "unsigned"),
		AutoIncrement: strings.Contains(info.extra, "auto_increment"),
		Comment:       info.comment,
	}
	switch {
	case strings.HasPrefix(info.columnType, "tinyint(1)"):
		column.Type = "boolean"
	case sizedTypes[info.dataType] && info.length.Valid:
		length := int(info.length.Int64)
		column.Length = &length
	case info.dataType == "decimal" && info.precision.Valid:
		precision, scale := int(info.precision.Int64), int(info.scale.Int64)
		column.Precision = &precision
		column.Scale = &scale
	}

	if info.dflt.Valid {
		value := info.dflt.String
		// MySQL returns string literals unquoted, unlike expressions and numbers.
		if !numericTypes[info.dataType] && !strings.Contains(info.extra, "default_generated") && !strings.HasPrefix(value, "'") {
			value = "'" + strings.ReplaceAll(value, "'", "''") + "'"
		}
		column.Default = &value
	}
	return column
}

// exportIndexes reads the primary key and the indexes of a table.
func (d *MysqlDatabase) exportIndexes(table *schema.Table) error {
	rows, err := d.db.Query(`select index_name, non_unique, column_name
	from information_schema.statistics
	where table_schema = database() and table_name = ? and column_name is not null
	order by index_name, seq_in_index`, table.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	indexes := map[string]*schema.Index{}
	for rows.Next() {
		var name, column string
		var nonUnique bool
		if err := rows.Scan(&name, &nonUnique, &column); err != nil {
			return err
		}
		if name == "PRIMARY" {
			table.PrimaryKey = append(table.PrimaryKey, column)
			continue
		}
		index, ok := indexes[name]
		if !ok {
			index = &schema.Index{Name: name, Unique: !nonUnique}
			indexes[name] = index
		}
		index.Columns = append(index.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, index := range util.CanonicalMapIter(indexes) {
		table.Indexes = append(table.Indexes, *index)
	}
	return nil
}

func (d *MysqlDatabase) getForeignKeys(table string) ([]schema.ForeignKey, error) {
	rows, err := d.db.Query(`select
		kcu.constraint_name, kcu.column_name, kcu.referenced_table_name, kcu.referenced_column_name,
		rc.update_rule, rc.delete_rule
	from information_schema.key_column_usage kcu
	inner join information_schema.referential_constraints rc
		on rc.constraint_schema = kcu.constraint_schema and rc.constraint_name = kcu.constraint_name
	where kcu.table_schema = database() and kcu.table_name = ? and kcu.referenced_table_name is not null
	order by kcu.constraint_name, kcu.ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []schema.ForeignKey
	for rows.Next() {
		var name, column, referencedTable, referencedColumn, onUpdate, onDelete string
		if err := rows.Scan(&name, &column, &referencedTable, &referencedColumn, &onUpdate, &onDelete); err != nil {
			return nil, err
		}
		if len(fks) == 0 || fks[len(fks)-1].Name != name {
			fks = append(fks, schema.ForeignKey{
				Name:            name,
				ReferencedTable: referencedTable,
				OnUpdate:        implicitAction(onUpdate),
				OnDelete:        implicitAction(onDelete),
			})
		}
		fk := &fks[len(fks)-1]
		fk.Columns = append(fk.Columns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, referencedColumn)
	}
	return fks, rows.Err()
}

// implicitAction leaves out the referential actions MySQL applies when none is given.
func implicitAction(action string) string {
	switch strings.ToUpper(action) {
	case "NO ACTION", "RESTRICT":
		return ""
	default:
		return action
	}
}

func (d *MysqlDatabase) DB() *sql.DB {
	return d.db
}

func (d *MysqlDatabase) Close() error {
	return d.db.Close()
}

func (d *MysqlDatabase) GetDefaultSchema() string {
	return ""
}

func mysqlBuildDSN(config database.Config) string {
	c := driver.NewConfig()
	c.User = config.User
	c.Passwd = config.Password
	c.DBName = config.DbName
	c.AllowCleartextPasswords = config.MySQLEnableCleartextPlugin
	c.TLSConfig = config.SslMode
	if config.Socket == "" {
		c.Net = "tcp"
		c.Addr = fmt.Sprintf("%s:%d", config.Host, config.Port)
	} else {
		c.Net = "unix"
		c.Addr = config.Socket
	}
	return c.FormatDSN()
}

func registerTLSConfig(pemPath string) error {
	rootCertPool := x509.NewCertPool()
	pem, err := os.ReadFile(pemPath)
	if err != nil {
		return err
	}

	if ok := rootCertPool.AppendCertsFromPEM(pem); !ok {
		return fmt.Errorf("failed to append PEM")
	}

	return driver.RegisterTLSConfig("custom", &tls.Config{
		RootCAs: rootCertPool,
	})
}
