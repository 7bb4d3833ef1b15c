package mssql

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/sqldef/schemadiff/database"
	"github.com/sqldef/schemadiff/schema"
	"github.com/sqldef/schemadiff/util"
)

const defaultSchema = "dbo"

// ErrPortWithoutHost is returned for a connection config which has a port but no host.
var ErrPortWithoutHost = errors.New("a port was given without a host")

type MssqlDatabase struct {
	config database.Config
	db     *sql.DB
}

type tableRef struct {
	schema string
	name   string
}

func (t tableRef) String() string {
	return t.schema + "." + t.name
}

func NewDatabase(config database.Config) (database.Database, error) {
	dsn, err := mssqlBuildDSN(config)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	return newDatabase(db, config), nil
}

func newDatabase(db *sql.DB, config database.Config) *MssqlDatabase {
	return &MssqlDatabase{
		db:     db,
		config: config,
	}
}

func (d *MssqlDatabase) ExportSchema() (*schema.Schema, error) {
	namespaces, err := d.schemas()
	if err != nil {
		return nil, err
	}
	sequences, err := d.sequences()
	if err != nil {
		return nil, err
	}
	refs, err := d.tableRefs()
	if err != nil {
		return nil, err
	}
	slog.Debug("Exporting SQL Server schema", "tables", util.TransformSlice(refs, tableRef.String))

	tables, err := database.ConcurrentMapFuncWithError(refs, d.config.DumpConcurrency, d.exportTable)
	if err != nil {
		return nil, err
	}
	return &schema.Schema{
		Namespaces: namespaces,
		Sequences:  sequences,
		Tables:     tables,
	}, nil
}

// schemas returns the user schemas. Ids up to 4 are dbo, guest, INFORMATION_SCHEMA
// and sys, and the fixed database roles start at 16384.
func (d *MssqlDatabase) schemas() ([]string, error) {
	rows, err := d.db.Query(`SELECT name FROM sys.schemas WHERE schema_id > 4 AND schema_id < 16384 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if d.inTargetSchema(name) {
			schemas = append(schemas, name)
		}
	}
	return schemas, rows.Err()
}

func (d *MssqlDatabase) sequences() ([]schema.Sequence, error) {
	rows, err := d.db.Query(`SELECT
	SCHEMA_NAME(schema_id),
	name,
	CAST(increment AS bigint),
	CAST(start_value AS bigint),
	CASE WHEN is_cached = 1 THEN CAST(ISNULL(cache_size, 0) AS bigint) ELSE 0 END
FROM sys.sequences
ORDER BY 1, 2`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sequences []schema.Sequence
	for rows.Next() {
		var ref tableRef
		var seq schema.Sequence
		if err := rows.Scan(&ref.schema, &ref.name, &seq.Increment, &seq.Start, &seq.Cache); err != nil {
			return nil, err
		}
		if !d.inTargetSchema(ref.schema) {
			continue
		}
		seq.Name = qualify(ref)
		sequences = append(sequences, seq)
	}
	return sequences, rows.Err()
}

func (d *MssqlDatabase) tableRefs() ([]tableRef, error) {
	rows, err := d.db.Query(`SELECT SCHEMA_NAME(schema_id), name FROM sys.tables WHERE is_ms_shipped = 0 ORDER BY 1, 2`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []tableRef
	for rows.Next() {
		var ref tableRef
		if err := rows.Scan(&ref.schema, &ref.name); err != nil {
			return nil, err
		}
		if d.inTargetSchema(ref.schema) {
			refs = append(refs, ref)
		}
	}
	return refs, rows.Err()
}

func (d *MssqlDatabase) exportTable(ref tableRef) (*schema.Table, error) {
	table := &schema.Table{Name: qualify(ref)}

	var err error
	if table.Columns, err = d.getColumns(ref); err != nil {
		return nil, fmt.Errorf("columns of %s: %w", ref, err)
	}
	if err = d.exportIndexes(table, ref); err != nil {
		return nil, fmt.Errorf("indexes of %s: %w", ref, err)
	}
	if table.ForeignKeys, err = d.getForeignKeys(ref); err != nil {
		return nil, fmt.Errorf("foreign keys of %s: %w", ref, err)
	}
	return table, nil
}

func (d *MssqlDatabase) getColumns(ref tableRef) ([]schema.Column, error) {
	rows, err := d.db.Query(`SELECT
	c.name,
	tp.name,
	c.max_length,
	c.precision,
	c.scale,
	c.is_nullable,
	c.is_identity,
	OBJECT_DEFINITION(c.default_object_id)
FROM sys.columns c
JOIN sys.types tp ON c.user_type_id = tp.user_type_id
WHERE c.object_id = OBJECT_ID(QUOTENAME(@p1) + '.' + QUOTENAME(@p2))
ORDER BY c.column_id`, ref.schema, ref.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var name, dataType string
		var maxLength, precision, scale int
		var nullable, identity bool
		var dflt sql.NullString
		if err := rows.Scan(&name, &dataType, &maxLength, &precision, &scale, &nullable, &identity, &dflt); err != nil {
			return nil, err
		}
		column := buildColumn(name, strings.ToLower(dataType), maxLength, precision, scale)
		column.NotNull = !nullable
		column.AutoIncrement = identity
		if dflt.Valid {
			value := unwrapParens(dflt.String)
			column.Default = &value
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

func buildColumn(name, dataType string, maxLength, precision, scale int) schema.Column {
	column := schema.Column{Name: name, Type: dataType}
	switch dataType {
	case "char", "varchar", "nchar", "nvarchar", "binary", "varbinary":
		if maxLength == -1 {
			// (max)
			if strings.HasSuffix(dataType, "binary") {
				column.Type = "blob"
			} else {
				column.Type = "text"
			}
			return column
		}
		// max_length is in bytes.
		if strings.HasPrefix(dataType, "n") {
			maxLength /= 2
		}
		column.Length = &maxLength
	case "decimal", "numeric":
		column.Precision = &precision
		column.Scale = &scale
	}
	return column
}

// unwrapParens removes the parentheses SQL Server puts around default
// definitions: ((0)) is 0 and ('x') is 'x'.
func unwrapParens(definition string) string {
	for len(definition) >= 2 && definition[0] == '(' && closingParen(definition) == len(definition)-1 {
		definition = strings.TrimSpace(definition[1 : len(definition)-1])
	}
	return definition
}

// closingParen returns the index of the parenthesis which closes the one at 0.
func closingParen(s string) int {
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\'':
			inString = !inString
		case inString:
		case s[i] == '(':
			depth++
		case s[i] == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func (d *MssqlDatabase) exportIndexes(table *schema.Table, ref tableRef) error {
	rows, err := d.db.Query(`SELECT
	ind.name,
	ind.is_primary_key,
	ind.is_unique,
	COL_NAME(ic.object_id, ic.column_id)
FROM sys.indexes ind
JOIN sys.index_columns ic ON ic.object_id = ind.object_id AND ic.index_id = ind.index_id
WHERE ind.object_id = OBJECT_ID(QUOTENAME(@p1) + '.' + QUOTENAME(@p2)) AND ic.is_included_column = 0
ORDER BY ind.index_id, ic.key_ordinal`, ref.schema, ref.name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, column string
		var primary, unique bool
		if err := rows.Scan(&name, &primary, &unique, &column); err != nil {
			return err
		}
		if primary {
			table.PrimaryKey = append(table.PrimaryKey, column)
			continue
		}
		if len(table.Indexes) == 0 || table.Indexes[len(table.Indexes)-1].Name != name {
			table.Indexes = append(table.Indexes, schema.Index{Name: name, Unique: unique})
		}
		index := &table.Indexes[len(table.Indexes)-1]
		index.Columns = append(index.Columns, column)
	}
	return rows.Err()
}

func (d *MssqlDatabase) getForeignKeys(ref tableRef) ([]schema.ForeignKey, error) {
	rows, err := d.db.Query(`SELECT
	f.name,
	COL_NAME(fc.parent_object_id, fc.parent_column_id),
	SCHEMA_NAME(rt.schema_id),
	rt.name,
	COL_NAME(fc.referenced_object_id, fc.referenced_column_id),
	f.update_referential_action_desc,
	f.delete_referential_action_desc
FROM sys.foreign_keys f
JOIN sys.foreign_key_columns fc ON fc.constraint_object_id = f.object_id
JOIN sys.tables rt ON rt.object_id = f.referenced_object_id
WHERE f.parent_object_id = OBJECT_ID(QUOTENAME(@p1) + '.' + QUOTENAME(@p2))
ORDER BY f.name, fc.constraint_column_id`, ref.schema, ref.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []schema.ForeignKey
	for rows.Next() {
		var name, column, referencedColumn, onUpdate, onDelete string
		var referenced tableRef
		if err := rows.Scan(&name, &column, &referenced.schema, &referenced.name, &referencedColumn, &onUpdate, &onDelete); err != nil {
			return nil, err
		}
		if len(fks) == 0 || fks[len(fks)-1].Name != name {
			fks = append(fks, schema.ForeignKey{
				Name:            name,
				ReferencedTable: qualify(referenced),
				OnUpdate:        referentialAction(onUpdate),
				OnDelete:        referentialAction(onDelete),
			})
		}
		fk := &fks[len(fks)-1]
		fk.Columns = append(fk.Columns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, referencedColumn)
	}
	return fks, rows.Err()
}

// referentialAction turns NO_ACTION or SET_NULL of sys.foreign_keys into the DDL spelling.
func referentialAction(desc string) string {
	if desc == "NO_ACTION" {
		return ""
	}
	return strings.ReplaceAll(desc, "_", " ")
}

func (d *MssqlDatabase) inTargetSchema(namespace string) bool {
	return d.config.TargetSchema == nil || slices.Contains(d.config.TargetSchema, namespace)
}

func qualify(ref tableRef) string {
	if ref.schema == defaultSchema {
		return ref.name
	}
	return ref.String()
}

func (d *MssqlDatabase) DB() *sql.DB {
	return d.db
}

func (d *MssqlDatabase) Close() error {
	return d.db.Close()
}

func (d *MssqlDatabase) GetDefaultSchema() string {
	return defaultSchema
}

func mssqlBuildDSN(config database.Config) (string, error) {
	host := config.Host
	if config.Port != 0 {
		if host == "" {
			return "", ErrPortWithoutHost
		}
		host += ":" + strconv.Itoa(config.Port)
	}

	query := url.Values{}
	query.Add("database", config.DbName)
	if config.SslMode != "" {
		query.Add("encrypt", config.SslMode)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(config.User, config.Password),
		Host:     host,
		RawQuery: query.Encode(),
	}
	return u.String(), nil
}
