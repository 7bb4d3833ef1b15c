package sqlite3

import (
	"database/sql"
	"regexp"

	"github.com/sqldef/schemadiff/database"
	"github.com/sqldef/schemadiff/schema"
	_ "modernc.org/sqlite"
)

var autoIncrementPattern = regexp.MustCompile(`(?i)\bAUTOINCREMENT\b`)

type Sqlite3Database struct {
	config database.Config
	db     *sql.DB
}

func NewDatabase(config database.Config) (database.Database, error) {
	db, err := sql.Open("sqlite", config.DbName)
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" opens its own database.
	db.SetMaxOpenConns(1)
	return &Sqlite3Database{
		db:     db,
		config: config,
	}, nil
}

func (d *Sqlite3Database) ExportSchema() (*schema.Schema, error) {
	tableNames, err := d.tableNames()
	if err != nil {
		return nil, err
	}
	tables, err := database.ConcurrentMapFuncWithError(tableNames, 0, d.exportTable)
	if err != nil {
		return nil, err
	}
	return &schema.Schema{Tables: tables}, nil
}

func (d *Sqlite3Database) tableNames() ([]string, error) {
	rows, err := d.db.Query(
		`select name from sqlite_master where type = 'table' and name not like 'sqlite_%' order by name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (d *Sqlite3Database) exportTable(name string) (*schema.Table, error) {
	var ddl string
	if err := d.db.QueryRow(`select sql from sqlite_master where type = 'table' and name = ?`, name).Scan(&ddl); err != nil {
		return nil, err
	}

	table := &schema.Table{Name: name}
	if err := d.exportColumns(table, autoIncrementPattern.MatchString(ddl)); err != nil {
		return nil, err
	}
	if err := d.exportIndexes(table); err != nil {
		return nil, err
	}
	if err := d.exportForeignKeys(table); err != nil {
		return nil, err
	}
	return table, nil
}

func (d *Sqlite3Database) exportColumns(table *schema.Table, autoIncrement bool) error {
	rows, err := d.db.Query(`select name, type, "notnull", dflt_value, pk from pragma_table_info(?) order by cid`, table.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	primaryKey := map[int]string{}
	for rows.Next() {
		var name, typeName string
		var notNull bool
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&name, &typeName, &notNull, &dflt, &pk); err != nil {
			return err
		}
		column := database.ParseColumnType(name, typeName)
		column.NotNull = notNull
		if dflt.Valid {
			column.Default = &dflt.String
		}
		if pk > 0 {
			primaryKey[pk] = name
		}
		table.Columns = append(table.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := 1; i <= len(primaryKey); i++ {
		table.PrimaryKey = append(table.PrimaryKey, primaryKey[i])
	}
	// Only an INTEGER PRIMARY KEY column can be AUTOINCREMENT.
	if autoIncrement && len(table.PrimaryKey) == 1 {
		for i := range table.Columns {
			if table.Columns[i].Name == table.PrimaryKey[0] {
				table.Columns[i].AutoIncrement = true
				table.Columns[i].NotNull = true
			}
		}
	}
	return nil
}

func (d *Sqlite3Database) exportIndexes(table *schema.Table) error {
	rows, err := d.db.Query(`select name, "unique" from pragma_index_list(?) where origin = 'c' order by name`, table.Name)
	if err != nil {
		return err
	}
	var indexes []schema.Index
	for rows.Next() {
		var index schema.Index
		if err := rows.Scan(&index.Name, &index.Unique); err != nil {
			rows.Close()
			return err
		}
		indexes = append(indexes, index)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, index := range indexes {
		columns, err := d.indexColumns(index.Name)
		if err != nil {
			return err
		}
		index.Columns = columns
		table.Indexes = append(table.Indexes, index)
	}
	return nil
}

func (d *Sqlite3Database) indexColumns(index string) ([]string, error) {
	rows, err := d.db.Query(`select name from pragma_index_info(?) order by seqno`, index)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

// exportForeignKeys reads the foreign keys of a table. SQLite does not keep
// their constraint names, so they are exported unnamed.
func (d *Sqlite3Database) exportForeignKeys(table *schema.Table) error {
	rows, err := d.db.Query(
		`select id, "table", "from", "to", on_update, on_delete from pragma_foreign_key_list(?) order by id, seq`,
		table.Name,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	lastID := -1
	for rows.Next() {
		var id int
		var referencedTable, from, to, onUpdate, onDelete string
		if err := rows.Scan(&id, &referencedTable, &from, &to, &onUpdate, &onDelete); err != nil {
			return err
		}
		if id != lastID {
			table.ForeignKeys = append(table.ForeignKeys, schema.ForeignKey{
				ReferencedTable: referencedTable,
				OnDelete:        onDelete,
				OnUpdate:        onUpdate,
			})
			lastID = id
		}
		fk := &table.ForeignKeys[len(table.ForeignKeys)-1]
		fk.Columns = append(fk.Columns, from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, to)
	}
	return rows.Err()
}

func (d *Sqlite3Database) DB() *sql.DB {
	return d.db
}

func (d *Sqlite3Database) Close() error {
	return d.db.Close()
}

func (d *Sqlite3Database) GetDefaultSchema() string {
	return ""
}
