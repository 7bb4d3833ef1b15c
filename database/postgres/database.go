package postgres

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/lib/pq"
	"github.com/sqldef/schemadiff/database"
	"github.com/sqldef/schemadiff/schema"
)

type PostgresDatabase struct {
	config        database.Config
	db            *sql.DB
	defaultSchema *string
}

func NewDatabase(config database.Config) (database.Database, error) {
	db, err := sql.Open("postgres", postgresBuildDSN(config))
	if err != nil {
		return nil, err
	}
	return newDatabase(db, config), nil
}

func newDatabase(db *sql.DB, config database.Config) *PostgresDatabase {
	return &PostgresDatabase{
		db:     db,
		config: config,
	}
}

func (d *PostgresDatabase) ExportSchema() (*schema.Schema, error) {
	// Resolve it before the tables are exported concurrently.
	defaultSchema := d.GetDefaultSchema()

	namespaces, err := d.schemas()
	if err != nil {
		return nil, err
	}
	sequences, err := d.sequences()
	if err != nil {
		return nil, err
	}
	tableNames, err := d.tableNames()
	if err != nil {
		return nil, err
	}
	slog.Debug("Exporting PostgreSQL schema", "default_schema", defaultSchema, "tables", len(tableNames))

	tables, err := database.ConcurrentMapFuncWithError(tableNames, d.config.DumpConcurrency, d.exportTable)
	if err != nil {
		return nil, err
	}
	return &schema.Schema{
		Namespaces: namespaces,
		Sequences:  sequences,
		Tables:     tables,
	}, nil
}

func (d *PostgresDatabase) schemas() ([]string, error) {
	rows, err := d.db.Query(`
		select nspname from pg_catalog.pg_namespace
		where nspname not in ('information_schema', 'public')
		and nspname not like 'pg\_%'
		order by nspname asc;
	`)
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

// sequences returns the sequences which are neither owned by a serial column
// nor backing an identity column.
func (d *PostgresDatabase) sequences() ([]schema.Sequence, error) {
	rows, err := d.db.Query(`
		select n.nspname, c.relname, s.seqincrement, s.seqstart, s.seqcache
		from pg_catalog.pg_sequence s
		inner join pg_catalog.pg_class c on c.oid = s.seqrelid
		inner join pg_catalog.pg_namespace n on n.oid = c.relnamespace
		where not exists (select * from pg_catalog.pg_depend d where d.objid = c.oid and d.deptype in ('a', 'i', 'e'))
		order by n.nspname asc, c.relname asc;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sequences []schema.Sequence
	for rows.Next() {
		var namespace, name string
		var seq schema.Sequence
		if err := rows.Scan(&namespace, &name, &seq.Increment, &seq.Start, &seq.Cache); err != nil {
			return nil, err
		}
		if !d.inTargetSchema(namespace) {
			continue
		}
		seq.Name = d.qualify(namespace, name)
		// CACHE 1 is the default.
		if seq.Cache <= 1 {
			seq.Cache = 0
		}
		sequences = append(sequences, seq)
	}
	return sequences, rows.Err()
}

func (d *PostgresDatabase) tableNames() ([]string, error) {
	rows, err := d.db.Query(`
		select n.nspname as table_schema, relname as table_name from pg_catalog.pg_class c
		inner join pg_catalog.pg_namespace n on c.relnamespace = n.oid
		where n.nspname not in ('information_schema', 'pg_catalog')
		and c.relkind in ('r', 'p')
		and c.relpersistence in ('p', 'u')
		and c.relispartition = false
		and not exists (select * from pg_catalog.pg_depend d where c.oid = d.objid and d.deptype = 'e')
		order by n.nspname asc, relname asc;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var namespace, name string
		if err := rows.Scan(&namespace, &name); err != nil {
			return nil, err
		}
		if !d.inTargetSchema(namespace) {
			continue
		}
		tables = append(tables, namespace+"."+name)
	}
	return tables, rows.Err()
}

func (d *PostgresDatabase) exportTable(qualifiedName string) (*schema.Table, error) {
	namespace, name := splitTableName(qualifiedName, d.GetDefaultSchema())
	table := &schema.Table{Name: d.qualify(namespace, name)}

	var err error
	if table.Columns, err = d.getColumns(namespace, name); err != nil {
		return nil, fmt.Errorf("columns of %s: %w", qualifiedName, err)
	}
	if table.PrimaryKey, err = d.getPrimaryKeyColumns(namespace, name); err != nil {
		return nil, fmt.Errorf("primary key of %s: %w", qualifiedName, err)
	}
	if table.Indexes, err = d.getIndexes(namespace, name); err != nil {
		return nil, fmt.Errorf("indexes of %s: %w", qualifiedName, err)
	}
	if table.ForeignKeys, err = d.getForeignKeys(namespace, name); err != nil {
		return nil, fmt.Errorf("foreign keys of %s: %w", qualifiedName, err)
	}
	if table.Comment, err = d.getTableComment(namespace, name); err != nil {
		return nil, fmt.Errorf("comment of %s: %w", qualifiedName, err)
	}
	return table, nil
}

func (d *PostgresDatabase) getColumns(namespace, table string) ([]schema.Column, error) {
	const query = `SELECT
		a.attname,
		format_type(a.atttypid, a.atttypmod),
		a.attnotnull,
		pg_get_expr(ad.adbin, ad.adrelid),
		a.attidentity,
		col_description(a.attrelid, a.attnum)
	FROM pg_catalog.pg_attribute a
	INNER JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
	INNER JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	LEFT JOIN pg_catalog.pg_attrdef ad ON ad.adrelid = a.attrelid AND ad.adnum = a.attnum
	WHERE n.nspname = $1 AND c.relname = $2 AND a.attnum > 0 AND NOT a.attisdropped
	ORDER BY a.attnum`
	rows, err := d.db.Query(query, namespace, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var name, formattedType, identity string
		var notNull bool
		var dflt, comment sql.NullString
		if err := rows.Scan(&name, &formattedType, &notNull, &dflt, &identity, &comment); err != nil {
			return nil, err
		}
		column := database.ParseColumnType(name, normalizeTypeName(formattedType))
		column.NotNull = notNull
		column.Comment = comment.String
		switch {
		case identity == "a" || identity == "d":
			column.AutoIncrement = true
		case dflt.Valid && strings.HasPrefix(dflt.String, "nextval("):
			// serial columns
			column.AutoIncrement = true
		case dflt.Valid:
			column.Default = &dflt.String
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

// normalizeTypeName drops the "without time zone" PostgreSQL appends to
// plain timestamp and time types, and abbreviates "with time zone".
func normalizeTypeName(formattedType string) string {
	formattedType = strings.Replace(formattedType, " without time zone", "", 1)
	if strings.HasPrefix(formattedType, "timestamp") && strings.HasSuffix(formattedType, " with time zone") {
		return "timestamptz" + strings.TrimSuffix(strings.TrimPrefix(formattedType, "timestamp"), " with time zone")
	}
	return formattedType
}

func (d *PostgresDatabase) getPrimaryKeyColumns(namespace, table string) ([]string, error) {
	const query = `SELECT
	tc.table_schema, tc.constraint_name, tc.table_name, kcu.column_name
FROM
	information_schema.table_constraints AS tc
	JOIN information_schema.key_column_usage AS kcu
		USING (table_schema, table_name, constraint_name)
WHERE constraint_type = 'PRIMARY KEY' AND tc.table_schema=$1 AND tc.table_name=$2 ORDER BY kcu.ordinal_position`
	rows, err := d.db.Query(query, namespace, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columnNames []string
	var tableSchema, constraintName, tableName string
	for rows.Next() {
		var columnName string
		if err := rows.Scan(&tableSchema, &constraintName, &tableName, &columnName); err != nil {
			return nil, err
		}
		columnNames = append(columnNames, columnName)
	}
	return columnNames, rows.Err()
}

// getIndexes returns the plain column indexes of a table. Expression indexes
// and the ones backing the primary key are left out.
func (d *PostgresDatabase) getIndexes(namespace, table string) ([]schema.Index, error) {
	const query = `SELECT
		ic.relname,
		ix.indisunique,
		array(
			SELECT a.attname
			FROM unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ordinality)
			INNER JOIN pg_catalog.pg_attribute a ON a.attrelid = ix.indrelid AND a.attnum = k.attnum
			ORDER BY k.ordinality
		)
	FROM pg_catalog.pg_index ix
	INNER JOIN pg_catalog.pg_class ic ON ic.oid = ix.indexrelid
	INNER JOIN pg_catalog.pg_class c ON c.oid = ix.indrelid
	INNER JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1 AND c.relname = $2
	AND NOT ix.indisprimary
	AND NOT 0 = ANY(ix.indkey)
	AND ix.indpred IS NULL
	ORDER BY ic.relname`
	rows, err := d.db.Query(query, namespace, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []schema.Index
	for rows.Next() {
		var index schema.Index
		if err := rows.Scan(&index.Name, &index.Unique, pq.Array(&index.Columns)); err != nil {
			return nil, err
		}
		indexes = append(indexes, index)
	}
	return indexes, rows.Err()
}

// refs: https://gist.github.com/PickledDragon/dd41f4e72b428175354d
func (d *PostgresDatabase) getForeignKeys(namespace, table string) ([]schema.ForeignKey, error) {
	const query = `SELECT
		c.conname  AS constraint_name,
		a1.attname AS column_name,
		n2.nspname AS foreign_table_schema,
		r2.relname AS foreign_table_name,
		a2.attname AS foreign_column_name,
		CASE c.confupdtype
			WHEN 'c' THEN 'CASCADE'
			WHEN 'n' THEN 'SET NULL'
			WHEN 'd' THEN 'SET DEFAULT'
			WHEN 'r' THEN 'RESTRICT'
			ELSE ''
		END AS foreign_update_rule,
		CASE c.confdeltype
			WHEN 'c' THEN 'CASCADE'
			WHEN 'n' THEN 'SET NULL'
			WHEN 'd' THEN 'SET DEFAULT'
			WHEN 'r' THEN 'RESTRICT'
			ELSE ''
		END AS foreign_delete_rule
	FROM pg_constraint      AS c
	INNER JOIN pg_class     AS r1 ON r1.oid = c.conrelid
	INNER JOIN pg_class     AS r2 ON r2.oid = c.confrelid
	INNER JOIN pg_namespace AS n1 ON n1.oid = r1.relnamespace
	INNER JOIN pg_namespace AS n2 ON n2.oid = r2.relnamespace
	CROSS JOIN UNNEST(c.conkey, c.confkey) with ordinality AS k(key1, key2, ordinality)
	INNER JOIN pg_attribute AS a1
		ON  a1.attrelid = c.conrelid
		AND a1.attnum   = k.key1
	INNER JOIN pg_attribute AS a2
		ON  a2.attrelid = c.confrelid
		AND a2.attnum   = k.key2
	WHERE c.contype = 'f' AND n1.nspname = $1 AND r1.relname = $2
	ORDER BY constraint_name, k.ordinality`
	rows, err := d.db.Query(query, namespace, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []schema.ForeignKey
	for rows.Next() {
		var name, column, foreignSchema, foreignTable, foreignColumn, onUpdate, onDelete string
		if err := rows.Scan(&name, &column, &foreignSchema, &foreignTable, &foreignColumn, &onUpdate, &onDelete); err != nil {
			return nil, err
		}
		if len(fks) == 0 || fks[len(fks)-1].Name != name {
			fks = append(fks, schema.ForeignKey{
				Name:            name,
				ReferencedTable: d.qualify(foreignSchema, foreignTable),
				OnUpdate:        onUpdate,
				OnDelete:        onDelete,
			})
		}
		fk := &fks[len(fks)-1]
		fk.Columns = append(fk.Columns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, foreignColumn)
	}
	return fks, rows.Err()
}

func (d *PostgresDatabase) getTableComment(namespace, table string) (string, error) {
	const query = `SELECT coalesce(obj_description(c.oid, 'pg_class'), '')
	FROM pg_catalog.pg_class c
	INNER JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1 AND c.relname = $2`
	var comment string
	if err := d.db.QueryRow(query, namespace, table).Scan(&comment); err != nil {
		return "", err
	}
	return comment, nil
}

func (d *PostgresDatabase) inTargetSchema(namespace string) bool {
	return d.config.TargetSchema == nil || slices.Contains(d.config.TargetSchema, namespace)
}

// qualify returns the name used in snapshots: objects of the default schema
// are written without it.
func (d *PostgresDatabase) qualify(namespace, name string) string {
	if namespace == d.GetDefaultSchema() {
		return name
	}
	return namespace + "." + name
}

func (d *PostgresDatabase) DB() *sql.DB {
	return d.db
}

func (d *PostgresDatabase) Close() error {
	return d.db.Close()
}

func (d *PostgresDatabase) GetDefaultSchema() string {
	if d.defaultSchema != nil {
		return *d.defaultSchema
	}

	var defaultSchema string
	if err := d.db.QueryRow(`SELECT current_schema()`).Scan(&defaultSchema); err != nil {
		slog.Debug("Failed to get the current schema", "error", err)
		return ""
	}
	d.defaultSchema = &defaultSchema
	return defaultSchema
}

func postgresBuildDSN(config database.Config) string {
	user := config.User
	password := config.Password
	dbName := config.DbName
	host := ""
	var options []string

	if config.Socket == "" {
		host = fmt.Sprintf("%s:%d", config.Host, config.Port)
	} else {
		// postgres://user:@%2Fvar%2Frun%2Fpostgresql/dbname would be rejected
		// by the URL parser, so the socket goes to the host option.
		options = append(options, fmt.Sprintf("host=%s", config.Socket))
	}

	if config.SslMode != "" {
		options = append(options, fmt.Sprintf("sslmode=%s", config.SslMode))
	} else if sslmode, ok := os.LookupEnv("PGSSLMODE"); ok {
		options = append(options, fmt.Sprintf("sslmode=%s", sslmode))
	}
	for _, env := range []struct{ name, option string }{
		{"PGSSLROOTCERT", "sslrootcert"},
		{"PGSSLCERT", "sslcert"},
		{"PGSSLKEY", "sslkey"},
	} {
		if value, ok := os.LookupEnv(env.name); ok {
			options = append(options, fmt.Sprintf("%s=%s", env.option, value))
		}
	}

	// `QueryEscape` instead of `PathEscape` so that colon can be escaped.
	return fmt.Sprintf("postgres://%s:%s@%s/%s?%s", url.QueryEscape(user), url.QueryEscape(password), host, dbName, strings.Join(options, "&"))
}

func splitTableName(table string, defaultSchema string) (string, string) {
	namespace := defaultSchema
	schemaTable := strings.SplitN(table, ".", 2)
	if len(schemaTable) == 2 {
		namespace = schemaTable[0]
		table = schemaTable[1]
	}
	return namespace, table
}
