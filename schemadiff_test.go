package schemadiff

import (
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sqldef/schemadiff/database"
	"github.com/sqldef/schemadiff/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const createUsers = "CREATE TABLE \"users\" (\n  \"id\" integer\n)"

type stubDatabase struct {
	current *schema.Schema
	db      *sql.DB
}

func (d *stubDatabase) ExportSchema() (*schema.Schema, error) { return d.current, nil }
func (d *stubDatabase) DB() *sql.DB                           { return d.db }
func (d *stubDatabase) Close() error                          { return nil }
func (d *stubDatabase) GetDefaultSchema() string              { return "" }

func logsSchema() *schema.Schema {
	return &schema.Schema{Tables: []*schema.Table{{Name: "logs", Columns: []schema.Column{{Name: "id", Type: "integer"}}}}}
}

func writeDesired(t *testing.T, snapshot string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "desired.yml")
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o644))
	return path
}

const desiredUsers = `
tables:
  - name: users
    columns:
      - {name: id, type: integer}
`

func TestRunDryRun(t *testing.T) {
	var out strings.Builder
	err := Run(schema.GeneratorModeSQLite3, &stubDatabase{current: logsSchema()}, &Options{
		DesiredFile: writeDesired(t, desiredUsers),
		DryRun:      true,
		BeforeApply: "PRAGMA foreign_keys = ON",
	}, database.WriterLogger{W: &out})
	require.NoError(t, err)
	assert.Equal(t, "-- dry run --\nPRAGMA foreign_keys = ON\n"+createUsers+";\n-- Skipped: DROP TABLE \"logs\";\n", out.String())
}

func TestRunApply(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(createUsers)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE "logs"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var out strings.Builder
	err = Run(schema.GeneratorModeSQLite3, &stubDatabase{current: logsSchema(), db: db}, &Options{
		DesiredFile: writeDesired(t, desiredUsers),
		EnableDrop:  true,
	}, database.WriterLogger{W: &out})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "-- Apply --\n"+createUsers+";\nDROP TABLE \"logs\";\n", out.String())
}

func TestRunSkipsDropWithoutEnableDrop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(createUsers)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var out strings.Builder
	err = Run(schema.GeneratorModeSQLite3, &stubDatabase{current: logsSchema(), db: db}, &Options{
		DesiredFile: writeDesired(t, desiredUsers),
	}, database.WriterLogger{W: &out})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "-- Skipped: DROP TABLE \"logs\";\n-- Apply --\n"+createUsers+";\n", out.String())
}

func TestRunOnlySkippedDDLs(t *testing.T) {
	var out strings.Builder
	err := Run(schema.GeneratorModeSQLite3, &stubDatabase{current: logsSchema()}, &Options{
		DesiredFile: writeDesired(t, ""),
	}, database.WriterLogger{W: &out})
	require.NoError(t, err)
	assert.Equal(t, "-- Skipped: DROP TABLE \"logs\";\n", out.String())
}

func TestRunNothingModified(t *testing.T) {
	var out strings.Builder
	err := Run(schema.GeneratorModeSQLite3, &stubDatabase{current: logsSchema()}, &Options{
		DesiredFile: writeDesired(t, "tables:\n  - name: LOGS\n    columns:\n      - {name: id, type: int}\n"),
	}, database.WriterLogger{W: &out})
	require.NoError(t, err)
	assert.Equal(t, "-- Nothing is modified --\n", out.String())
}

func TestRunWithTargetTables(t *testing.T) {
	var out strings.Builder
	err := Run(schema.GeneratorModeSQLite3, &stubDatabase{current: logsSchema()}, &Options{
		DesiredFile: writeDesired(t, desiredUsers),
		DryRun:      true,
		EnableDrop:  true,
		Config:      database.GeneratorConfig{SkipTables: []string{"logs"}},
	}, database.WriterLogger{W: &out})
	require.NoError(t, err)
	assert.Equal(t, "-- dry run --\n"+createUsers+";\n", out.String())
}

func TestRunExport(t *testing.T) {
	var out strings.Builder
	err := Run(schema.GeneratorModeSQLite3, &stubDatabase{current: logsSchema()}, &Options{Export: true}, database.WriterLogger{W: &out})
	require.NoError(t, err)

	exported, err := schema.ParseSchema([]byte(out.String()))
	require.NoError(t, err)
	assert.Equal(t, logsSchema(), exported)

	out.Reset()
	err = Run(schema.GeneratorModeSQLite3, &stubDatabase{current: &schema.Schema{}}, &Options{Export: true}, database.WriterLogger{W: &out})
	require.NoError(t, err)
	assert.Equal(t, "-- No table exists --\n", out.String())
}

func TestRunInvalidDesiredFile(t *testing.T) {
	path := writeDesired(t, "tables:\n  - name: users\n    colums: []\n")
	err := Run(schema.GeneratorModeSQLite3, &stubDatabase{current: &schema.Schema{}}, &Options{DesiredFile: path}, database.NullLogger{})
	assert.ErrorContains(t, err, "failed to parse '"+path+"'")

	missing := filepath.Join(t.TempDir(), "missing.yml")
	err = Run(schema.GeneratorModeSQLite3, &stubDatabase{current: &schema.Schema{}}, &Options{DesiredFile: missing}, database.NullLogger{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGenerateDDLs(t *testing.T) {
	desired, err := schema.ParseSchema([]byte(desiredUsers))
	require.NoError(t, err)

	ddls, err := GenerateDDLs(schema.GeneratorModeSQLite3, desired, logsSchema(), database.GeneratorConfig{}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{createUsers, `DROP TABLE "logs"`}, ddls)

	ddls, err = GenerateDDLs(schema.GeneratorModeSQLite3, desired, logsSchema(), database.GeneratorConfig{}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{createUsers}, ddls)

	_, err = GenerateDDLs(schema.GeneratorModeSQLite3, desired, logsSchema(), database.GeneratorConfig{TargetTables: []string{"("}}, true)
	assert.ErrorContains(t, err, "invalid table pattern")
}

func TestGenerateDDLsRetargetedForeignKey(t *testing.T) {
	snapshot := func(referenced string) *schema.Schema {
		s, err := schema.ParseSchema([]byte(`
tables:
  - name: ` + referenced + `
    columns:
      - {name: id, type: bigint, not_null: true}
    primary_key: [id]
  - name: posts
    columns:
      - {name: user_id, type: bigint}
    foreign_keys:
      - {name: posts_user_fk, columns: [user_id], references: ` + referenced + `, referenced_columns: [id]}
`))
		require.NoError(t, err)
		return s
	}

	ddls, err := GenerateDDLs(schema.GeneratorModePostgres, snapshot("users"), snapshot("old_users"), database.GeneratorConfig{}, true)
	require.NoError(t, err)
	var drops int
	for _, ddl := range ddls {
		if strings.Contains(ddl, "DROP CONSTRAINT") {
			drops++
		}
	}
	assert.Equal(t, 1, drops, "ddls: %v", ddls)
	assert.Equal(t, `ALTER TABLE "posts" ADD CONSTRAINT "posts_user_fk" FOREIGN KEY ("user_id") REFERENCES "users" ("id")`, ddls[len(ddls)-1])
}

func TestSkippedDDLs(t *testing.T) {
	full := []string{"CREATE SCHEMA a", "DROP SEQUENCE b", "CREATE TABLE c", "DROP TABLE d", "ALTER TABLE e"}
	safe := []string{"CREATE SCHEMA a", "CREATE TABLE c", "ALTER TABLE e"}
	assert.Equal(t, []string{"DROP SEQUENCE b", "DROP TABLE d"}, skippedDDLs(full, safe))
	assert.Nil(t, skippedDDLs(safe, safe))
}

func TestParseFiles(t *testing.T) {
	tests := []struct {
		files   []string
		desired string
		current string
	}{
		{nil, "-", ""},
		{[]string{"schema.yml"}, "schema.yml", ""},
		{[]string{"current.yml", "desired.yml"}, "desired.yml", "current.yml"},
	}
	for _, tt := range tests {
		desired, current, err := ParseFiles(tt.files)
		require.NoError(t, err)
		assert.Equal(t, tt.desired, desired)
		assert.Equal(t, tt.current, current)
	}

	_, _, err := ParseFiles([]string{"a", "b", "c"})
	assert.EqualError(t, err, "expected only one or two --file options, but got: [a b c]")
}
