package database

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sqldef/schemadiff/schema"
)

var dryRunDrivers atomic.Int64

// DryRunDatabase exports the schema of the wrapped database but accepts every
// DDL without running it.
type DryRunDatabase struct {
	wrapped  Database
	dryRunDB *sql.DB
}

func NewDryRunDatabase(db Database) (*DryRunDatabase, error) {
	// sql.Register panics on a duplicated name.
	name := fmt.Sprintf("schemadiff-dry-run-%d", dryRunDrivers.Add(1))
	sql.Register(name, dryRunDriver{})

	dryRunDB, err := sql.Open(name, "")
	if err != nil {
		return nil, err
	}
	return &DryRunDatabase{
		wrapped:  db,
		dryRunDB: dryRunDB,
	}, nil
}

func (d *DryRunDatabase) ExportSchema() (*schema.Schema, error) {
	return d.wrapped.ExportSchema()
}

func (d *DryRunDatabase) DB() *sql.DB {
	return d.dryRunDB
}

func (d *DryRunDatabase) Close() error {
	if err := d.dryRunDB.Close(); err != nil {
		return err
	}
	return d.wrapped.Close()
}

func (d *DryRunDatabase) GetDefaultSchema() string {
	return d.wrapped.GetDefaultSchema()
}

type dryRunDriver struct{}

func (dryRunDriver) Open(name string) (driver.Conn, error) {
	return dryRunConn{}, nil
}

type dryRunConn struct{}

func (dryRunConn) Prepare(query string) (driver.Stmt, error) { return dryRunStmt{}, nil }
func (dryRunConn) Close() error                              { return nil }
func (dryRunConn) Begin() (driver.Tx, error)                 { return dryRunTx{}, nil }

type dryRunTx struct{}

func (dryRunTx) Commit() error   { return nil }
func (dryRunTx) Rollback() error { return nil }

type dryRunStmt struct{}

func (dryRunStmt) Close() error  { return nil }
func (dryRunStmt) NumInput() int { return -1 }

func (dryRunStmt) Exec(args []driver.Value) (driver.Result, error) {
	return driver.RowsAffected(0), nil
}

func (dryRunStmt) Query(args []driver.Value) (driver.Rows, error) {
	return dryRunRows{}, nil
}

type dryRunRows struct{}

func (dryRunRows) Columns() []string              { return nil }
func (dryRunRows) Close() error                   { return nil }
func (dryRunRows) Next(dest []driver.Value) error { return io.EOF }
