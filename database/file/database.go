package file

import (
	"database/sql"

	"github.com/sqldef/schemadiff"
	"github.com/sqldef/schemadiff/schema"
)

// Pseudo database for comparison between files
type FileDatabase struct {
	file string
}

func NewDatabase(file string) *FileDatabase {
	return &FileDatabase{
		file: file,
	}
}

// ExportSchema reads the snapshot of the file. A file database is never applied to.
func (f *FileDatabase) ExportSchema() (*schema.Schema, error) {
	buf, err := schemadiff.ReadFile(f.file)
	if err != nil {
		return nil, err
	}
	return schema.ParseSchema(buf)
}

func (f *FileDatabase) DB() *sql.DB {
	return nil
}

func (f *FileDatabase) Close() error {
	return nil
}

func (f *FileDatabase) GetDefaultSchema() string {
	return ""
}
