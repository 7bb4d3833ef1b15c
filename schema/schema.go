// This package has the schema model, the structural diff between two schemas
// and the ordering of the DDLs which apply that diff. Never touch database.
package schema

import (
	"fmt"
	"strings"
)

type GeneratorMode int

const (
	GeneratorModeMysql = GeneratorMode(iota)
	GeneratorModePostgres
	GeneratorModeSQLite3
	GeneratorModeMssql
)

func (m GeneratorMode) String() string {
	switch m {
	case GeneratorModeMysql:
		return "mysql"
	case GeneratorModePostgres:
		return "postgres"
	case GeneratorModeSQLite3:
		return "sqlite3"
	case GeneratorModeMssql:
		return "mssql"
	default:
		return fmt.Sprintf("GeneratorMode(%d)", int(m))
	}
}

// ParseGeneratorMode accepts the database family names used by --type.
func ParseGeneratorMode(name string) (GeneratorMode, error) {
	switch strings.ToLower(name) {
	case "mysql", "mariadb":
		return GeneratorModeMysql, nil
	case "postgres", "postgresql", "psql":
		return GeneratorModePostgres, nil
	case "sqlite3", "sqlite":
		return GeneratorModeSQLite3, nil
	case "mssql", "sqlserver":
		return GeneratorModeMssql, nil
	default:
		return 0, fmt.Errorf("unknown database type: %q (expected mysql, postgres, sqlite3 or mssql)", name)
	}
}

// Schema is one snapshot of a database schema.
type Schema struct {
	Namespaces []string   `yaml:"namespaces,omitempty"`
	Sequences  []Sequence `yaml:"sequences,omitempty"`
	Tables     []*Table   `yaml:"tables,omitempty"`
}

type Table struct {
	Name        string       `yaml:"name"`
	Columns     []Column     `yaml:"columns"`
	PrimaryKey  []string     `yaml:"primary_key,omitempty"`
	Indexes     []Index      `yaml:"indexes,omitempty"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty"`
	Comment     string       `yaml:"comment,omitempty"`
}

type Column struct {
	Name          string  `yaml:"name"`
	Type          string  `yaml:"type"`
	Length        *int    `yaml:"length,omitempty"`
	Precision     *int    `yaml:"precision,omitempty"`
	Scale         *int    `yaml:"scale,omitempty"`
	NotNull       bool    `yaml:"not_null,omitempty"`
	Default       *string `yaml:"default,omitempty"`
	Unsigned      bool    `yaml:"unsigned,omitempty"`
	AutoIncrement bool    `yaml:"auto_increment,omitempty"`
	Comment       string  `yaml:"comment,omitempty"`
}

type Index struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
	Primary bool     `yaml:"primary,omitempty"`
}

type ForeignKey struct {
	Name              string   `yaml:"name,omitempty"`
	Columns           []string `yaml:"columns"`
	ReferencedTable   string   `yaml:"references"`
	ReferencedColumns []string `yaml:"referenced_columns"`
	OnDelete          string   `yaml:"on_delete,omitempty"`
	OnUpdate          string   `yaml:"on_update,omitempty"`
}

type Sequence struct {
	Name      string `yaml:"name"`
	Increment int64  `yaml:"increment,omitempty"`
	Start     int64  `yaml:"start,omitempty"`
	Cache     int64  `yaml:"cache,omitempty"`
}

// Table returns the table named `name`, compared case-insensitively.
func (s *Schema) Table(name string) *Table {
	for _, table := range s.Tables {
		if normalizeName(table.Name) == normalizeName(name) {
			return table
		}
	}
	return nil
}

func (t *Table) Column(name string) (Column, bool) {
	for _, column := range t.Columns {
		if normalizeName(column.Name) == normalizeName(name) {
			return column, true
		}
	}
	return Column{}, false
}

// PrimaryKeyIndex returns the primary key as an index named PRIMARY, or nil.
func (t *Table) PrimaryKeyIndex() *Index {
	if len(t.PrimaryKey) == 0 {
		return nil
	}
	return &Index{Name: "PRIMARY", Columns: t.PrimaryKey, Unique: true, Primary: true}
}

// IncrementBy returns the sequence increment, defaulting to 1.
func (s Sequence) IncrementBy() int64 {
	if s.Increment == 0 {
		return 1
	}
	return s.Increment
}

// StartWith returns the sequence start value, defaulting to 1.
func (s Sequence) StartWith() int64 {
	if s.Start == 0 {
		return 1
	}
	return s.Start
}
