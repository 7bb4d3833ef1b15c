package schema

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-yaml"
)

// ParseSchema reads a YAML schema snapshot. Unknown fields are rejected.
func ParseSchema(buf []byte) (*Schema, error) {
	var s Schema
	if len(bytes.TrimSpace(buf)) == 0 {
		return &s, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf), yaml.DisallowUnknownField())
	if err := dec.Decode(&s); err != nil {
		return nil, err
	}
	if err := validateSchema(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// MarshalSchema writes a schema snapshot in the format ParseSchema reads.
func MarshalSchema(s *Schema) ([]byte, error) {
	return yaml.Marshal(s)
}

func validateSchema(s *Schema) error {
	tables := map[string]bool{}
	for _, table := range s.Tables {
		if table == nil || table.Name == "" {
			return fmt.Errorf("table without name")
		}
		key := normalizeName(table.Name)
		if tables[key] {
			return fmt.Errorf("duplicated table %q", table.Name)
		}
		tables[key] = true

		columns := map[string]bool{}
		for _, column := range table.Columns {
			if column.Name == "" || column.Type == "" {
				return fmt.Errorf("table %q: column needs both name and type", table.Name)
			}
			if columns[normalizeName(column.Name)] {
				return fmt.Errorf("table %q: duplicated column %q", table.Name, column.Name)
			}
			columns[normalizeName(column.Name)] = true
		}
		for _, fk := range table.ForeignKeys {
			if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.ReferencedColumns) {
				return fmt.Errorf("table %q: foreign key %q needs the same number of columns and referenced columns", table.Name, fk.Name)
			}
		}
	}
	for _, seq := range s.Sequences {
		if seq.Name == "" {
			return fmt.Errorf("sequence without name")
		}
	}
	return nil
}
