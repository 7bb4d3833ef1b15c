package schema

// TableDiff describes the changes of one table which exists on both sides of a Diff.
// It is read-only once it has been added to a DiffBuilder.
type TableDiff struct {
	Name string
	// NewName is set when the table is renamed.
	NewName string

	AddedColumns   []Column
	RemovedColumns []Column
	ChangedColumns []ColumnDiff
	RenamedColumns []RenamedColumn

	AddedIndexes   []Index
	RemovedIndexes []Index
	ChangedIndexes []Index
	RenamedIndexes []RenamedIndex

	AddedForeignKeys   []ForeignKey
	RemovedForeignKeys []ForeignKey
	ChangedForeignKeys []ForeignKey

	// FromTable is the table before the change, when known.
	FromTable *Table
}

type ColumnDiff struct {
	OldColumn         Column
	Column            Column
	ChangedProperties []string
}

func (c ColumnDiff) HasChanged(property string) bool {
	for _, p := range c.ChangedProperties {
		if p == property {
			return true
		}
	}
	return false
}

type RenamedColumn struct {
	From   string
	Column Column
}

type RenamedIndex struct {
	From  string
	Index Index
}

func NewTableDiff(name string) *TableDiff {
	return &TableDiff{Name: name}
}

func (d *TableDiff) IsEmpty() bool {
	return d.NewName == "" &&
		len(d.AddedColumns) == 0 &&
		len(d.RemovedColumns) == 0 &&
		len(d.ChangedColumns) == 0 &&
		len(d.RenamedColumns) == 0 &&
		len(d.AddedIndexes) == 0 &&
		len(d.RemovedIndexes) == 0 &&
		len(d.ChangedIndexes) == 0 &&
		len(d.RenamedIndexes) == 0 &&
		len(d.AddedForeignKeys) == 0 &&
		len(d.RemovedForeignKeys) == 0 &&
		len(d.ChangedForeignKeys) == 0
}
