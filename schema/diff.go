package schema

import (
	"errors"
	"fmt"

	"github.com/sqldef/schemadiff/util"
)

// ErrInvalidDiff is returned by DiffBuilder.Build for a delta that breaks one of its invariants.
var ErrInvalidDiff = errors.New("invalid schema diff")

// Diff is the structural delta between two schemas. It is immutable once built;
// accessors return copies and iterate every bucket in insertion order.
type Diff struct {
	newNamespaces       []string
	removedNamespaces   []string
	newSequences        []Sequence
	changedSequences    []Sequence
	removedSequences    []Sequence
	newTables           []*Table
	removedTables       []*Table
	changedTables       []*TableDiff
	orphanedForeignKeys []orphanedForeignKeys
}

type orphanedForeignKeys struct {
	localTable  string
	foreignKeys []ForeignKey
}

// OrphanedForeignKeys groups foreign keys by the surviving table that owns them.
type OrphanedForeignKeys struct {
	LocalTable  string
	ForeignKeys []ForeignKey
}

func (d *Diff) NewNamespaces() []string {
	return append([]string(nil), d.newNamespaces...)
}

func (d *Diff) RemovedNamespaces() []string {
	return append([]string(nil), d.removedNamespaces...)
}

func (d *Diff) NewSequences() []Sequence {
	return append([]Sequence(nil), d.newSequences...)
}

func (d *Diff) ChangedSequences() []Sequence {
	return append([]Sequence(nil), d.changedSequences...)
}

func (d *Diff) RemovedSequences() []Sequence {
	return append([]Sequence(nil), d.removedSequences...)
}

func (d *Diff) NewTables() []*Table {
	return append([]*Table(nil), d.newTables...)
}

func (d *Diff) RemovedTables() []*Table {
	return append([]*Table(nil), d.removedTables...)
}

func (d *Diff) ChangedTables() []*TableDiff {
	return append([]*TableDiff(nil), d.changedTables...)
}

func (d *Diff) OrphanedForeignKeys() []OrphanedForeignKeys {
	var result []OrphanedForeignKeys
	for _, orphans := range d.orphanedForeignKeys {
		result = append(result, OrphanedForeignKeys{
			LocalTable:  orphans.localTable,
			ForeignKeys: append([]ForeignKey(nil), orphans.foreignKeys...),
		})
	}
	return result
}

func (d *Diff) IsEmpty() bool {
	return len(d.newNamespaces) == 0 &&
		len(d.removedNamespaces) == 0 &&
		len(d.newSequences) == 0 &&
		len(d.changedSequences) == 0 &&
		len(d.removedSequences) == 0 &&
		len(d.newTables) == 0 &&
		len(d.removedTables) == 0 &&
		len(d.changedTables) == 0 &&
		len(d.orphanedForeignKeys) == 0
}

// DiffBuilder accumulates a Diff. The zero value is ready to use.
type DiffBuilder struct {
	diff Diff
}

func NewDiffBuilder() *DiffBuilder {
	return &DiffBuilder{}
}

func (b *DiffBuilder) AddNewNamespace(name string) *DiffBuilder {
	b.diff.newNamespaces = append(b.diff.newNamespaces, name)
	return b
}

func (b *DiffBuilder) AddRemovedNamespace(name string) *DiffBuilder {
	b.diff.removedNamespaces = append(b.diff.removedNamespaces, name)
	return b
}

func (b *DiffBuilder) AddNewSequence(seq Sequence) *DiffBuilder {
	b.diff.newSequences = append(b.diff.newSequences, seq)
	return b
}

func (b *DiffBuilder) AddChangedSequence(seq Sequence) *DiffBuilder {
	b.diff.changedSequences = append(b.diff.changedSequences, seq)
	return b
}

func (b *DiffBuilder) AddRemovedSequence(seq Sequence) *DiffBuilder {
	b.diff.removedSequences = append(b.diff.removedSequences, seq)
	return b
}

func (b *DiffBuilder) AddNewTable(table *Table) *DiffBuilder {
	b.diff.newTables = append(b.diff.newTables, table)
	return b
}

func (b *DiffBuilder) AddRemovedTable(table *Table) *DiffBuilder {
	b.diff.removedTables = append(b.diff.removedTables, table)
	return b
}

func (b *DiffBuilder) AddChangedTable(tableDiff *TableDiff) *DiffBuilder {
	b.diff.changedTables = append(b.diff.changedTables, tableDiff)
	return b
}

// AddOrphanedForeignKey records a key owned by `localTable` whose referenced table is removed.
func (b *DiffBuilder) AddOrphanedForeignKey(localTable string, fk ForeignKey) *DiffBuilder {
	for i := range b.diff.orphanedForeignKeys {
		if normalizeName(b.diff.orphanedForeignKeys[i].localTable) == normalizeName(localTable) {
			b.diff.orphanedForeignKeys[i].foreignKeys = append(b.diff.orphanedForeignKeys[i].foreignKeys, fk)
			return b
		}
	}
	b.diff.orphanedForeignKeys = append(b.diff.orphanedForeignKeys, orphanedForeignKeys{
		localTable:  localTable,
		foreignKeys: []ForeignKey{fk},
	})
	return b
}

// Build validates the accumulated delta and returns it. The builder must not be reused.
func (b *DiffBuilder) Build() (*Diff, error) {
	d := b.diff
	buckets := []struct {
		kind  string
		names []string
	}{
		{"new namespace", d.newNamespaces},
		{"removed namespace", d.removedNamespaces},
		{"new sequence", sequenceNames(d.newSequences)},
		{"changed sequence", sequenceNames(d.changedSequences)},
		{"removed sequence", sequenceNames(d.removedSequences)},
		{"new table", tableNames(d.newTables)},
		{"removed table", tableNames(d.removedTables)},
		{"changed table", tableDiffNames(d.changedTables)},
	}
	for _, bucket := range buckets {
		if err := checkDuplicates(bucket.kind, bucket.names); err != nil {
			return nil, err
		}
	}

	removed := map[string]bool{}
	for _, table := range d.removedTables {
		removed[normalizeName(table.Name)] = true
	}
	for _, orphans := range d.orphanedForeignKeys {
		if removed[normalizeName(orphans.localTable)] {
			return nil, fmt.Errorf("%w: orphaned foreign keys of %q whose table is removed", ErrInvalidDiff, orphans.localTable)
		}
	}

	b.diff = Diff{}
	return &d, nil
}

func checkDuplicates(kind string, names []string) error {
	seen := map[string]bool{}
	for _, name := range names {
		key := normalizeName(name)
		if seen[key] {
			return fmt.Errorf("%w: duplicated %s %q", ErrInvalidDiff, kind, name)
		}
		seen[key] = true
	}
	return nil
}

func sequenceNames(seqs []Sequence) []string {
	return util.TransformSlice(seqs, func(seq Sequence) string { return seq.Name })
}

func tableNames(tables []*Table) []string {
	return util.TransformSlice(tables, func(table *Table) string { return table.Name })
}

func tableDiffNames(diffs []*TableDiff) []string {
	return util.TransformSlice(diffs, func(diff *TableDiff) string { return diff.Name })
}
