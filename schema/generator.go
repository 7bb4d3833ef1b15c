package schema

import (
	"slices"
)

// Generator compares two schema snapshots. It holds the indexes of both sides during Compare.
type Generator struct {
	from       *Schema
	to         *Schema
	fromTables map[string]*Table
	toTables   map[string]*Table
}

// Compare computes the Diff which turns `from` into `to`.
func Compare(from, to *Schema) (*Diff, error) {
	if from == nil {
		from = &Schema{}
	}
	if to == nil {
		to = &Schema{}
	}
	g := &Generator{
		from:       from,
		to:         to,
		fromTables: indexTables(from.Tables),
		toTables:   indexTables(to.Tables),
	}
	return g.generateDiff()
}

func indexTables(tables []*Table) map[string]*Table {
	result := make(map[string]*Table, len(tables))
	for _, table := range tables {
		result[normalizeName(table.Name)] = table
	}
	return result
}

func (g *Generator) generateDiff() (*Diff, error) {
	builder := NewDiffBuilder()

	g.diffNamespaces(builder)
	g.diffSequences(builder)

	var newTables, removedTables []*Table
	tableDiffs := map[string]*TableDiff{}
	var changedOrder []string
	for _, toTable := range g.to.Tables {
		key := normalizeName(toTable.Name)
		fromTable, ok := g.fromTables[key]
		if !ok {
			newTables = append(newTables, toTable)
			continue
		}
		if tableDiff := compareTable(fromTable, toTable); !tableDiff.IsEmpty() {
			tableDiffs[key] = tableDiff
			changedOrder = append(changedOrder, key)
		}
	}
	for _, fromTable := range g.from.Tables {
		if _, ok := g.toTables[normalizeName(fromTable.Name)]; !ok {
			removedTables = append(removedTables, fromTable)
		}
	}

	// Drop dependents first when several removed tables reference each other.
	removedTables = sortTablesByDependencies(removedTables)
	slices.Reverse(removedTables)
	for _, table := range sortTablesByDependencies(newTables) {
		builder.AddNewTable(table)
	}
	for _, table := range removedTables {
		builder.AddRemovedTable(table)
	}

	removed := indexTables(removedTables)
	for _, fromTable := range g.from.Tables {
		key := normalizeName(fromTable.Name)
		if _, ok := removed[key]; ok {
			continue
		}
		for _, fk := range fromTable.ForeignKeys {
			if _, ok := removed[normalizeName(fk.ReferencedTable)]; !ok {
				continue
			}
			builder.AddOrphanedForeignKey(fromTable.Name, fk)
			// The orphan drop replaces the drop the table diff would do. A changed
			// key is only re-created afterwards.
			if tableDiff, ok := tableDiffs[key]; ok {
				matches := func(other ForeignKey) bool { return foreignKeysMatch(fk, other) }
				tableDiff.RemovedForeignKeys = slices.DeleteFunc(tableDiff.RemovedForeignKeys, matches)
				for _, changedFK := range tableDiff.ChangedForeignKeys {
					if matches(changedFK) {
						tableDiff.AddedForeignKeys = append(tableDiff.AddedForeignKeys, changedFK)
					}
				}
				tableDiff.ChangedForeignKeys = slices.DeleteFunc(tableDiff.ChangedForeignKeys, matches)
			}
		}
	}

	for _, key := range changedOrder {
		if tableDiff := tableDiffs[key]; !tableDiff.IsEmpty() {
			builder.AddChangedTable(tableDiff)
		}
	}
	return builder.Build()
}

func (g *Generator) diffNamespaces(builder *DiffBuilder) {
	fromNamespaces := map[string]bool{}
	for _, ns := range g.from.Namespaces {
		fromNamespaces[normalizeName(ns)] = true
	}
	toNamespaces := map[string]bool{}
	for _, ns := range g.to.Namespaces {
		toNamespaces[normalizeName(ns)] = true
		if !fromNamespaces[normalizeName(ns)] {
			builder.AddNewNamespace(ns)
		}
	}
	for _, ns := range g.from.Namespaces {
		if !toNamespaces[normalizeName(ns)] {
			builder.AddRemovedNamespace(ns)
		}
	}
}

func (g *Generator) diffSequences(builder *DiffBuilder) {
	fromSequences := map[string]Sequence{}
	for _, seq := range g.from.Sequences {
		fromSequences[normalizeName(seq.Name)] = seq
	}
	toSequences := map[string]bool{}
	for _, seq := range g.to.Sequences {
		toSequences[normalizeName(seq.Name)] = true
		fromSeq, ok := fromSequences[normalizeName(seq.Name)]
		if !ok {
			builder.AddNewSequence(seq)
		} else if fromSeq.IncrementBy() != seq.IncrementBy() || fromSeq.StartWith() != seq.StartWith() || fromSeq.Cache != seq.Cache {
			builder.AddChangedSequence(seq)
		}
	}
	for _, seq := range g.from.Sequences {
		if !toSequences[normalizeName(seq.Name)] {
			builder.AddRemovedSequence(seq)
		}
	}
}

func compareTable(from, to *Table) *TableDiff {
	diff := NewTableDiff(from.Name)
	diff.FromTable = from

	for _, column := range to.Columns {
		fromColumn, ok := from.Column(column.Name)
		if !ok {
			diff.AddedColumns = append(diff.AddedColumns, column)
			continue
		}
		if changed := compareColumns(fromColumn, column); len(changed) > 0 {
			diff.ChangedColumns = append(diff.ChangedColumns, ColumnDiff{
				OldColumn:         fromColumn,
				Column:            column,
				ChangedProperties: changed,
			})
		}
	}
	for _, column := range from.Columns {
		if _, ok := to.Column(column.Name); !ok {
			diff.RemovedColumns = append(diff.RemovedColumns, column)
		}
	}
	detectColumnRenames(diff)

	fromIndexes := tableIndexes(from)
	toIndexes := tableIndexes(to)
	for _, index := range toIndexes {
		fromIndex, ok := findIndex(fromIndexes, index.Name)
		if !ok {
			diff.AddedIndexes = append(diff.AddedIndexes, index)
		} else if !indexesEqual(fromIndex, index) {
			diff.ChangedIndexes = append(diff.ChangedIndexes, index)
		}
	}
	for _, index := range fromIndexes {
		if _, ok := findIndex(toIndexes, index.Name); !ok {
			diff.RemovedIndexes = append(diff.RemovedIndexes, index)
		}
	}
	detectIndexRenames(diff)

	for _, fk := range to.ForeignKeys {
		fromFK, ok := findForeignKey(from.ForeignKeys, fk)
		if !ok {
			diff.AddedForeignKeys = append(diff.AddedForeignKeys, fk)
		} else if !foreignKeysEqual(fromFK, fk) {
			diff.ChangedForeignKeys = append(diff.ChangedForeignKeys, fk)
		}
	}
	for _, fk := range from.ForeignKeys {
		if _, ok := findForeignKey(to.ForeignKeys, fk); !ok {
			diff.RemovedForeignKeys = append(diff.RemovedForeignKeys, fk)
		}
	}

	return diff
}

// compareColumns returns the names of the properties which differ between two columns.
func compareColumns(from, to Column) []string {
	var changed []string
	fromType, toType := NormalizeType(from.Type), NormalizeType(to.Type)
	if fromType != toType {
		changed = append(changed, "type")
	}
	if !intPtrEqual(from.Length, to.Length) {
		changed = append(changed, "length")
	}
	if toType == "decimal" {
		if !intPtrEqual(from.Precision, to.Precision) {
			changed = append(changed, "precision")
		}
		if !intPtrEqual(from.Scale, to.Scale) {
			changed = append(changed, "scale")
		}
	}
	if from.NotNull != to.NotNull {
		changed = append(changed, "notnull")
	}
	if !stringPtrEqual(normalizeDefault(from.Default), normalizeDefault(to.Default)) {
		changed = append(changed, "default")
	}
	if from.Unsigned != to.Unsigned {
		changed = append(changed, "unsigned")
	}
	if from.AutoIncrement != to.AutoIncrement {
		changed = append(changed, "autoincrement")
	}
	if from.Comment != to.Comment {
		changed = append(changed, "comment")
	}
	return changed
}

// detectColumnRenames turns a removed and an added column into a rename when
// the added column matches exactly one removed column apart from its name.
func detectColumnRenames(diff *TableDiff) {
	candidates := map[int][]int{}
	for a, added := range diff.AddedColumns {
		for r, removed := range diff.RemovedColumns {
			if len(compareColumns(removed, added)) == 0 {
				candidates[a] = append(candidates[a], r)
			}
		}
	}

	renamedAdded := map[int]bool{}
	renamedRemoved := map[int]bool{}
	for a := range diff.AddedColumns {
		if len(candidates[a]) != 1 || renamedRemoved[candidates[a][0]] {
			continue
		}
		r := candidates[a][0]
		renamedAdded[a] = true
		renamedRemoved[r] = true
		diff.RenamedColumns = append(diff.RenamedColumns, RenamedColumn{
			From:   diff.RemovedColumns[r].Name,
			Column: diff.AddedColumns[a],
		})
	}
	diff.AddedColumns = deleteIndexes(diff.AddedColumns, renamedAdded)
	diff.RemovedColumns = deleteIndexes(diff.RemovedColumns, renamedRemoved)
}

func detectIndexRenames(diff *TableDiff) {
	candidates := map[int][]int{}
	for a, added := range diff.AddedIndexes {
		for r, removed := range diff.RemovedIndexes {
			if !added.Primary && !removed.Primary && indexesEqual(removed, added) {
				candidates[a] = append(candidates[a], r)
			}
		}
	}

	renamedAdded := map[int]bool{}
	renamedRemoved := map[int]bool{}
	for a := range diff.AddedIndexes {
		if len(candidates[a]) != 1 || renamedRemoved[candidates[a][0]] {
			continue
		}
		r := candidates[a][0]
		renamedAdded[a] = true
		renamedRemoved[r] = true
		diff.RenamedIndexes = append(diff.RenamedIndexes, RenamedIndex{
			From:  diff.RemovedIndexes[r].Name,
			Index: diff.AddedIndexes[a],
		})
	}
	diff.AddedIndexes = deleteIndexes(diff.AddedIndexes, renamedAdded)
	diff.RemovedIndexes = deleteIndexes(diff.RemovedIndexes, renamedRemoved)
}

func deleteIndexes[T any](items []T, deleted map[int]bool) []T {
	if len(deleted) == 0 {
		return items
	}
	var result []T
	for i, item := range items {
		if !deleted[i] {
			result = append(result, item)
		}
	}
	return result
}

// tableIndexes returns the indexes of a table with its primary key as an index named PRIMARY.
func tableIndexes(table *Table) []Index {
	var indexes []Index
	if pk := table.PrimaryKeyIndex(); pk != nil {
		indexes = append(indexes, *pk)
	}
	return append(indexes, table.Indexes...)
}

func findIndex(indexes []Index, name string) (Index, bool) {
	for _, index := range indexes {
		if normalizeName(index.Name) == normalizeName(name) {
			return index, true
		}
	}
	return Index{}, false
}

func indexesEqual(a, b Index) bool {
	return a.Unique == b.Unique && a.Primary == b.Primary && namesEqual(a.Columns, b.Columns)
}

func findForeignKey(fks []ForeignKey, target ForeignKey) (ForeignKey, bool) {
	for _, fk := range fks {
		if foreignKeysMatch(fk, target) {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// foreignKeysMatch reports whether two keys are the same constraint: by name
// when both are named, otherwise by their columns and referenced table.
func foreignKeysMatch(a, b ForeignKey) bool {
	if a.Name != "" && b.Name != "" {
		return normalizeName(a.Name) == normalizeName(b.Name)
	}
	return normalizeName(a.ReferencedTable) == normalizeName(b.ReferencedTable) &&
		namesEqual(a.Columns, b.Columns) &&
		namesEqual(a.ReferencedColumns, b.ReferencedColumns)
}

func foreignKeysEqual(a, b ForeignKey) bool {
	return normalizeName(a.ReferencedTable) == normalizeName(b.ReferencedTable) &&
		namesEqual(a.Columns, b.Columns) &&
		namesEqual(a.ReferencedColumns, b.ReferencedColumns) &&
		normalizeReferentialAction(a.OnDelete) == normalizeReferentialAction(b.OnDelete) &&
		normalizeReferentialAction(a.OnUpdate) == normalizeReferentialAction(b.OnUpdate)
}
