package schema

import (
	"log/slog"
	"slices"
)

// Platform renders DDLs for one database family and reports which
// categories of objects that family supports.
type Platform interface {
	SupportsSchemas() bool
	SupportsSequences() bool
	SupportsForeignKeyConstraints() bool

	CreateSchemaSQL(name string) (string, error)
	DropForeignKeySQL(fk ForeignKey, table string) (string, error)
	AlterSequenceSQL(seq Sequence) (string, error)
	DropSequenceSQL(name string) (string, error)
	CreateSequenceSQL(seq Sequence) (string, error)
	CreateTableSQL(table *Table) ([]string, error)
	CreateForeignKeySQL(fk ForeignKey, table string) (string, error)
	DropTableSQL(name string) (string, error)
	AlterTableSQL(diff *TableDiff) ([]string, error)
}

type Mode int

const (
	// ModeFull emits every phase.
	ModeFull = Mode(iota)
	// ModeSafe skips the phases which drop objects.
	ModeSafe
)

type capabilities struct {
	schemas     bool
	sequences   bool
	foreignKeys bool
}

type phase struct {
	name        string
	destructive bool
	enabled     func(capabilities) bool
	render      func(*Diff, Platform) ([]string, error)
}

func always(capabilities) bool { return true }

// The order of this table is the contract of Emit: namespaces exist before
// anything is created in them, orphaned foreign keys go before any table is
// dropped, sequences go before tables whose defaults may use them, new tables
// exist before the foreign keys between them, and alterations come last
// because they may reference any table created earlier.
var phases = []phase{
	{
		name:    "create namespaces",
		enabled: func(c capabilities) bool { return c.schemas },
		render: func(d *Diff, p Platform) ([]string, error) {
			return renderEach(d.newNamespaces, p.CreateSchemaSQL)
		},
	},
	{
		name:        "drop orphaned foreign keys",
		destructive: true,
		enabled:     func(c capabilities) bool { return c.foreignKeys },
		render: func(d *Diff, p Platform) ([]string, error) {
			var ddls []string
			for _, orphans := range d.orphanedForeignKeys {
				for _, fk := range orphans.foreignKeys {
					ddl, err := p.DropForeignKeySQL(fk, orphans.localTable)
					if err != nil {
						return nil, err
					}
					ddls = append(ddls, ddl)
				}
			}
			return ddls, nil
		},
	},
	{
		name:    "alter sequences",
		enabled: func(c capabilities) bool { return c.sequences },
		render: func(d *Diff, p Platform) ([]string, error) {
			return renderEach(d.changedSequences, p.AlterSequenceSQL)
		},
	},
	{
		name:        "drop sequences",
		destructive: true,
		enabled:     func(c capabilities) bool { return c.sequences },
		render: func(d *Diff, p Platform) ([]string, error) {
			return renderEach(sequenceNames(d.removedSequences), p.DropSequenceSQL)
		},
	},
	{
		name:    "create sequences",
		enabled: func(c capabilities) bool { return c.sequences },
		render: func(d *Diff, p Platform) ([]string, error) {
			return renderEach(d.newSequences, p.CreateSequenceSQL)
		},
	},
	{
		name:    "create tables",
		enabled: always,
		render: func(d *Diff, p Platform) ([]string, error) {
			return renderEachGroup(d.newTables, p.CreateTableSQL)
		},
	},
	{
		name:    "create foreign keys",
		enabled: func(c capabilities) bool { return c.foreignKeys },
		render: func(d *Diff, p Platform) ([]string, error) {
			var ddls []string
			for _, table := range d.newTables {
				for _, fk := range table.ForeignKeys {
					ddl, err := p.CreateForeignKeySQL(fk, table.Name)
					if err != nil {
						return nil, err
					}
					ddls = append(ddls, ddl)
				}
			}
			return ddls, nil
		},
	},
	{
		name:        "drop tables",
		destructive: true,
		enabled:     always,
		render: func(d *Diff, p Platform) ([]string, error) {
			return renderEach(tableNames(d.removedTables), p.DropTableSQL)
		},
	},
	{
		name:    "alter tables",
		enabled: always,
		render: func(d *Diff, p Platform) ([]string, error) {
			return renderEachGroup(d.changedTables, p.AlterTableSQL)
		},
	},
}

// PhaseInfo describes one step of Emit.
type PhaseInfo struct {
	Name        string
	Destructive bool
}

// Phases returns the steps of Emit in execution order.
func Phases() []PhaseInfo {
	infos := make([]PhaseInfo, len(phases))
	for i, p := range phases {
		infos[i] = PhaseInfo{Name: p.name, Destructive: p.destructive}
	}
	return infos
}

// Emit renders `diff` into DDLs which are valid to run one after another.
// Phases the platform does not support, and destructive phases in ModeSafe,
// are skipped. Errors from the platform are returned as they are.
func Emit(diff *Diff, p Platform, mode Mode) ([]string, error) {
	caps := capabilities{
		schemas:     p.SupportsSchemas(),
		sequences:   p.SupportsSequences(),
		foreignKeys: p.SupportsForeignKeyConstraints(),
	}

	if mode == ModeSafe {
		diff = diff.keepingOrphanedForeignKeys()
	}

	var ddls []string
	for _, ph := range phases {
		if mode == ModeSafe && ph.destructive {
			slog.Debug("Skipping destructive phase", "phase", ph.name)
			continue
		}
		if !ph.enabled(caps) {
			slog.Debug("Skipping phase unsupported by platform", "phase", ph.name)
			continue
		}
		rendered, err := ph.render(diff, p)
		if err != nil {
			return nil, err
		}
		if len(rendered) > 0 {
			slog.Debug("Rendered phase", "phase", ph.name, "statements", len(rendered))
		}
		ddls = append(ddls, rendered...)
	}
	return ddls, nil
}

// keepingOrphanedForeignKeys removes the re-creation of orphaned keys from the
// changed tables. ModeSafe never drops an orphan, so adding it again under the
// same name would fail.
func (d *Diff) keepingOrphanedForeignKeys() *Diff {
	if len(d.orphanedForeignKeys) == 0 {
		return d
	}
	orphans := make(map[string][]ForeignKey, len(d.orphanedForeignKeys))
	for _, o := range d.orphanedForeignKeys {
		orphans[normalizeName(o.localTable)] = o.foreignKeys
	}

	kept := *d
	kept.changedTables = nil
	for _, tableDiff := range d.changedTables {
		if fks, ok := orphans[normalizeName(tableDiff.Name)]; ok {
			copied := *tableDiff
			copied.AddedForeignKeys = slices.DeleteFunc(slices.Clone(tableDiff.AddedForeignKeys), func(added ForeignKey) bool {
				return slices.ContainsFunc(fks, func(orphan ForeignKey) bool { return foreignKeysMatch(orphan, added) })
			})
			if copied.IsEmpty() {
				continue
			}
			tableDiff = &copied
		}
		kept.changedTables = append(kept.changedTables, tableDiff)
	}
	return &kept
}

// ToSQL returns every DDL of the diff, including destructive ones.
func (d *Diff) ToSQL(p Platform) ([]string, error) {
	return Emit(d, p, ModeFull)
}

// ToSafeSQL returns the DDLs of the diff which never drop anything.
func (d *Diff) ToSafeSQL(p Platform) ([]string, error) {
	return Emit(d, p, ModeSafe)
}

func renderEach[T any](items []T, render func(T) (string, error)) ([]string, error) {
	var ddls []string
	for _, item := range items {
		ddl, err := render(item)
		if err != nil {
			return nil, err
		}
		ddls = append(ddls, ddl)
	}
	return ddls, nil
}

func renderEachGroup[T any](items []T, render func(T) ([]string, error)) ([]string, error) {
	var ddls []string
	for _, item := range items {
		group, err := render(item)
		if err != nil {
			return nil, err
		}
		ddls = append(ddls, group...)
	}
	return ddls, nil
}
