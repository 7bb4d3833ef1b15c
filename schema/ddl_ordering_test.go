package schema

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPlatform struct {
	mock.Mock
}

func (m *mockPlatform) SupportsSchemas() bool               { return m.Called().Bool(0) }
func (m *mockPlatform) SupportsSequences() bool             { return m.Called().Bool(0) }
func (m *mockPlatform) SupportsForeignKeyConstraints() bool { return m.Called().Bool(0) }

func (m *mockPlatform) CreateSchemaSQL(name string) (string, error) {
	args := m.Called(name)
	return args.String(0), args.Error(1)
}

func (m *mockPlatform) DropForeignKeySQL(fk ForeignKey, table string) (string, error) {
	args := m.Called(fk, table)
	return args.String(0), args.Error(1)
}

func (m *mockPlatform) AlterSequenceSQL(seq Sequence) (string, error) {
	args := m.Called(seq)
	return args.String(0), args.Error(1)
}

func (m *mockPlatform) DropSequenceSQL(name string) (string, error) {
	args := m.Called(name)
	return args.String(0), args.Error(1)
}

func (m *mockPlatform) CreateSequenceSQL(seq Sequence) (string, error) {
	args := m.Called(seq)
	return args.String(0), args.Error(1)
}

func (m *mockPlatform) CreateTableSQL(table *Table) ([]string, error) {
	args := m.Called(table)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockPlatform) CreateForeignKeySQL(fk ForeignKey, table string) (string, error) {
	args := m.Called(fk, table)
	return args.String(0), args.Error(1)
}

func (m *mockPlatform) DropTableSQL(name string) (string, error) {
	args := m.Called(name)
	return args.String(0), args.Error(1)
}

func (m *mockPlatform) AlterTableSQL(diff *TableDiff) ([]string, error) {
	args := m.Called(diff)
	return args.Get(0).([]string), args.Error(1)
}

func sequenceNamed(name string) any {
	return mock.MatchedBy(func(seq Sequence) bool { return seq.Name == name })
}

func newMockPlatform(unsafe bool) *mockPlatform {
	p := &mockPlatform{}
	p.On("CreateSchemaSQL", "foo_ns").Return("create_schema", nil).Once()
	if unsafe {
		p.On("DropSequenceSQL", "baz_seq").Return("drop_seq", nil).Once()
		p.On("DropTableSQL", "bar_table").Return("drop_table", nil).Once()
		p.On("DropForeignKeySQL", mock.AnythingOfType("schema.ForeignKey"), "local_table").Return("drop_orphan_fk", nil).Once()
	}
	p.On("AlterSequenceSQL", sequenceNamed("foo_seq")).Return("alter_seq", nil).Once()
	p.On("CreateSequenceSQL", sequenceNamed("bar_seq")).Return("create_seq", nil).Once()
	p.On("CreateTableSQL", mock.AnythingOfType("*schema.Table")).Return([]string{"create_table"}, nil).Once()
	p.On("CreateForeignKeySQL", mock.AnythingOfType("schema.ForeignKey"), "foo_table").Return("create_foreign_key", nil).Once()
	p.On("AlterTableSQL", mock.AnythingOfType("*schema.TableDiff")).Return([]string{"alter_table"}, nil).Once()

	p.On("SupportsSchemas").Return(true).Once()
	p.On("SupportsSequences").Return(true).Once()
	p.On("SupportsForeignKeyConstraints").Return(true).Once()
	return p
}

func newFixtureDiff(t *testing.T) *Diff {
	t.Helper()
	diff, err := NewDiffBuilder().
		AddNewNamespace("foo_ns").
		AddRemovedNamespace("bar_ns").
		AddChangedSequence(Sequence{Name: "foo_seq"}).
		AddNewSequence(Sequence{Name: "bar_seq"}).
		AddRemovedSequence(Sequence{Name: "baz_seq"}).
		AddNewTable(&Table{
			Name:    "foo_table",
			Columns: []Column{{Name: "foreign_id", Type: "integer"}},
			ForeignKeys: []ForeignKey{
				{Columns: []string{"foreign_id"}, ReferencedTable: "foreign_table", ReferencedColumns: []string{"id"}},
			},
		}).
		AddRemovedTable(&Table{Name: "bar_table"}).
		AddChangedTable(NewTableDiff("baz_table")).
		AddOrphanedForeignKey("local_table", ForeignKey{
			Columns:           []string{"id"},
			ReferencedTable:   "foreign_table",
			ReferencedColumns: []string{"id"},
		}).
		Build()
	require.NoError(t, err)
	return diff
}

func TestDiffToSQL(t *testing.T) {
	p := newMockPlatform(true)

	ddls, err := newFixtureDiff(t).ToSQL(p)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"create_schema",
		"drop_orphan_fk",
		"alter_seq",
		"drop_seq",
		"create_seq",
		"create_table",
		"create_foreign_key",
		"drop_table",
		"alter_table",
	}, ddls)
	p.AssertExpectations(t)
}

func TestDiffToSafeSQL(t *testing.T) {
	p := newMockPlatform(false)

	ddls, err := newFixtureDiff(t).ToSafeSQL(p)
	require.NoError(t, err)

	assert.Equal(t, []string{"create_schema", "alter_seq", "create_seq", "create_table", "create_foreign_key", "alter_table"}, ddls)
	p.AssertExpectations(t)
	p.AssertNotCalled(t, "DropTableSQL", mock.Anything)
	p.AssertNotCalled(t, "DropSequenceSQL", mock.Anything)
}

// fakePlatform renders "<kind>:<name>" so that tests can tell where a statement came from.
type fakePlatform struct {
	schemas     bool
	sequences   bool
	foreignKeys bool
	failOn      string
}

var errRender = errors.New("render failure")

func (p *fakePlatform) render(kind, name string) (string, error) {
	if kind == p.failOn {
		return "", errRender
	}
	return kind + ":" + name, nil
}

func (p *fakePlatform) SupportsSchemas() bool               { return p.schemas }
func (p *fakePlatform) SupportsSequences() bool             { return p.sequences }
func (p *fakePlatform) SupportsForeignKeyConstraints() bool { return p.foreignKeys }

func (p *fakePlatform) CreateSchemaSQL(name string) (string, error) {
	return p.render("create_schema", name)
}

func (p *fakePlatform) DropForeignKeySQL(fk ForeignKey, table string) (string, error) {
	return p.render("drop_fk", table+"->"+fk.ReferencedTable)
}

func (p *fakePlatform) AlterSequenceSQL(seq Sequence) (string, error) {
	return p.render("alter_seq", seq.Name)
}

func (p *fakePlatform) DropSequenceSQL(name string) (string, error) {
	return p.render("drop_seq", name)
}

func (p *fakePlatform) CreateSequenceSQL(seq Sequence) (string, error) {
	return p.render("create_seq", seq.Name)
}

func (p *fakePlatform) CreateTableSQL(table *Table) ([]string, error) {
	ddl, err := p.render("create_table", table.Name)
	if err != nil {
		return nil, err
	}
	return []string{ddl, "create_index:" + table.Name}, nil
}

func (p *fakePlatform) CreateForeignKeySQL(fk ForeignKey, table string) (string, error) {
	return p.render("create_fk", table+"->"+fk.ReferencedTable)
}

func (p *fakePlatform) DropTableSQL(name string) (string, error) {
	return p.render("drop_table", name)
}

func (p *fakePlatform) AlterTableSQL(diff *TableDiff) ([]string, error) {
	ddl, err := p.render("alter_table", diff.Name)
	if err != nil {
		return nil, err
	}
	return []string{ddl}, nil
}

func allCapabilities() *fakePlatform {
	return &fakePlatform{schemas: true, sequences: true, foreignKeys: true}
}

func newWideDiff(t *testing.T) *Diff {
	t.Helper()
	diff, err := NewDiffBuilder().
		AddNewNamespace("ns2").
		AddNewNamespace("ns1").
		AddChangedSequence(Sequence{Name: "seq_b"}).
		AddChangedSequence(Sequence{Name: "seq_a"}).
		AddRemovedSequence(Sequence{Name: "seq_old"}).
		AddNewSequence(Sequence{Name: "seq_new"}).
		AddNewTable(&Table{Name: "users"}).
		AddNewTable(&Table{
			Name:        "posts",
			ForeignKeys: []ForeignKey{{Columns: []string{"user_id"}, ReferencedTable: "users", ReferencedColumns: []string{"id"}}},
		}).
		AddRemovedTable(&Table{Name: "legacy"}).
		AddChangedTable(NewTableDiff("comments")).
		AddOrphanedForeignKey("audit", ForeignKey{Columns: []string{"legacy_id"}, ReferencedTable: "legacy", ReferencedColumns: []string{"id"}}).
		AddOrphanedForeignKey("audit", ForeignKey{Columns: []string{"legacy2_id"}, ReferencedTable: "legacy", ReferencedColumns: []string{"id"}}).
		Build()
	require.NoError(t, err)
	return diff
}

func kindOf(ddl string) string {
	kind, _, _ := strings.Cut(ddl, ":")
	return kind
}

func TestEmitPhaseOrder(t *testing.T) {
	ddls, err := newWideDiff(t).ToSQL(allCapabilities())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"create_schema:ns2",
		"create_schema:ns1",
		"drop_fk:audit->legacy",
		"drop_fk:audit->legacy",
		"alter_seq:seq_b",
		"alter_seq:seq_a",
		"drop_seq:seq_old",
		"create_seq:seq_new",
		"create_table:users",
		"create_index:users",
		"create_table:posts",
		"create_index:posts",
		"create_fk:posts->users",
		"drop_table:legacy",
		"alter_table:comments",
	}, ddls)
}

func TestEmitSafeIsOrderedSubset(t *testing.T) {
	platforms := map[string]*fakePlatform{
		"all":           allCapabilities(),
		"no schemas":    {sequences: true, foreignKeys: true},
		"no sequences":  {schemas: true, foreignKeys: true},
		"no fks":        {schemas: true, sequences: true},
		"nothing":       {},
		"schemas only":  {schemas: true},
		"sequences+fks": {sequences: true, foreignKeys: true},
	}
	for name, p := range platforms {
		t.Run(name, func(t *testing.T) {
			diff := newWideDiff(t)
			full, err := diff.ToSQL(p)
			require.NoError(t, err)
			safe, err := diff.ToSafeSQL(p)
			require.NoError(t, err)

			i := 0
			for _, ddl := range full {
				if i < len(safe) && safe[i] == ddl {
					i++
				}
			}
			assert.Equal(t, len(safe), i, "safe DDLs must be an ordered subsequence of full DDLs: %v vs %v", safe, full)

			for _, ddl := range safe {
				assert.NotContains(t, []string{"drop_fk", "drop_seq", "drop_table"}, kindOf(ddl))
			}
		})
	}
}

func TestEmitCapabilityGating(t *testing.T) {
	tests := []struct {
		name     string
		platform *fakePlatform
		absent   []string
	}{
		{
			name:     "without schemas",
			platform: &fakePlatform{sequences: true, foreignKeys: true},
			absent:   []string{"create_schema"},
		},
		{
			name:     "without sequences",
			platform: &fakePlatform{schemas: true, foreignKeys: true},
			absent:   []string{"alter_seq", "drop_seq", "create_seq"},
		},
		{
			name:     "without foreign keys",
			platform: &fakePlatform{schemas: true, sequences: true},
			absent:   []string{"drop_fk", "create_fk"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := newWideDiff(t)
			for _, emit := range []func(Platform) ([]string, error){diff.ToSQL, diff.ToSafeSQL} {
				ddls, err := emit(tt.platform)
				require.NoError(t, err)
				assert.NotEmpty(t, ddls)
				for _, ddl := range ddls {
					assert.NotContains(t, tt.absent, kindOf(ddl))
				}
			}
		})
	}
}

func TestEmitOrphanedForeignKeysDoNotDropOwner(t *testing.T) {
	ddls, err := newWideDiff(t).ToSQL(allCapabilities())
	require.NoError(t, err)
	assert.NotContains(t, ddls, "drop_table:audit")
	assert.Contains(t, ddls, "drop_fk:audit->legacy")
}

type recordingPlatform struct {
	*fakePlatform
	altered []TableDiff
}

func (p *recordingPlatform) AlterTableSQL(diff *TableDiff) ([]string, error) {
	p.altered = append(p.altered, *diff)
	return p.fakePlatform.AlterTableSQL(diff)
}

func TestEmitRetargetedOrphanedForeignKey(t *testing.T) {
	oldFK := ForeignKey{Name: "posts_user_fk", Columns: []string{"user_id"}, ReferencedTable: "old_users", ReferencedColumns: []string{"id"}}
	newFK := ForeignKey{Name: "posts_user_fk", Columns: []string{"user_id"}, ReferencedTable: "users", ReferencedColumns: []string{"id"}}
	diff, err := Compare(
		&Schema{Tables: []*Table{{Name: "old_users"}, {Name: "posts", ForeignKeys: []ForeignKey{oldFK}}}},
		&Schema{Tables: []*Table{{Name: "users"}, {Name: "posts", ForeignKeys: []ForeignKey{newFK}}}},
	)
	require.NoError(t, err)

	t.Run("full", func(t *testing.T) {
		p := &recordingPlatform{fakePlatform: allCapabilities()}
		ddls, err := diff.ToSQL(p)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"drop_fk:posts->old_users",
			"create_table:users",
			"create_index:users",
			"drop_table:old_users",
			"alter_table:posts",
		}, ddls)
		require.Len(t, p.altered, 1)
		assert.Equal(t, []ForeignKey{newFK}, p.altered[0].AddedForeignKeys)
		assert.Empty(t, p.altered[0].ChangedForeignKeys)
		assert.Empty(t, p.altered[0].RemovedForeignKeys)
	})

	// The orphan is kept, so its name is still taken.
	t.Run("safe", func(t *testing.T) {
		p := &recordingPlatform{fakePlatform: allCapabilities()}
		ddls, err := diff.ToSafeSQL(p)
		require.NoError(t, err)
		assert.Equal(t, []string{"create_table:users", "create_index:users"}, ddls)
		assert.Empty(t, p.altered)
		// The diff itself is left untouched.
		require.Len(t, diff.ChangedTables(), 1)
		assert.Equal(t, []ForeignKey{newFK}, diff.ChangedTables()[0].AddedForeignKeys)
	})
}

func TestEmitEmptyDiff(t *testing.T) {
	diff, err := NewDiffBuilder().Build()
	require.NoError(t, err)
	assert.True(t, diff.IsEmpty())

	full, err := diff.ToSQL(allCapabilities())
	require.NoError(t, err)
	assert.Empty(t, full)

	safe, err := diff.ToSafeSQL(allCapabilities())
	require.NoError(t, err)
	assert.Empty(t, safe)
}

func TestEmitPropagatesRenderError(t *testing.T) {
	for _, kind := range []string{"create_schema", "drop_fk", "alter_seq", "drop_seq", "create_seq", "create_table", "create_fk", "drop_table", "alter_table"} {
		t.Run(kind, func(t *testing.T) {
			p := allCapabilities()
			p.failOn = kind
			ddls, err := newWideDiff(t).ToSQL(p)
			assert.ErrorIs(t, err, errRender)
			assert.Nil(t, ddls)
		})
	}
}

func TestPhases(t *testing.T) {
	var destructive []string
	var names []string
	for _, p := range Phases() {
		names = append(names, p.Name)
		if p.Destructive {
			destructive = append(destructive, p.Name)
		}
	}
	assert.Equal(t, []string{
		"create namespaces",
		"drop orphaned foreign keys",
		"alter sequences",
		"drop sequences",
		"create sequences",
		"create tables",
		"create foreign keys",
		"drop tables",
		"alter tables",
	}, names)
	assert.Equal(t, []string{"drop orphaned foreign keys", "drop sequences", "drop tables"}, destructive)
}

func TestDiffBuilderRejectsInvalidDiff(t *testing.T) {
	tests := map[string]*DiffBuilder{
		"orphan owned by removed table": NewDiffBuilder().
			AddRemovedTable(&Table{Name: "posts"}).
			AddOrphanedForeignKey("Posts", ForeignKey{Columns: []string{"user_id"}, ReferencedTable: "users", ReferencedColumns: []string{"id"}}),
		"duplicated new table": NewDiffBuilder().
			AddNewTable(&Table{Name: "users"}).
			AddNewTable(&Table{Name: "USERS"}),
		"duplicated removed sequence": NewDiffBuilder().
			AddRemovedSequence(Sequence{Name: "seq"}).
			AddRemovedSequence(Sequence{Name: "seq"}),
	}
	for name, builder := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := builder.Build()
			assert.ErrorIs(t, err, ErrInvalidDiff)
		})
	}
}

func TestDiffAccessorsReturnCopies(t *testing.T) {
	diff := newWideDiff(t)
	namespaces := diff.NewNamespaces()
	namespaces[0] = "changed"
	assert.Equal(t, []string{"ns2", "ns1"}, diff.NewNamespaces())

	orphans := diff.OrphanedForeignKeys()
	require.Len(t, orphans, 1)
	assert.Equal(t, "audit", orphans[0].LocalTable)
	assert.Len(t, orphans[0].ForeignKeys, 2)
	orphans[0].ForeignKeys[0].ReferencedTable = "changed"
	assert.Equal(t, "legacy", diff.OrphanedForeignKeys()[0].ForeignKeys[0].ReferencedTable)
}

func ExampleDiff_ToSQL() {
	diff, _ := NewDiffBuilder().
		AddNewNamespace("app").
		AddNewTable(&Table{Name: "app.users"}).
		Build()
	ddls, _ := diff.ToSQL(allCapabilities())
	fmt.Println(strings.Join(ddls, "\n"))
	// Output:
	// create_schema:app
	// create_table:app.users
	// create_index:app.users
}
