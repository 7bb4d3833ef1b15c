package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchema(t *testing.T) {
	s, err := ParseSchema([]byte(`
namespaces: [app]
sequences:
  - name: app.invoice_seq
    increment: 2
    cache: 10
tables:
  - name: users
    columns:
      - name: id
        type: bigint
        not_null: true
        auto_increment: true
      - name: name
        type: varchar
        length: 40
        default: "'anonymous'"
    primary_key: [id]
    indexes:
      - name: users_name
        columns: [name]
        unique: true
    comment: accounts
  - name: app.invoices
    columns:
      - name: user_id
        type: bigint
      - name: total
        type: decimal
        precision: 10
        scale: 2
    foreign_keys:
      - columns: [user_id]
        references: users
        referenced_columns: [id]
        on_delete: CASCADE
`))
	require.NoError(t, err)

	assert.Equal(t, &Schema{
		Namespaces: []string{"app"},
		Sequences:  []Sequence{{Name: "app.invoice_seq", Increment: 2, Cache: 10}},
		Tables: []*Table{
			{
				Name: "users",
				Columns: []Column{
					{Name: "id", Type: "bigint", NotNull: true, AutoIncrement: true},
					{Name: "name", Type: "varchar", Length: intPtr(40), Default: stringPtr("'anonymous'")},
				},
				PrimaryKey: []string{"id"},
				Indexes:    []Index{{Name: "users_name", Columns: []string{"name"}, Unique: true}},
				Comment:    "accounts",
			},
			{
				Name: "app.invoices",
				Columns: []Column{
					{Name: "user_id", Type: "bigint"},
					{Name: "total", Type: "decimal", Precision: intPtr(10), Scale: intPtr(2)},
				},
				ForeignKeys: []ForeignKey{
					{Columns: []string{"user_id"}, ReferencedTable: "users", ReferencedColumns: []string{"id"}, OnDelete: "CASCADE"},
				},
			},
		},
	}, s)

	out, err := MarshalSchema(s)
	require.NoError(t, err)
	reparsed, err := ParseSchema(out)
	require.NoError(t, err)
	assert.Equal(t, s, reparsed)
}

func TestParseEmptySchema(t *testing.T) {
	s, err := ParseSchema([]byte("  \n"))
	require.NoError(t, err)
	assert.Equal(t, &Schema{}, s)
}

func TestParseSchemaErrors(t *testing.T) {
	tests := []struct {
		name     string
		snapshot string
		expected string
	}{
		{
			name:     "unknown field",
			snapshot: "tables:\n  - name: users\n    colums: []\n",
			expected: "unknown field",
		},
		{
			name:     "table without name",
			snapshot: "tables:\n  - columns: []\n",
			expected: "table without name",
		},
		{
			name:     "duplicated table",
			snapshot: "tables:\n  - name: users\n    columns: []\n  - name: USERS\n    columns: []\n",
			expected: `duplicated table "USERS"`,
		},
		{
			name:     "column without type",
			snapshot: "tables:\n  - name: users\n    columns:\n      - name: id\n",
			expected: `table "users": column needs both name and type`,
		},
		{
			name:     "duplicated column",
			snapshot: "tables:\n  - name: users\n    columns:\n      - {name: id, type: int}\n      - {name: Id, type: int}\n",
			expected: `table "users": duplicated column "Id"`,
		},
		{
			name: "foreign key column count",
			snapshot: `tables:
  - name: posts
    columns: []
    foreign_keys:
      - name: fk_posts_user
        columns: [user_id, tenant_id]
        references: users
        referenced_columns: [id]
`,
			expected: `table "posts": foreign key "fk_posts_user" needs the same number of columns and referenced columns`,
		},
		{
			name:     "sequence without name",
			snapshot: "sequences:\n  - increment: 1\n",
			expected: "sequence without name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchema([]byte(tt.snapshot))
			assert.ErrorContains(t, err, tt.expected)
		})
	}
}
