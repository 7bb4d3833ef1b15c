package testutil

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/sqldef/schemadiff"
	"github.com/sqldef/schemadiff/database"
	"github.com/sqldef/schemadiff/schema"
	"github.com/sqldef/schemadiff/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCase is one migration between two YAML schema snapshots.
type TestCase struct {
	Current    string  // default: empty schema
	Desired    string  // default: empty schema
	Up         *string // expected DDL for current → desired migration
	Down       *string // expected DDL for desired → current migration
	Error      *string // default: nil
	EnableDrop *bool   `yaml:"enable_drop"` // default: true
	Config     struct {
		TargetTables string `yaml:"target_tables"`
		SkipTables   string `yaml:"skip_tables"`
	} `yaml:"config"`
}

func init() {
	util.InitSlog()

	// Keep test output clean unless LOG_LEVEL asks for more.
	if os.Getenv("LOG_LEVEL") == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	}
}

func ReadTests(pattern string) (map[string]TestCase, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	ret := map[string]TestCase{}
	testFileMap := map[string]string{}
	for _, file := range files {
		var tests map[string]*TestCase

		buf, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(buf), yaml.DisallowUnknownField())
		if err := dec.Decode(&tests); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}

		for name, test := range tests {
			if (test.Up != nil && test.Down == nil) || (test.Up == nil && test.Down != nil) {
				return nil, fmt.Errorf("%s: test case '%s': if 'up' is specified, 'down' must also be specified (and vice versa)", file, name)
			}
			if test.EnableDrop == nil {
				enableDrop := true
				test.EnableDrop = &enableDrop
			}
			if existingFile, ok := testFileMap[name]; ok {
				return nil, fmt.Errorf("duplicate test case name '%s': defined in both '%s' and '%s'", name, existingFile, file)
			}
			testFileMap[name] = file
			ret[name] = *test
		}
	}
	return ret, nil
}

func (test TestCase) generatorConfig() database.GeneratorConfig {
	return database.GeneratorConfig{
		TargetTables: splitPatterns(test.Config.TargetTables),
		SkipTables:   splitPatterns(test.Config.SkipTables),
	}
}

// RunOfflineTest checks the DDLs generated between the snapshots of `test`
// without a database.
func RunOfflineTest(t *testing.T, test TestCase, mode schema.GeneratorMode) {
	t.Helper()

	current := mustParseSchema(t, test.Current)
	desired := mustParseSchema(t, test.Desired)
	config := test.generatorConfig()

	ddls, err := schemadiff.GenerateDDLs(mode, desired, current, config, *test.EnableDrop)
	if test.Error != nil {
		if assert.Error(t, err, "[Offline: Forward Migration] expected error") {
			assert.Equal(t, *test.Error, err.Error())
		}
		return
	}
	require.NoError(t, err, "[Offline: Forward Migration] failed to generate DDLs")

	if test.Up != nil {
		assert.Equal(t, strings.TrimSpace(*test.Up), strings.TrimSpace(JoinDDLs(ddls)), "[Offline: Forward Migration] current → desired should produce 'up' DDL")

		ddls, err = schemadiff.GenerateDDLs(mode, current, desired, config, *test.EnableDrop)
		require.NoError(t, err, "[Offline: Reverse Migration] failed to generate DDLs")
		assert.Equal(t, strings.TrimSpace(*test.Down), strings.TrimSpace(JoinDDLs(ddls)), "[Offline: Reverse Migration] desired → current should produce 'down' DDL")
	}

	for _, snapshot := range []*schema.Schema{current, desired} {
		ddls, err = schemadiff.GenerateDDLs(mode, snapshot, snapshot, config, true)
		require.NoError(t, err)
		assert.Empty(t, ddls, "[Offline: Idempotency Check] a snapshot compared with itself should produce no DDL")
	}
}

// RunTest applies the migrations of `test` to `db` and checks that the
// exported schema matches the snapshot after each of them.
func RunTest(t *testing.T, db database.Database, test TestCase, mode schema.GeneratorMode) {
	t.Helper()

	config := test.generatorConfig()
	current := mustParseSchema(t, test.Current)
	desired := mustParseSchema(t, test.Desired)

	migrate := func(phase string, target *schema.Schema, expected *string) {
		t.Helper()
		exported, err := db.ExportSchema()
		require.NoError(t, err, "[%s] failed to export schema", phase)
		ddls, err := schemadiff.GenerateDDLs(mode, target, exported, config, true)
		require.NoError(t, err, "[%s] failed to generate DDLs", phase)
		if expected != nil {
			assert.Equal(t, strings.TrimSpace(*expected), strings.TrimSpace(JoinDDLs(ddls)), "[%s] unexpected DDL", phase)
		}
		require.NoError(t, database.RunDDLs(db, ddls, "", config, database.NullLogger{}), "[%s] failed to apply DDLs", phase)

		exported, err = db.ExportSchema()
		require.NoError(t, err, "[%s] failed to export schema", phase)
		ddls, err = schemadiff.GenerateDDLs(mode, target, exported, config, true)
		require.NoError(t, err, "[%s] failed to generate DDLs", phase)
		assert.Empty(t, ddls, "[%s] applying the DDLs should make the database match the snapshot", phase)
	}

	migrate("Setup", current, nil)
	migrate("Forward Migration", desired, test.Up)
	migrate("Reverse Migration", current, test.Down)
}

func mustParseSchema(t *testing.T, snapshot string) *schema.Schema {
	t.Helper()
	s, err := schema.ParseSchema([]byte(snapshot))
	require.NoError(t, err)
	return s
}

// JoinDDLs renders DDLs the way the command prints them.
func JoinDDLs(ddls []string) string {
	var builder strings.Builder
	for _, ddl := range ddls {
		builder.WriteString(ddl)
		builder.WriteString(";\n")
	}
	return builder.String()
}

func splitPatterns(s string) []string {
	var patterns []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			patterns = append(patterns, line)
		}
	}
	return patterns
}
