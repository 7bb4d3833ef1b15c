// Package schemadiff compares a desired schema snapshot with a database and
// applies the DDLs which turn one into the other.
package schemadiff

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/k0kubun/pp/v3"
	"github.com/sqldef/schemadiff/database"
	"github.com/sqldef/schemadiff/platform"
	"github.com/sqldef/schemadiff/schema"
)

type Options struct {
	DesiredFile string
	CurrentFile string
	DryRun      bool
	Export      bool
	EnableDrop  bool
	BeforeApply string
	Config      database.GeneratorConfig
	Debug       bool
}

// GenerateDDLs returns the DDLs which turn `current` into `desired`. Without
// `enableDrop` the DDLs which drop something are left out.
func GenerateDDLs(mode schema.GeneratorMode, desired, current *schema.Schema, config database.GeneratorConfig, enableDrop bool) ([]string, error) {
	diff, err := generateDiff(desired, current, config)
	if err != nil {
		return nil, err
	}
	p, err := platform.New(mode)
	if err != nil {
		return nil, err
	}
	if enableDrop {
		return diff.ToSQL(p)
	}
	return diff.ToSafeSQL(p)
}

func generateDiff(desired, current *schema.Schema, config database.GeneratorConfig) (*schema.Diff, error) {
	desired, err := schema.FilterTables(desired, config.TargetTables, config.SkipTables)
	if err != nil {
		return nil, err
	}
	current, err = schema.FilterTables(current, config.TargetTables, config.SkipTables)
	if err != nil {
		return nil, err
	}
	return schema.Compare(current, desired)
}

// Run is the main function of the command.
func Run(mode schema.GeneratorMode, db database.Database, options *Options, logger database.Logger) error {
	current, err := db.ExportSchema()
	if err != nil {
		return fmt.Errorf("error on ExportSchema: %w", err)
	}

	if options.Export {
		return exportSchema(current, options.Config, logger)
	}

	buf, err := ReadFile(options.DesiredFile)
	if err != nil {
		return fmt.Errorf("failed to read '%s': %w", options.DesiredFile, err)
	}
	desired, err := schema.ParseSchema(buf)
	if err != nil {
		return fmt.Errorf("failed to parse '%s': %w", options.DesiredFile, err)
	}

	diff, err := generateDiff(desired, current, options.Config)
	if err != nil {
		return err
	}
	if options.Debug {
		pp.Fprintln(os.Stderr, diff)
	}
	if diff.IsEmpty() {
		logger.Println("-- Nothing is modified --")
		return nil
	}

	p, err := platform.New(mode)
	if err != nil {
		return err
	}
	ddls, err := diff.ToSQL(p)
	if err != nil {
		return err
	}
	var skipped []string
	if !options.EnableDrop {
		safe, err := diff.ToSafeSQL(p)
		if err != nil {
			return err
		}
		skipped = skippedDDLs(ddls, safe)
		ddls = safe
	}
	slog.Debug("Generated DDLs", "mode", mode, "ddls", len(ddls), "skipped", len(skipped))

	if options.DryRun || len(options.CurrentFile) > 0 {
		showDDLs(ddls, skipped, options.BeforeApply, logger)
		return nil
	}

	for _, ddl := range skipped {
		logger.Printf("-- Skipped: %s;\n", ddl)
	}
	if len(ddls) == 0 {
		return nil
	}
	return database.RunDDLs(db, ddls, options.BeforeApply, options.Config, logger)
}

func exportSchema(current *schema.Schema, config database.GeneratorConfig, logger database.Logger) error {
	current, err := schema.FilterTables(current, config.TargetTables, config.SkipTables)
	if err != nil {
		return err
	}
	if len(current.Tables) == 0 && len(current.Namespaces) == 0 && len(current.Sequences) == 0 {
		logger.Println("-- No table exists --")
		return nil
	}
	out, err := schema.MarshalSchema(current)
	if err != nil {
		return err
	}
	logger.Printf("%s", out)
	return nil
}

// skippedDDLs returns the DDLs of `full` which Emit left out of `safe`.
func skippedDDLs(full, safe []string) []string {
	var skipped []string
	i := 0
	for _, ddl := range full {
		if i < len(safe) && safe[i] == ddl {
			i++
			continue
		}
		skipped = append(skipped, ddl)
	}
	return skipped
}

// ParseFiles returns the desired file and the current file of the --file
// options. With two files, the first one is the current schema.
func ParseFiles(files []string) (string, string, error) {
	switch len(files) {
	case 0:
		return "-", "", nil
	case 1:
		return files[0], "", nil
	case 2:
		return files[1], files[0], nil
	default:
		return "", "", fmt.Errorf("expected only one or two --file options, but got: %v", files)
	}
}

// ReadFile reads `filepath`, or stdin when it is "-".
func ReadFile(filepath string) ([]byte, error) {
	if filepath == "-" {
		if stat, err := os.Stdin.Stat(); err == nil && (stat.Mode()&os.ModeCharDevice) != 0 {
			return nil, fmt.Errorf("stdin is not piped")
		}
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(filepath)
}

func showDDLs(ddls []string, skipped []string, beforeApply string, logger database.Logger) {
	logger.Println("-- dry run --")
	if len(beforeApply) > 0 {
		logger.Println(beforeApply)
	}
	for _, ddl := range ddls {
		logger.Printf("%s;\n", ddl)
	}
	for _, ddl := range skipped {
		logger.Printf("-- Skipped: %s;\n", ddl)
	}
}
