// This package has the database layer: introspection into schema.Schema and
// execution of DDLs. Never deal with DDL construction.
package database

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/sqldef/schemadiff/schema"
)

type Config struct {
	DbName   string
	User     string
	Password string
	Host     string
	Port     int
	Socket   string
	SslMode  string

	TargetSchema    []string
	DumpConcurrency int

	// Only MySQL
	MySQLEnableCleartextPlugin bool
	// SslCa is the CA certificate used when SslMode is "custom" on MySQL.
	SslCa string
}

type GeneratorConfig struct {
	TargetTables          []string
	SkipTables            []string
	TargetSchema          []string
	DumpConcurrency       int
	DisableDdlTransaction bool
}

// Abstraction layer for multiple kinds of databases
type Database interface {
	ExportSchema() (*schema.Schema, error)
	DB() *sql.DB
	Close() error
	GetDefaultSchema() string
}

// RunDDLs applies `ddls` in order inside one transaction, unless the config
// disables it. `beforeApply` runs first in the same transaction.
func RunDDLs(d Database, ddls []string, beforeApply string, config GeneratorConfig, logger Logger) error {
	logger.Println("-- Apply --")
	if config.DisableDdlTransaction {
		if len(beforeApply) > 0 {
			logger.Println(beforeApply)
			if _, err := d.DB().Exec(beforeApply); err != nil {
				return err
			}
		}
		for _, ddl := range ddls {
			logger.Printf("%s;\n", ddl)
			if _, err := d.DB().Exec(ddl); err != nil {
				return fmt.Errorf("%s: %w", ddl, err)
			}
		}
		return nil
	}

	transaction, err := d.DB().Begin()
	if err != nil {
		return err
	}
	if len(beforeApply) > 0 {
		logger.Println(beforeApply)
		if _, err := transaction.Exec(beforeApply); err != nil {
			transaction.Rollback()
			return err
		}
	}
	for _, ddl := range ddls {
		logger.Printf("%s;\n", ddl)
		if _, err := transaction.Exec(ddl); err != nil {
			transaction.Rollback()
			return fmt.Errorf("%s: %w", ddl, err)
		}
	}
	return transaction.Commit()
}

type generatorConfigFile struct {
	TargetTables          string `yaml:"target_tables"`
	SkipTables            string `yaml:"skip_tables"`
	TargetSchema          string `yaml:"target_schema"`
	DumpConcurrency       int    `yaml:"dump_concurrency"`
	DisableDdlTransaction bool   `yaml:"disable_ddl_transaction"`
}

// ParseGeneratorConfig reads the YAML config file. An empty path is an empty config.
func ParseGeneratorConfig(configFile string) (GeneratorConfig, error) {
	if configFile == "" {
		return GeneratorConfig{}, nil
	}
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return GeneratorConfig{}, err
	}
	config, err := parseGeneratorConfig(buf)
	if err != nil {
		return GeneratorConfig{}, fmt.Errorf("%s: %w", configFile, err)
	}
	return config, nil
}

// ParseGeneratorConfigString reads a config given inline, e.g. by --config-inline.
func ParseGeneratorConfigString(yamlString string) (GeneratorConfig, error) {
	return parseGeneratorConfig([]byte(yamlString))
}

func parseGeneratorConfig(buf []byte) (GeneratorConfig, error) {
	if len(bytes.TrimSpace(buf)) == 0 {
		return GeneratorConfig{}, nil
	}
	var config generatorConfigFile
	dec := yaml.NewDecoder(bytes.NewReader(buf), yaml.DisallowUnknownField())
	if err := dec.Decode(&config); err != nil {
		return GeneratorConfig{}, err
	}
	return GeneratorConfig{
		TargetTables:          splitLines(config.TargetTables),
		SkipTables:            splitLines(config.SkipTables),
		TargetSchema:          splitLines(config.TargetSchema),
		DumpConcurrency:       config.DumpConcurrency,
		DisableDdlTransaction: config.DisableDdlTransaction,
	}, nil
}

// MergeGeneratorConfigs merges configs in order. A later config overrides the
// fields it sets.
func MergeGeneratorConfigs(configs ...GeneratorConfig) GeneratorConfig {
	var result GeneratorConfig
	for _, config := range configs {
		if config.TargetTables != nil {
			result.TargetTables = config.TargetTables
		}
		if config.SkipTables != nil {
			result.SkipTables = config.SkipTables
		}
		if config.TargetSchema != nil {
			result.TargetSchema = config.TargetSchema
		}
		if config.DumpConcurrency != 0 {
			result.DumpConcurrency = config.DumpConcurrency
		}
		if config.DisableDdlTransaction {
			result.DisableDdlTransaction = true
		}
	}
	return result
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
