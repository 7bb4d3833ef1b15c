package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/sqldef/schemadiff"
	"github.com/sqldef/schemadiff/database"
	"github.com/sqldef/schemadiff/database/file"
	"github.com/sqldef/schemadiff/database/mssql"
	"github.com/sqldef/schemadiff/database/mysql"
	"github.com/sqldef/schemadiff/database/postgres"
	"github.com/sqldef/schemadiff/database/sqlite3"
	"github.com/sqldef/schemadiff/schema"
	"github.com/sqldef/schemadiff/util"
	"golang.org/x/term"
)

// version and revision are set via -ldflags
var version = "dev"
var revision = "HEAD"

type cliOptions struct {
	Type                  string   `short:"t" long:"type" description:"Database type (mysql, postgres, sqlite3, mssql)" value-name:"db_type" required:"true"`
	User                  string   `short:"U" long:"user" description:"Database user name" value-name:"user_name"`
	Password              string   `short:"W" long:"password" description:"Database user password, overridden by $MYSQL_PWD, $PGPASSWORD or $MSSQL_PWD" value-name:"password"`
	Host                  string   `short:"h" long:"host" description:"Host to connect to the database server" value-name:"host_name" default:"127.0.0.1"`
	Port                  uint     `short:"p" long:"port" description:"Port used for the connection, the default of the database type when 0" value-name:"port_num"`
	Socket                string   `short:"S" long:"socket" description:"The socket file to use for connection" value-name:"socket"`
	SslMode               string   `long:"ssl-mode" description:"SSL connection mode, passed to the driver" value-name:"ssl_mode"`
	SslCa                 string   `long:"ssl-ca" description:"File that contains trusted SSL Certificate Authorities, with --ssl-mode=custom on MySQL" value-name:"ssl_ca"`
	EnableCleartextPlugin bool     `long:"enable-cleartext-plugin" description:"Enable the clear text authentication plugin of MySQL"`
	Prompt                bool     `long:"password-prompt" description:"Force database user password prompt"`
	File                  []string `short:"f" long:"file" description:"Read the desired schema YAML from the file, rather than stdin. Given twice, the first file is the current schema" value-name:"schema_file" default:"-"`
	DryRun                bool     `long:"dry-run" description:"Don't run DDLs but just show them"`
	Export                bool     `long:"export" description:"Just dump the current schema to stdout"`
	EnableDrop            bool     `long:"enable-drop" description:"Enable destructive changes such as DROP for TABLE, SEQUENCE and FOREIGN KEY"`
	BeforeApply           string   `long:"before-apply" description:"Execute the given string before applying the regular DDLs"`
	Debug                 bool     `long:"debug" description:"Print the computed schema diff to stderr"`
	Help                  bool     `long:"help" description:"Show this help"`
	Version               bool     `long:"version" description:"Show this version"`

	Config       func(string) error `long:"config" description:"YAML file to specify: target_tables, skip_tables, target_schema, dump_concurrency, disable_ddl_transaction (can be specified multiple times)"`
	ConfigInline func(string) error `long:"config-inline" description:"YAML object with the same keys as --config (can be specified multiple times)"`

	configs []database.GeneratorConfig
}

type command struct {
	mode    schema.GeneratorMode
	config  database.Config
	options *schemadiff.Options
	prompt  bool
}

var defaultPorts = map[schema.GeneratorMode]int{
	schema.GeneratorModeMysql:    3306,
	schema.GeneratorModePostgres: 5432,
	schema.GeneratorModeMssql:    1433,
}

var defaultUsers = map[schema.GeneratorMode]string{
	schema.GeneratorModeMysql:    "root",
	schema.GeneratorModePostgres: "postgres",
	schema.GeneratorModeMssql:    "sa",
}

var passwordEnvs = map[schema.GeneratorMode]string{
	schema.GeneratorModeMysql:    "MYSQL_PWD",
	schema.GeneratorModePostgres: "PGPASSWORD",
	schema.GeneratorModeMssql:    "MSSQL_PWD",
}

func newParser(opts *cliOptions) *flags.Parser {
	opts.Config = func(path string) error {
		config, err := database.ParseGeneratorConfig(path)
		if err != nil {
			return err
		}
		opts.configs = append(opts.configs, config)
		return nil
	}
	opts.ConfigInline = func(yaml string) error {
		config, err := database.ParseGeneratorConfigString(yaml)
		if err != nil {
			return err
		}
		opts.configs = append(opts.configs, config)
		return nil
	}

	parser := flags.NewParser(opts, flags.None)
	parser.Name = "schemadiff"
	parser.Usage = "--type=db_type [OPTIONS] [database|current.yml] < desired.yml"
	return parser
}

// parseCommand turns the parsed options and the positional arguments into a command.
func parseCommand(opts *cliOptions, args []string) (*command, error) {
	mode, err := schema.ParseGeneratorMode(opts.Type)
	if err != nil {
		return nil, err
	}

	desiredFile, currentFile, err := schemadiff.ParseFiles(opts.File)
	if err != nil {
		return nil, err
	}

	var databaseName string
	switch {
	case len(args) > 1:
		return nil, fmt.Errorf("multiple databases are given: %v", args)
	case len(args) == 1 && (strings.HasSuffix(args[0], ".yml") || strings.HasSuffix(args[0], ".yaml")):
		if currentFile != "" {
			return nil, fmt.Errorf("the current schema is given twice: %s and %s", currentFile, args[0])
		}
		currentFile = args[0]
	case len(args) == 1:
		databaseName = args[0]
	case currentFile == "":
		return nil, fmt.Errorf("no database is specified")
	}

	config := database.MergeGeneratorConfigs(opts.configs...)
	options := &schemadiff.Options{
		DesiredFile: desiredFile,
		CurrentFile: currentFile,
		DryRun:      opts.DryRun,
		Export:      opts.Export,
		EnableDrop:  opts.EnableDrop,
		BeforeApply: opts.BeforeApply,
		Config:      config,
		Debug:       opts.Debug,
	}

	sslMode := opts.SslMode
	if mode == schema.GeneratorModeMysql {
		if sslMode, err = mysqlSslMode(opts.SslMode); err != nil {
			return nil, err
		}
	}

	user := opts.User
	if user == "" {
		user = defaultUsers[mode]
	}
	port := int(opts.Port)
	if port == 0 {
		port = defaultPorts[mode]
	}
	password := opts.Password
	if env, ok := passwordEnvs[mode]; ok {
		if value, ok := os.LookupEnv(env); ok {
			password = value
		}
	}

	return &command{
		mode: mode,
		config: database.Config{
			DbName:                     databaseName,
			User:                       user,
			Password:                   password,
			Host:                       opts.Host,
			Port:                       port,
			Socket:                     opts.Socket,
			SslMode:                    sslMode,
			SslCa:                      opts.SslCa,
			MySQLEnableCleartextPlugin: opts.EnableCleartextPlugin,
			TargetSchema:               config.TargetSchema,
			DumpConcurrency:            config.DumpConcurrency,
		},
		options: options,
		prompt:  opts.Prompt,
	}, nil
}

// mysqlSslMode maps the --ssl-mode of the mysql client to the tls parameter of the driver.
func mysqlSslMode(mode string) (string, error) {
	switch strings.ToLower(mode) {
	case "", "preferred":
		return "preferred", nil
	case "disabled":
		return "false", nil
	case "required":
		return "true", nil
	case "custom":
		return "custom", nil
	default:
		return "", fmt.Errorf("wrong value for ssl-mode is given: %v", mode)
	}
}

func openDatabase(cmd *command) (database.Database, error) {
	if cmd.options.CurrentFile != "" {
		return file.NewDatabase(cmd.options.CurrentFile), nil
	}

	var db database.Database
	var err error
	switch cmd.mode {
	case schema.GeneratorModeMysql:
		db, err = mysql.NewDatabase(cmd.config)
	case schema.GeneratorModePostgres:
		db, err = postgres.NewDatabase(cmd.config)
	case schema.GeneratorModeMssql:
		db, err = mssql.NewDatabase(cmd.config)
	case schema.GeneratorModeSQLite3:
		db, err = sqlite3.NewDatabase(cmd.config)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cmd.mode)
	}
	if err != nil {
		return nil, err
	}

	if cmd.options.DryRun {
		return database.NewDryRunDatabase(db)
	}
	return db, nil
}

func main() {
	util.InitSlog()

	var opts cliOptions
	parser := newParser(&opts)
	args, err := parser.ParseArgs(os.Args[1:])
	if opts.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if opts.Version {
		fmt.Printf("%s (%s)\n", version, revision)
		os.Exit(0)
	}
	if err != nil {
		log.Fatal(err)
	}

	cmd, err := parseCommand(&opts, args)
	if err != nil {
		fmt.Printf("%s\n\n", err)
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}

	if cmd.prompt {
		fmt.Printf("Enter Password: ")
		pass, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println()
		cmd.config.Password = string(pass)
	}

	db, err := openDatabase(cmd)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := schemadiff.Run(cmd.mode, db, cmd.options, database.WriterLogger{}); err != nil {
		log.Fatal(err)
	}
}
