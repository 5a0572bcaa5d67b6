package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/smarteros/backend/internal/infrastructure/config"
	"github.com/smarteros/backend/internal/infrastructure/logger"
	"github.com/smarteros/backend/internal/infrastructure/migration"
)

func main() {
	var (
		dir      string
		logLevel string
	)
	flag.StringVar(&dir, "path", "migrations", "migrations directory")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{Level: logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()

	// create only touches the filesystem, no connection needed.
	if command == "create" {
		if len(args) < 2 {
			log.Fatal("usage: migrate create <name>")
		}
		up, down, err := migration.Create(dir, args[1])
		if err != nil {
			log.Fatal("create migration", zap.Error(err))
		}
		log.Info("migration created", zap.String("up", up), zap.String("down", down))
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load configuration", zap.Error(err))
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal("ping database", zap.Error(err))
	}

	runner, err := migration.NewRunner(db, dir, log)
	if err != nil {
		log.Fatal("prepare migrations", zap.Error(err))
	}
	defer runner.Close()

	switch command {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "step":
		if len(args) < 2 {
			log.Fatal("usage: migrate step <n>")
		}
		n, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			log.Fatal("step count must be an integer", zap.String("got", args[1]))
		}
		err = runner.Steps(n)
	case "version":
		v, dirty, verErr := runner.Version()
		if verErr != nil {
			log.Fatal("read schema version", zap.Error(verErr))
		}
		if v == 0 {
			log.Info("no migrations applied")
		} else {
			log.Info("schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		}
	case "force":
		if len(args) < 2 {
			log.Fatal("usage: migrate force <version>")
		}
		v, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			log.Fatal("version must be an integer", zap.String("got", args[1]))
		}
		err = runner.Force(v)
	default:
		fmt.Fprintln(os.Stderr, "unknown command:", command)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: migrate [flags] <command> [args]

commands:
  up               apply all pending migrations
  down             roll back the last migration
  step <n>         step n migrations (negative rolls back)
  version          print current schema version
  force <version>  stamp the schema version after a manual repair
  create <name>    write an empty up/down migration pair

flags:
  -path string       migrations directory (default "migrations")
  -log-level string  debug, info, warn or error (default "info")

database settings come from SYNC_DATABASE_* environment variables or
the config file, same as the server.
`)
}
