package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkin/internal/config"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/logger"
)

func main() {
	_ = godotenv.Load() // Loads .env file if present
	cfg := config.Load()

	dir := pflag.String("dir", cfg.Migrations.Dir, "directory holding the SQL migrations")
	down := pflag.Bool("down", false, "roll back every migration")
	to := pflag.Uint("to", 0, "migrate up or down to this version")
	quiet := pflag.BoolP("quiet", "q", false, "only log errors")
	pflag.Parse()

	log := logger.NewLoggerWithWriter(os.Stdout)
	if *quiet {
		log = logger.NewLoggerWithWriter(io.Discard)
	}

	if cfg.Database.DSN == "" {
		fmt.Fprintln(os.Stderr, "POSTGRES_DSN not set")
		os.Exit(1)
	}
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: *dir}, log)
	defer runner.Close()

	switch {
	case *down:
		log.Info("MIGRATE", "Rolling back all migrations")
		err = runner.MigrateDown()
	case pflag.CommandLine.Changed("to"):
		log.Info("MIGRATE", fmt.Sprintf("Migrating to version %d", *to))
		err = runner.MigrateTo(*to)
	default:
		err = runner.RunMigrations()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		runner.Close()
		os.Exit(1)
	}
	log.Info("MIGRATE", "✅ Migrations complete")
}
