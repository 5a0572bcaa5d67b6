// Package migration drives schema changes from versioned SQL files.
package migration

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Runner applies up/down migrations against an open connection.
type Runner struct {
	m   *migrate.Migrate
	log *zap.Logger
}

// NewRunner wires the file source at dir to db.
func NewRunner(db *sql.DB, dir string, log *zap.Logger) (*Runner, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("prepare migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("open migration source %s: %w", dir, err)
	}
	return &Runner{m: m, log: log}, nil
}

// Up applies every pending migration.
func (r *Runner) Up() error {
	if err := r.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.log.Info("schema already current")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	r.report("migrations applied")
	return nil
}

// Down rolls back a single migration.
func (r *Runner) Down() error {
	if err := r.m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.log.Info("nothing to roll back")
			return nil
		}
		return fmt.Errorf("roll back migration: %w", err)
	}
	r.report("migration rolled back")
	return nil
}

// Steps moves n migrations forward (or backward when negative).
func (r *Runner) Steps(n int) error {
	if err := r.m.Steps(n); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.log.Info("no migrations to run")
			return nil
		}
		return fmt.Errorf("step migrations: %w", err)
	}
	r.report("migrations stepped")
	return nil
}

// Version reports the current schema version and whether it is dirty.
func (r *Runner) Version() (uint, bool, error) {
	v, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return v, dirty, nil
}

// Force stamps the schema version without running migrations. Used to
// recover a dirty state after a failed migration was fixed by hand.
func (r *Runner) Force(version int) error {
	if err := r.m.Force(version); err != nil {
		return fmt.Errorf("force schema version: %w", err)
	}
	r.log.Warn("schema version forced", zap.Int("version", version))
	return nil
}

// Close releases the source and database handles.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	if srcErr != nil {
		return fmt.Errorf("close migration source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close migration database: %w", dbErr)
	}
	return nil
}

func (r *Runner) report(msg string) {
	v, dirty, err := r.Version()
	if err != nil {
		r.log.Warn(msg, zap.Error(err))
		return
	}
	r.log.Info(msg, zap.Uint("version", v), zap.Bool("dirty", dirty))
}
