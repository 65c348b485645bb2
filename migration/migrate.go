package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"location-relay/config"
)

const (
	readyAttempts = 10
	readyDelay    = 3 * time.Second
)

// WaitForDB pings postgres until it answers or the attempts run out.
func WaitForDB(ctx context.Context, cfg config.DBConfig, log *slog.Logger) error {
	db, err := sql.Open("postgres", cfg.ConnString())
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	for i := 1; i <= readyAttempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			log.Info("database is ready", "action", "db_ready", "attempt", i)
			return nil
		}
		log.Info("waiting for the database", "action", "db_wait", "attempt", i, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyDelay):
		}
	}
	return fmt.Errorf("could not connect to the database: %w", err)
}

// Up applies all pending migrations from cfg.MigrationsPath.
func Up(cfg config.DBConfig, log *slog.Logger) error {
	m, err := migrate.New(cfg.MigrationsPath, cfg.URL())
	if err != nil {
		return fmt.Errorf("could not start migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Info("migrations applied", "action", "migrations_applied", "source", cfg.MigrationsPath)
	return nil
}

// Down rolls back every applied migration.
func Down(cfg config.DBConfig, log *slog.Logger) error {
	m, err := migrate.New(cfg.MigrationsPath, cfg.URL())
	if err != nil {
		return fmt.Errorf("could not start migrations: %w", err)
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback failed: %w", err)
	}
	log.Info("migrations rolled back", "action", "migrations_rolled_back", "source", cfg.MigrationsPath)
	return nil
}

// RunMigrations waits for the database and applies all pending migrations.
func RunMigrations(ctx context.Context, cfg config.DBConfig, log *slog.Logger) error {
	if err := WaitForDB(ctx, cfg, log); err != nil {
		return err
	}
	return Up(cfg, log)
}
