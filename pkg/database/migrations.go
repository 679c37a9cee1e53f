package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// RunMigrations applies pending schema migrations from migrationsPath.
// Idempotent: an up-to-date database is not an error. The graph schema
// requires the pgvector extension, which the first migration creates, so
// the connected role must be allowed to CREATE EXTENSION on first run.
func RunMigrations(db *sql.DB, migrationsPath string, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}

	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	before, _, versionErr := m.Version()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Schema up to date", zap.Uint("version", before))
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	after, dirty, _ := m.Version()
	if dirty {
		return fmt.Errorf("migration left schema dirty at version %d", after)
	}

	fields := []zap.Field{zap.Uint("version", after)}
	if versionErr == nil {
		fields = append(fields, zap.Uint("from", before))
	}
	logger.Info("Applied schema migrations", fields...)
	return nil
}
