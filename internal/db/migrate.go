package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fruitapp-be/internal/logger"

	"go.uber.org/zap"
)

const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// Migrate applies (up) every pending migration in dir, or rolls back (down)
// the most recently applied one. Files are plain SQL with
// "-- +migrate Up" and "-- +migrate Down" sections and run in name order.
func Migrate(ctx context.Context, sqlDB *sql.DB, mode, dir string) error {
	_, err := sqlDB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	sort.Strings(files)

	switch mode {
	case MigrateUp:
		return migrateUp(ctx, sqlDB, files)
	case MigrateDown:
		return migrateDown(ctx, sqlDB, files)
	default:
		return fmt.Errorf("unknown mode: %s (use 'up' or 'down')", mode)
	}
}

func migrateUp(ctx context.Context, sqlDB *sql.DB, files []string) error {
	log := logger.FromCtx(ctx).With(zap.String("layer", "migrate"))

	applied := 0
	for _, file := range files {
		version := filepath.Base(file)

		var exists bool
		err := sqlDB.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if exists {
			log.Debug("skipping applied migration", zap.String("version", version))
			continue
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		log.Info("applying migration", zap.String("version", version))
		err = applyInTx(ctx, sqlDB, ExtractMigrationPart(string(content), "Up"),
			`INSERT INTO schema_migrations (version) VALUES ($1)`, version)
		if err != nil {
			return fmt.Errorf("migration failed (%s): %w", version, err)
		}
		applied++
	}

	log.Info("migrations up to date", zap.Int("applied", applied))
	return nil
}

func migrateDown(ctx context.Context, sqlDB *sql.DB, files []string) error {
	log := logger.FromCtx(ctx).With(zap.String("layer", "migrate"))

	var lastVersion string
	err := sqlDB.QueryRowContext(ctx,
		`SELECT version FROM schema_migrations ORDER BY applied_at DESC, version DESC LIMIT 1`,
	).Scan(&lastVersion)
	if errors.Is(err, sql.ErrNoRows) {
		log.Warn("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get last applied migration: %w", err)
	}

	filePath := ""
	for _, f := range files {
		if filepath.Base(f) == lastVersion {
			filePath = f
			break
		}
	}
	if filePath == "" {
		return fmt.Errorf("migration file not found for version: %s", lastVersion)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	log.Info("rolling back migration", zap.String("version", lastVersion))
	err = applyInTx(ctx, sqlDB, ExtractMigrationPart(string(content), "Down"),
		`DELETE FROM schema_migrations WHERE version = $1`, lastVersion)
	if err != nil {
		return fmt.Errorf("rollback failed (%s): %w", lastVersion, err)
	}
	return nil
}

// applyInTx runs a migration body and its schema_migrations bookkeeping
// atomically, so a crash between them cannot re-apply the migration.
func applyInTx(ctx context.Context, sqlDB *sql.DB, body, bookkeeping, version string) error {
	return NewTxManager(sqlDB).WithinTx(ctx, func(ctx context.Context) error {
		conn := Conn(ctx, sqlDB)
		if _, err := conn.ExecContext(ctx, body); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, bookkeeping, version); err != nil {
			return fmt.Errorf("update schema_migrations: %w", err)
		}
		return nil
	})
}

// ExtractMigrationPart returns the lines of one "-- +migrate <section>" block.
func ExtractMigrationPart(content, section string) string {
	var part strings.Builder
	inPart := false

	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "-- +migrate "+section) {
			inPart = true
			continue
		}
		if inPart && strings.HasPrefix(line, "-- +migrate") {
			break
		}
		if inPart {
			part.WriteString(line + "\n")
		}
	}
	return part.String()
}
