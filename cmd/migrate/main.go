package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"fruitapp-be/internal/config"
	"fruitapp-be/internal/db"
	"fruitapp-be/internal/logger"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	logger.Init(os.Getenv("APP_ENV"))
	defer logger.Sync()

	mode := flag.String("mode", db.MigrateUp, "migration mode: up or down")
	dir := flag.String("dir", "./migrations", "directory holding *.sql migrations")
	flag.Parse()

	sqlDB, err := open()
	if err != nil {
		logger.L().Fatal("failed to connect db", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := run(context.Background(), sqlDB, *mode, *dir); err != nil {
		logger.L().Fatal("migration failed", zap.Error(err))
	}
}

// open prefers DB_URL and falls back to the DB_* settings the server uses.
func open() (*sql.DB, error) {
	if dbURL := os.Getenv("DB_URL"); dbURL != "" {
		return sql.Open("postgres", dbURL)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return db.NewDatabase(cfg)
}

func run(ctx context.Context, sqlDB *sql.DB, mode, dir string) error {
	if mode != db.MigrateUp && mode != db.MigrateDown {
		return fmt.Errorf("unknown mode: %s (use 'up' or 'down')", mode)
	}
	return db.Migrate(ctx, sqlDB, mode, dir)
}
