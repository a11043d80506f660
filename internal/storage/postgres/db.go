// Package postgres implements the guest and booking repositories on a hosted
// PostgreSQL database.
package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/room-calendar-sync/backend/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	Pool *pgxpool.Pool
}

// Connect opens a pool for dsn. A non-empty password overrides the one in dsn,
// so the store credential can be kept out of the endpoint.
func Connect(ctx context.Context, dsn, password string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if password != "" {
		cfg.ConnConfig.Password = password
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	var one int
	return db.Pool.QueryRow(ctx, "select 1").Scan(&one)
}

// RunMigrations applies the embedded schema. Every script is idempotent.
func (db *DB) RunMigrations(ctx context.Context, logger *zap.Logger) error {
	migrations, err := storage.LoadMigrations(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, m := range migrations {
		logger.Info("applying migration", zap.String("name", m.Name))
		if _, err := db.Pool.Exec(ctx, m.Content); err != nil {
			return fmt.Errorf("exec migration %s: %w", m.Name, err)
		}
	}
	return nil
}
