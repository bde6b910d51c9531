package repo

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// NewPool создаёт пул соединений Postgres и проверяет доступность.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// OpenSQLite открывает файл SQLite с одним соединением и WAL.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	// Один writer: claim/complete/reset сериализуются на соединении.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Open создаёт TaskStore по имени драйвера и применяет схему.
func Open(ctx context.Context, driver, dsn string) (TaskStore, error) {
	switch driver {
	case DriverPostgres:
		pool, err := NewPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		store := NewPgTaskRepo(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil

	case DriverSQLite, "":
		db, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		store := NewSQLiteTaskRepo(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
