package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"event-ticketing/internal/config"
	"event-ticketing/internal/logger"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the configured database, retrying the initial ping for
// postgres while the server comes up.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return openPostgres(ctx, cfg, log)
	case DriverSQLite:
		db, err := openSQLite(cfg.DSN)
		if err == nil {
			log.LogDatabase("CONNECT", "sqlite", "single connection pool")
		}
		return db, err
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	var sqldb *sql.DB
	var err error

	attempts := cfg.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, attempts))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(cfg.ConnectInterval)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}
		sqldb.Close()

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < attempts-1 {
			time.Sleep(cfg.ConnectInterval)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres after %d attempts: %w", attempts, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	log.LogDatabase("CONNECT", "postgres", fmt.Sprintf("max_open=%d max_idle=%d max_lifetime=%s",
		cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.MaxLifetime))
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// openSQLite serializes all access through one connection; SQLite allows a
// single writer anyway and shared in-memory databases need it.
func openSQLite(dsn string) (*bun.DB, error) {
	if dsn == "" || dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// OpenMemory returns an isolated in-memory SQLite database, mainly for tests.
func OpenMemory(name string) (*bun.DB, error) {
	return openSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}

func IsPostgres(db bun.IDB) bool {
	return db.Dialect().Name() == dialect.PG
}
