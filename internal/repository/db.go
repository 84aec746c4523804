package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB is an ent SQL driver plus whatever owns the underlying connections.
type DB struct {
	drv  *entsql.Driver
	pool *pgxpool.Pool
}

// Dialect returns the ent dialect name used to build queries.
func (db *DB) Dialect() string { return db.drv.Dialect() }

// SQL exposes the database/sql handle for migrations.
func (db *DB) SQL() *sql.DB { return db.drv.DB() }

// Open dispatches on cfg.Driver.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	switch cfg.Driver {
	case "", dialect.Postgres:
		return OpenPostgres(ctx, cfg, logger)
	case dialect.SQLite:
		return OpenSQLite(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenPostgres creates a pgx pool and wraps it for ent.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "driver", dialect.Postgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "inbox-ledger"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	db := stdlib.OpenDBFromPool(pool)
	logger.Info("successfully connected to database")
	return &DB{drv: entsql.OpenDB(dialect.Postgres, db), pool: pool}, nil
}

// OpenSQLite opens a single-connection sqlite database for local runs and tests.
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "driver", dialect.SQLite, "dsn", dsn)
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY under the worker pool.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		logger.Error("failed to open sqlite database", "error", err)
		return nil, err
	}
	return &DB{drv: entsql.OpenDB(dialect.SQLite, db)}, nil
}

func sqliteDSN(dsn string) string {
	const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragmas
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + "?" + pragmas
}

// Close closes the database connections gracefully
func Close(db *DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	logger.Info("closing database connections")
	if err := db.drv.Close(); err != nil {
		logger.Error("failed to close database driver", "error", err)
	}
	if db.pool != nil {
		db.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func HealthCheck(ctx context.Context, db *DB, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var err error
	if db.pool != nil {
		err = db.pool.Ping(ctx)
	} else {
		err = db.SQL().PingContext(ctx)
	}
	if err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	logger.Debug("database ping successful")
	return nil
}
