package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/inbox-ledger/internal/common"
	repo "github.com/joseph-ayodele/inbox-ledger/internal/repository"
)

// ConnectDB opens the configured database, pings it and, when enabled,
// applies pending migrations.
func ConnectDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repo.DB, error) {
	logger.Info("connecting to database", "driver", cfg.Driver)
	db, err := repo.Open(ctx, repo.Config{
		Driver:           cfg.Driver,
		DSN:              cfg.DSN,
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	if err := PingDB(ctx, db, logger, 5*time.Second); err != nil {
		repo.Close(db, logger)
		return nil, err
	}

	if cfg.Migrate {
		if err := repo.Migrate(db, logger); err != nil {
			logger.Error("failed to migrate database", "error", err)
			repo.Close(db, logger)
			return nil, err
		}
	}

	logger.Info("successfully connected to database")
	return db, nil
}

// PingDB pings the database to ensure it's responsive
func PingDB(ctx context.Context, db *repo.DB, logger *slog.Logger, timeout time.Duration) error {
	return repo.HealthCheck(ctx, db, timeout, logger)
}
