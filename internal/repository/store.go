package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

const (
	tableLedger    = "ledger_entries"
	tableIngestLog = "ingest_logs"
	tableAccounts  = "linked_accounts"
	tableProcessed = "processed_messages"
)

// Store bundles the repositories bound to one connection or transaction.
type Store struct {
	Ledger    LedgerRepository
	IngestLog IngestLogRepository
	Accounts  AccountRepository
	Processed ProcessedRepository

	db     *DB
	logger *slog.Logger
}

func NewStore(db *DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := newStore(db.drv, db.Dialect(), logger)
	s.db = db
	return s
}

func newStore(conn dialect.ExecQuerier, d string, logger *slog.Logger) *Store {
	return &Store{
		Ledger:    &ledgerRepository{conn: conn, dialect: d, logger: logger},
		IngestLog: &ingestLogRepository{conn: conn, dialect: d, logger: logger},
		Accounts:  &accountRepository{conn: conn, dialect: d, logger: logger},
		Processed: &processedRepository{conn: conn, dialect: d, logger: logger},
		logger:    logger,
	}
}

// InTx runs fn against repositories bound to a single transaction. A Store
// that is already transactional runs fn directly.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(newStore(tx, s.db.Dialect(), s.logger)); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.logger.Error("tx rollback failed", "error", rerr)
			return errors.Join(err, rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func execBuilder(ctx context.Context, conn dialect.ExecQuerier, b entsql.Querier) (int64, error) {
	query, args := b.Query()
	var res entsql.Result
	if err := conn.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func queryBuilder(ctx context.Context, conn dialect.ExecQuerier, b entsql.Querier) (*entsql.Rows, error) {
	query, args := b.Query()
	rows := &entsql.Rows{}
	if err := conn.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}
