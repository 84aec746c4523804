package repository

import (
	"context"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/inbox-ledger/internal/common"
)

// ProcessedRepository records which messages a user's cycle already handled.
type ProcessedRepository interface {
	IsProcessed(ctx context.Context, userID, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, userID, messageID string) error
}

type processedRepository struct {
	conn    dialect.ExecQuerier
	dialect string
	logger  *slog.Logger
}

func (r *processedRepository) IsProcessed(ctx context.Context, userID, messageID string) (bool, error) {
	q := sql.Dialect(r.dialect).Select(sql.Count("*")).
		From(sql.Table(tableProcessed)).
		Where(sql.And(sql.EQ("user_id", userID), sql.EQ("message_id", messageID)))
	rows, err := queryBuilder(ctx, r.conn, q)
	if err != nil {
		return false, common.DatabaseError("query processed marker", err)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return false, common.DatabaseError("scan processed marker", err)
		}
	}
	return n > 0, rows.Err()
}

// MarkProcessed is idempotent.
func (r *processedRepository) MarkProcessed(ctx context.Context, userID, messageID string) error {
	q := sql.Dialect(r.dialect).Insert(tableProcessed).
		Columns("user_id", "message_id", "processed_at").
		Values(userID, messageID, time.Now().UTC()).
		OnConflict(sql.ConflictColumns("user_id", "message_id"), sql.DoNothing())
	if _, err := execBuilder(ctx, r.conn, q); err != nil {
		r.logger.Error("processed marker insert failed", "user", userID, "message_id", messageID, "error", err)
		return common.DatabaseError("mark processed", err)
	}
	return nil
}
