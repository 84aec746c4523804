package repository

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/inbox-ledger/constants"
	"github.com/joseph-ayodele/inbox-ledger/internal/common"
	"github.com/joseph-ayodele/inbox-ledger/internal/entity"
)

// DefaultRecentLimit is how many log rows the dashboard shows.
const DefaultRecentLimit = 20

var ingestLogColumns = []string{"id", "status", "message", "file_name", "ledger_id", "created_at"}

// IngestLogRepository is append-only: there is no update or delete.
type IngestLogRepository interface {
	Append(ctx context.Context, e *entity.IngestLogEntry) error
	ListRecent(ctx context.Context, limit int) ([]entity.IngestLogEntry, error)
	LatestSuccess(ctx context.Context) (*entity.IngestLogEntry, error)
	CountByStatus(ctx context.Context) (map[constants.IngestStatus]int, error)
}

type ingestLogRepository struct {
	conn    dialect.ExecQuerier
	dialect string
	logger  *slog.Logger
}

func (r *ingestLogRepository) Append(ctx context.Context, e *entity.IngestLogEntry) error {
	if !e.Status.Valid() {
		return common.NewAppError("INVALID_STATUS", fmt.Sprintf("ingest status %q", e.Status), common.ErrInvalidInput)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var ledgerID any
	if e.LedgerID != nil {
		ledgerID = *e.LedgerID
	}
	var fileName any
	if e.FileName != nil {
		fileName = *e.FileName
	}

	q := sql.Dialect(r.dialect).Insert(tableIngestLog).
		Columns(ingestLogColumns...).
		Values(e.ID, string(e.Status), e.Message, fileName, ledgerID, e.CreatedAt)
	if _, err := execBuilder(ctx, r.conn, q); err != nil {
		r.logger.Error("ingest log insert failed", "status", e.Status, "error", err)
		return common.DatabaseError("append ingest log", err)
	}
	return nil
}

// ListRecent returns the newest entries first.
func (r *ingestLogRepository) ListRecent(ctx context.Context, limit int) ([]entity.IngestLogEntry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	q := sql.Dialect(r.dialect).Select(ingestLogColumns...).
		From(sql.Table(tableIngestLog)).
		OrderBy(sql.Desc("created_at")).
		Limit(limit)
	return r.query(ctx, q)
}

// LatestSuccess returns the newest success row or ErrNotFound.
func (r *ingestLogRepository) LatestSuccess(ctx context.Context) (*entity.IngestLogEntry, error) {
	q := sql.Dialect(r.dialect).Select(ingestLogColumns...).
		From(sql.Table(tableIngestLog)).
		Where(sql.EQ("status", string(constants.IngestSuccess))).
		OrderBy(sql.Desc("created_at")).
		Limit(1)
	out, err := r.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.NewAppError("NOT_FOUND", "no successful ingest yet", common.ErrNotFound)
	}
	return &out[0], nil
}

func (r *ingestLogRepository) CountByStatus(ctx context.Context) (map[constants.IngestStatus]int, error) {
	q := sql.Dialect(r.dialect).Select("status", sql.Count("*")).
		From(sql.Table(tableIngestLog)).
		GroupBy("status")
	rows, err := queryBuilder(ctx, r.conn, q)
	if err != nil {
		return nil, common.DatabaseError("count ingest logs", err)
	}
	defer rows.Close()

	out := make(map[constants.IngestStatus]int, 4)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, common.DatabaseError("scan ingest log count", err)
		}
		out[constants.IngestStatus(status)] = n
	}
	return out, rows.Err()
}

func (r *ingestLogRepository) query(ctx context.Context, q *sql.Selector) ([]entity.IngestLogEntry, error) {
	rows, err := queryBuilder(ctx, r.conn, q)
	if err != nil {
		r.logger.Error("ingest log query failed", "error", err)
		return nil, common.DatabaseError("query ingest logs", err)
	}
	defer rows.Close()

	var out []entity.IngestLogEntry
	for rows.Next() {
		var (
			e        entity.IngestLogEntry
			status   string
			fileName stdsql.NullString
			ledgerID uuid.NullUUID
		)
		if err := rows.Scan(&e.ID, &status, &e.Message, &fileName, &ledgerID, &e.CreatedAt); err != nil {
			return nil, common.DatabaseError("scan ingest log", err)
		}
		e.Status = constants.IngestStatus(status)
		if fileName.Valid {
			e.FileName = &fileName.String
		}
		if ledgerID.Valid {
			id := ledgerID.UUID
			e.LedgerID = &id
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, common.DatabaseError("iterate ingest logs", err)
	}
	return out, nil
}
