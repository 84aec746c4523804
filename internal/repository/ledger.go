package repository

import (
	"context"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/inbox-ledger/internal/common"
	"github.com/joseph-ayodele/inbox-ledger/internal/entity"
)

var ledgerColumns = []string{"id", "entry_date", "merchant", "amount", "description", "category", "payment_method", "created_at"}

type LedgerRepository interface {
	Create(ctx context.Context, e *entity.LedgerEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.LedgerEntry, error)
	List(ctx context.Context, from, to *time.Time) ([]entity.LedgerEntry, error)
}

type ledgerRepository struct {
	conn    dialect.ExecQuerier
	dialect string
	logger  *slog.Logger
}

// Create assigns ID and CreatedAt when unset and inserts the row.
func (r *ledgerRepository) Create(ctx context.Context, e *entity.LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Date = dateOnly(e.Date)
	if err := common.ValidateStruct(e); err != nil {
		return err
	}

	q := sql.Dialect(r.dialect).Insert(tableLedger).
		Columns(ledgerColumns...).
		Values(e.ID, e.Date, e.Merchant, e.Amount, e.Description, e.Category, e.PaymentMethod, e.CreatedAt)
	if _, err := execBuilder(ctx, r.conn, q); err != nil {
		r.logger.Error("ledger entry insert failed", "ledger_id", e.ID, "error", err)
		return common.DatabaseError("create ledger entry", err)
	}
	r.logger.Debug("ledger entry created", "ledger_id", e.ID, "merchant", e.Merchant, "amount", e.Amount.String())
	return nil
}

func (r *ledgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.LedgerEntry, error) {
	q := sql.Dialect(r.dialect).Select(ledgerColumns...).
		From(sql.Table(tableLedger)).
		Where(sql.EQ("id", id))
	out, err := r.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.NewAppError("NOT_FOUND", "ledger entry "+id.String(), common.ErrNotFound)
	}
	return &out[0], nil
}

// List returns entries ordered by date, optionally bounded (inclusive) on either side.
func (r *ledgerRepository) List(ctx context.Context, from, to *time.Time) ([]entity.LedgerEntry, error) {
	q := sql.Dialect(r.dialect).Select(ledgerColumns...).
		From(sql.Table(tableLedger)).
		OrderBy(sql.Asc("entry_date"), sql.Asc("created_at"))
	if from != nil {
		q.Where(sql.GTE("entry_date", dateOnly(*from)))
	}
	if to != nil {
		q.Where(sql.LTE("entry_date", dateOnly(*to)))
	}
	return r.query(ctx, q)
}

func (r *ledgerRepository) query(ctx context.Context, q *sql.Selector) ([]entity.LedgerEntry, error) {
	rows, err := queryBuilder(ctx, r.conn, q)
	if err != nil {
		r.logger.Error("ledger query failed", "error", err)
		return nil, common.DatabaseError("query ledger entries", err)
	}
	defer rows.Close()

	var out []entity.LedgerEntry
	for rows.Next() {
		var e entity.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.Merchant, &e.Amount, &e.Description, &e.Category, &e.PaymentMethod, &e.CreatedAt); err != nil {
			return nil, common.DatabaseError("scan ledger entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, common.DatabaseError("iterate ledger entries", err)
	}
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
