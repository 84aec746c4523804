package repository

import (
	"context"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/inbox-ledger/internal/common"
	"github.com/joseph-ayodele/inbox-ledger/internal/entity"
)

var accountColumns = []string{"user_id", "provider", "email", "refresh_token", "access_token", "updated_at"}

// AccountRepository is the credential directory the poller reads from.
type AccountRepository interface {
	ListLinked(ctx context.Context, provider string) ([]entity.LinkedMailAccount, error)
	Upsert(ctx context.Context, a entity.LinkedMailAccount) error
	UpdateTokens(ctx context.Context, userID, provider, refreshToken, accessToken string) error
}

type accountRepository struct {
	conn    dialect.ExecQuerier
	dialect string
	logger  *slog.Logger
}

func (r *accountRepository) ListLinked(ctx context.Context, provider string) ([]entity.LinkedMailAccount, error) {
	q := sql.Dialect(r.dialect).Select(accountColumns...).
		From(sql.Table(tableAccounts)).
		Where(sql.EQ("provider", provider)).
		OrderBy(sql.Asc("user_id"))
	rows, err := queryBuilder(ctx, r.conn, q)
	if err != nil {
		r.logger.Error("list linked accounts failed", "provider", provider, "error", err)
		return nil, common.DatabaseError("list linked accounts", err)
	}
	defer rows.Close()

	var out []entity.LinkedMailAccount
	for rows.Next() {
		var a entity.LinkedMailAccount
		if err := rows.Scan(&a.UserID, &a.Provider, &a.Email, &a.RefreshToken, &a.AccessToken, &a.UpdatedAt); err != nil {
			return nil, common.DatabaseError("scan linked account", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, common.DatabaseError("iterate linked accounts", err)
	}
	return out, nil
}

// Upsert links or relinks a mailbox.
func (r *accountRepository) Upsert(ctx context.Context, a entity.LinkedMailAccount) error {
	if a.UserID == "" || a.Provider == "" {
		return common.NewAppError("INVALID_ACCOUNT", "user_id and provider are required", common.ErrInvalidInput)
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	q := sql.Dialect(r.dialect).Insert(tableAccounts).
		Columns(accountColumns...).
		Values(a.UserID, a.Provider, a.Email, a.RefreshToken, a.AccessToken, a.UpdatedAt).
		OnConflict(sql.ConflictColumns("user_id", "provider"), sql.ResolveWithNewValues())
	if _, err := execBuilder(ctx, r.conn, q); err != nil {
		r.logger.Error("linked account upsert failed", "user", a.UserID, "error", err)
		return common.DatabaseError("upsert linked account", err)
	}
	return nil
}

// UpdateTokens persists a rotated refresh token and the latest access token.
func (r *accountRepository) UpdateTokens(ctx context.Context, userID, provider, refreshToken, accessToken string) error {
	q := sql.Dialect(r.dialect).Update(tableAccounts).
		Set("refresh_token", refreshToken).
		Set("access_token", accessToken).
		Set("updated_at", time.Now().UTC()).
		Where(sql.And(sql.EQ("user_id", userID), sql.EQ("provider", provider)))
	n, err := execBuilder(ctx, r.conn, q)
	if err != nil {
		r.logger.Error("token update failed", "user", userID, "error", err)
		return common.DatabaseError("update tokens", err)
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", "linked account "+userID, common.ErrNotFound)
	}
	r.logger.Info("stored rotated tokens", "user", userID, "provider", provider)
	return nil
}
