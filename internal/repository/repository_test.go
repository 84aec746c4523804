package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/inbox-ledger/constants"
	"github.com/joseph-ayodele/inbox-ledger/internal/common"
	"github.com/joseph-ayodele/inbox-ledger/internal/entity"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { Close(db, logger) })
	require.NoError(t, Migrate(db, logger))
	return NewStore(db, logger)
}

func strPtr(s string) *string { return &s }

func TestMigrateIsIdempotent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "m.db"), logger)
	require.NoError(t, err)
	defer Close(db, logger)

	require.NoError(t, Migrate(db, logger))
	require.NoError(t, Migrate(db, logger))
	require.NoError(t, HealthCheck(context.Background(), db, time.Second, logger))
}

func TestLedgerCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e := &entity.LedgerEntry{
		Date:          time.Date(2025, 7, 31, 15, 4, 0, 0, time.UTC),
		Merchant:      "Costco",
		Amount:        decimal.RequireFromString("135.72"),
		Description:   "groceries",
		Category:      "Wholesale",
		PaymentMethod: "Card",
	}
	require.NoError(t, s.Ledger.Create(ctx, e))
	require.NotEqual(t, uuid.Nil, e.ID)

	got, err := s.Ledger.GetByID(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, "Costco", got.Merchant)
	require.True(t, got.Amount.Equal(decimal.RequireFromString("135.72")))
	require.Equal(t, "2025-07-31", got.Date.Format(time.DateOnly))
	require.Equal(t, "Card", got.PaymentMethod)

	_, err = s.Ledger.GetByID(ctx, uuid.New())
	require.True(t, errors.Is(err, common.ErrNotFound))
}

func TestLedgerListDateWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, d := range []string{"2025-07-01", "2025-07-15", "2025-08-01"} {
		date, _ := time.Parse(time.DateOnly, d)
		require.NoError(t, s.Ledger.Create(ctx, &entity.LedgerEntry{
			Date: date, Merchant: "m-" + d, Amount: decimal.NewFromInt(1), Category: "Unknown", PaymentMethod: "Unknown",
		}))
	}

	from, _ := time.Parse(time.DateOnly, "2025-07-10")
	to, _ := time.Parse(time.DateOnly, "2025-08-01")
	got, err := s.Ledger.List(ctx, &from, &to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "m-2025-07-15", got[0].Merchant)
	require.Equal(t, "m-2025-08-01", got[1].Merchant)

	all, err := s.Ledger.List(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestLedgerCreateRejectsEmptyMerchant(t *testing.T) {
	s := newTestStore(t)
	err := s.Ledger.Create(context.Background(), &entity.LedgerEntry{Category: "x", PaymentMethod: "y"})
	require.True(t, errors.Is(err, common.ErrValidation))
}

func TestIngestLogRecentAndLatestSuccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.IngestLog.LatestSuccess(ctx)
	require.True(t, errors.Is(err, common.ErrNotFound))

	ledger := &entity.LedgerEntry{Date: time.Now(), Merchant: "Costco", Category: "Unknown", PaymentMethod: "Unknown"}
	require.NoError(t, s.Ledger.Create(ctx, ledger))

	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	entries := []entity.IngestLogEntry{
		{Status: constants.IngestNotReceipt, Message: "no receipt on page 1", FileName: strPtr("a.pdf"), CreatedAt: base},
		{Status: constants.IngestSuccess, Message: "Parsed receipt for Costco on page 1", FileName: strPtr("b.pdf"), LedgerID: &ledger.ID, CreatedAt: base.Add(time.Minute)},
		{Status: constants.IngestError, Message: "mail poller error: boom", CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		require.NoError(t, s.IngestLog.Append(ctx, &entries[i]))
	}

	recent, err := s.IngestLog.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, constants.IngestError, recent[0].Status)
	require.Nil(t, recent[0].FileName)
	require.Nil(t, recent[0].LedgerID)
	require.Equal(t, constants.IngestNotReceipt, recent[2].Status)

	limited, err := s.IngestLog.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	last, err := s.IngestLog.LatestSuccess(ctx)
	require.NoError(t, err)
	require.Equal(t, "b.pdf", *last.FileName)
	require.Equal(t, ledger.ID, *last.LedgerID)

	counts, err := s.IngestLog.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts[constants.IngestSuccess])
	require.Equal(t, 0, counts[constants.IngestPartial])
}

func TestIngestLogRejectsUnknownStatus(t *testing.T) {
	s := newTestStore(t)
	err := s.IngestLog.Append(context.Background(), &entity.IngestLogEntry{Status: "QUEUED", Message: "x"})
	require.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx *Store) error {
		require.NoError(t, tx.Ledger.Create(ctx, &entity.LedgerEntry{Date: time.Now(), Merchant: "x", Category: "c", PaymentMethod: "p"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := s.Ledger.List(ctx, nil, nil)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestAccountsUpsertAndRotate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Accounts.Upsert(ctx, entity.LinkedMailAccount{UserID: "u1", Email: "a@x.io", Provider: constants.ProviderGoogle, RefreshToken: "r1"}))
	require.NoError(t, s.Accounts.Upsert(ctx, entity.LinkedMailAccount{UserID: "u2", Email: "b@x.io", Provider: constants.ProviderGoogle}))
	require.NoError(t, s.Accounts.Upsert(ctx, entity.LinkedMailAccount{UserID: "u3", Email: "c@x.io", Provider: "outlook", RefreshToken: "r3"}))

	accts, err := s.Accounts.ListLinked(ctx, constants.ProviderGoogle)
	require.NoError(t, err)
	require.Len(t, accts, 2)
	require.True(t, accts[0].HasRefreshToken())
	require.False(t, accts[1].HasRefreshToken())

	require.NoError(t, s.Accounts.UpdateTokens(ctx, "u1", constants.ProviderGoogle, "r1-rotated", "at"))
	accts, err = s.Accounts.ListLinked(ctx, constants.ProviderGoogle)
	require.NoError(t, err)
	require.Equal(t, "r1-rotated", accts[0].RefreshToken)
	require.Equal(t, "at", accts[0].AccessToken)

	err = s.Accounts.UpdateTokens(ctx, "missing", constants.ProviderGoogle, "r", "a")
	require.True(t, errors.Is(err, common.ErrNotFound))

	require.NoError(t, s.Accounts.Upsert(ctx, entity.LinkedMailAccount{UserID: "u2", Email: "b@x.io", Provider: constants.ProviderGoogle, RefreshToken: "r2"}))
	accts, err = s.Accounts.ListLinked(ctx, constants.ProviderGoogle)
	require.NoError(t, err)
	require.Equal(t, "r2", accts[1].RefreshToken)
}

func TestProcessedMarker(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seen, err := s.Processed.IsProcessed(ctx, "u1", "m1")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, s.Processed.MarkProcessed(ctx, "u1", "m1"))
	require.NoError(t, s.Processed.MarkProcessed(ctx, "u1", "m1"))

	seen, err = s.Processed.IsProcessed(ctx, "u1", "m1")
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = s.Processed.IsProcessed(ctx, "u2", "m1")
	require.NoError(t, err)
	require.False(t, seen)
}
