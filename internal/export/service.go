package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/inbox-ledger/internal/entity"
	"github.com/joseph-ayodele/inbox-ledger/internal/repository"
)

const (
	SheetLedger    = "Ledger"
	SheetIngestLog = "Ingest Log"
)

// Service produces XLSX bytes for the ledger and its audit trail.
type Service struct {
	ledger    repository.LedgerRepository
	ingestLog repository.IngestLogRepository
	logger    *slog.Logger
}

func NewService(ledger repository.LedgerRepository, ingestLog repository.IngestLogRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, ingestLog: ingestLog, logger: logger}
}

// ExportXLSX returns a workbook with a ledger sheet for the date window and
// the most recent logLimit ingest log entries.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> the whole ledger.
func (s *Service) ExportXLSX(ctx context.Context, from, to *time.Time, logLimit int) ([]byte, error) {
	start := time.Now()

	fromDate, toDate := normalizeWindow(from, to, time.Now().UTC())

	rows, err := s.ledger.List(ctx, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	logs, err := s.ingestLog.ListRecent(ctx, logLimit)
	if err != nil {
		return nil, fmt.Errorf("query ingest log: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("xlsx close failed", "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetLedger); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetIngestLog); err != nil {
		return nil, err
	}
	ledgerIndex, _ := f.GetSheetIndex(SheetLedger)
	f.SetActiveSheet(ledgerIndex)

	writeLedger(f, rows)
	writeIngestLog(f, logs)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"ledger_rows", len(rows),
		"log_rows", len(logs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func normalizeWindow(from, to *time.Time, now time.Time) (*time.Time, *time.Time) {
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		t := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}
	return fromDate, toDate
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}

func writeLedger(f *excelize.File, rows []entity.LedgerEntry) {
	writeHeader(f, SheetLedger, []string{
		"Date",
		"Merchant",
		"Amount",
		"Category",
		"Payment Method",
		"Description",
	})

	for i, r := range rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetLedger, cell, v)
		}
		write(1, r.Date.Format("2006-01-02"))
		write(2, r.Merchant)
		// float keeps the cell numeric for spreadsheet sums
		amount, _ := r.Amount.Float64()
		write(3, amount)
		write(4, r.Category)
		write(5, r.PaymentMethod)
		write(6, truncate(r.Description, 140))
	}

	_ = f.SetColWidth(SheetLedger, "A", "A", 14) // date
	_ = f.SetColWidth(SheetLedger, "B", "B", 28) // merchant
	_ = f.SetColWidth(SheetLedger, "C", "C", 12) // amount
	_ = f.SetColWidth(SheetLedger, "D", "E", 20)
	_ = f.SetColWidth(SheetLedger, "F", "F", 48) // notes
}

func writeIngestLog(f *excelize.File, logs []entity.IngestLogEntry) {
	writeHeader(f, SheetIngestLog, []string{
		"Created At",
		"Status",
		"File",
		"Message",
		"Ledger ID",
	})

	for i, l := range logs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetIngestLog, cell, v)
		}
		write(1, l.CreatedAt.UTC().Format(time.RFC3339))
		write(2, string(l.Status))
		if l.FileName != nil {
			write(3, *l.FileName)
		}
		write(4, l.Message)
		if l.LedgerID != nil {
			write(5, l.LedgerID.String())
		}
	}

	_ = f.SetColWidth(SheetIngestLog, "A", "A", 22)
	_ = f.SetColWidth(SheetIngestLog, "B", "B", 12)
	_ = f.SetColWidth(SheetIngestLog, "C", "C", 32)
	_ = f.SetColWidth(SheetIngestLog, "D", "D", 60)
	_ = f.SetColWidth(SheetIngestLog, "E", "E", 38)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
