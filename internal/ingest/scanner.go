// Package ingest scans one user's inbox per cycle and turns every PDF page it
// finds into a ledger row and/or an audit log entry.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/inbox-ledger/constants"
	"github.com/joseph-ayodele/inbox-ledger/internal/common"
	"github.com/joseph-ayodele/inbox-ledger/internal/entity"
	"github.com/joseph-ayodele/inbox-ledger/internal/llm"
	"github.com/joseph-ayodele/inbox-ledger/internal/mail"
	"github.com/joseph-ayodele/inbox-ledger/internal/receipt"
	"github.com/joseph-ayodele/inbox-ledger/internal/repository"
)

const tracerName = "github.com/joseph-ayodele/inbox-ledger/internal/ingest"

// logWriteTimeout bounds audit writes, which still run after the cycle is
// cancelled.
const logWriteTimeout = 5 * time.Second

// Renderer rasterizes single PDF pages.
type Renderer interface {
	PageCount(ctx context.Context, data []byte) (int, error)
	RenderPage(ctx context.Context, data []byte, page int) ([]byte, error)
}

type Config struct {
	QueryWindow    string
	MaxResults     int64
	CallTimeout    time.Duration // applied to every mail, render and extraction call; 0 disables
	TrackProcessed bool
}

// CycleStats summarizes one user's cycle.
type CycleStats struct {
	Messages         int
	Skipped          int
	Attachments      int
	Pages            int
	Success          int
	Partial          int
	NotReceipt       int
	Errors           int
	MarkReadFailures int
}

func (s CycleStats) attrs() []any {
	return []any{
		"messages", s.Messages, "skipped", s.Skipped, "attachments", s.Attachments, "pages", s.Pages,
		"success", s.Success, "partial", s.Partial, "not_receipt", s.NotReceipt, "errors", s.Errors,
	}
}

type Scanner struct {
	cfg       Config
	renderer  Renderer
	extractor llm.FieldExtractor
	store     *repository.Store
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Scanner)

// WithTracerProvider replaces the global provider captured at construction.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Scanner) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

func NewScanner(cfg Config, renderer Renderer, extractor llm.FieldExtractor, store *repository.Store, logger *slog.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	s := &Scanner{
		cfg:       cfg,
		renderer:  renderer,
		extractor: extractor,
		store:     store,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ScanUser runs one cycle for acct over an already opened session. Page and
// attachment failures are recorded in the ingest log and never returned. An
// error is returned only when the mailbox could not be searched at all, in
// which case one user-level error entry has been written.
func (s *Scanner) ScanUser(ctx context.Context, acct entity.LinkedMailAccount, sess *mail.Session) (CycleStats, error) {
	var stats CycleStats
	ctx = common.WithUserID(ctx, acct.UserID)
	logger := common.LoggerFrom(ctx, s.logger)

	ctx, span := s.tracer.Start(ctx, "ingest.scan_user", trace.WithAttributes(attribute.String("user", acct.UserID)))
	defer span.End()

	start := time.Now()
	query := mail.BuildQuery(s.cfg.QueryWindow)

	callCtx, cancel := s.callContext(ctx)
	ids, err := sess.Mailbox.Search(callCtx, query, s.cfg.MaxResults)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		logger.Error("mailbox search failed", "query", query, "error", err)
		s.appendLog(ctx, constants.IngestError, fmt.Sprintf("mail poller error: %v", err), nil)
		return stats, fmt.Errorf("search mailbox: %w", err)
	}
	logger.Info("mailbox searched", "query", query, "matches", len(ids))

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		s.scanMessage(ctx, acct.UserID, sess.Mailbox, id, &stats)
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("user cycle interrupted", append(stats.attrs(), "error", err)...)
		return stats, err
	}

	if sess.Rotated {
		if err := s.store.Accounts.UpdateTokens(ctx, acct.UserID, acct.Provider, sess.RefreshToken(), sess.AccessToken()); err != nil {
			logger.Error("persist rotated token failed", "error", err)
		} else {
			logger.Info("refresh token rotated")
		}
	}

	span.SetAttributes(attribute.Int("pages", stats.Pages), attribute.Int("errors", stats.Errors))
	logger.Info("user cycle complete", append(stats.attrs(), "elapsed_ms", time.Since(start).Milliseconds())...)
	return stats, nil
}

func (s *Scanner) scanMessage(ctx context.Context, userID string, mb mail.Mailbox, id string, stats *CycleStats) {
	logger := common.LoggerFrom(ctx, s.logger).With("message_id", id)

	if s.cfg.TrackProcessed {
		done, err := s.store.Processed.IsProcessed(ctx, userID, id)
		if err != nil {
			logger.Warn("processed marker lookup failed", "error", err)
		} else if done {
			stats.Skipped++
			logger.Info("message already processed, skipping")
			s.markRead(ctx, mb, id, stats)
			return
		}
	}

	ctx, span := s.tracer.Start(ctx, "ingest.message", trace.WithAttributes(attribute.String("message_id", id)))
	defer span.End()

	callCtx, cancel := s.callContext(ctx)
	msg, err := mb.GetMessage(callCtx, id)
	cancel()
	if err != nil {
		stats.Errors++
		span.RecordError(err)
		logger.Error("get message failed", "error", err)
		s.appendLog(ctx, constants.IngestError, fmt.Sprintf("Failed to fetch message %s: %v", id, err), nil)
		return
	}
	stats.Messages++

	for _, part := range msg.Parts {
		if !constants.IsPDFName(part.Filename) || !part.HasBody() {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		stats.Attachments++
		s.scanAttachment(ctx, mb, id, part, stats)
	}

	s.markRead(ctx, mb, id, stats)

	if s.cfg.TrackProcessed {
		if err := s.store.Processed.MarkProcessed(ctx, userID, id); err != nil {
			logger.Warn("processed marker write failed", "error", err)
		}
	}
}

func (s *Scanner) scanAttachment(ctx context.Context, mb mail.Mailbox, messageID string, part mail.Part, stats *CycleStats) {
	fileName := part.Filename
	logger := common.LoggerFrom(ctx, s.logger).With("message_id", messageID, "file", fileName)

	data, err := s.download(ctx, mb, messageID, part)
	if err != nil {
		stats.Errors++
		logger.Error("attachment download failed", "error", err)
		s.appendLog(ctx, constants.IngestError, fmt.Sprintf("Failed to download %s: %v", fileName, err), &fileName)
		return
	}

	callCtx, cancel := s.callContext(ctx)
	pages, err := s.renderer.PageCount(callCtx, data)
	cancel()
	if err != nil {
		stats.Errors++
		logger.Error("page count failed", "error", err)
		s.appendLog(ctx, constants.IngestError, fmt.Sprintf("Failed to read %s: %v", fileName, err), &fileName)
		return
	}
	logger.Info("attachment downloaded", "bytes", len(data), "pages", pages)

	for page := 1; page <= pages; page++ {
		if ctx.Err() != nil {
			return
		}
		stats.Pages++
		s.scanPage(ctx, fileName, data, page, stats)
	}
}

func (s *Scanner) download(ctx context.Context, mb mail.Mailbox, messageID string, part mail.Part) ([]byte, error) {
	if len(part.Data) > 0 {
		return part.Data, nil
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	data, err := mb.GetAttachment(callCtx, messageID, part.AttachmentID)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty attachment body")
	}
	return data, nil
}

// scanPage drives one page through render, extract, classify and persist.
// Whatever goes wrong becomes a single error entry for the page.
func (s *Scanner) scanPage(ctx context.Context, fileName string, data []byte, page int, stats *CycleStats) {
	ctx, span := s.tracer.Start(ctx, "ingest.page", trace.WithAttributes(
		attribute.String("file", fileName), attribute.Int("page", page)))
	defer span.End()
	logger := common.LoggerFrom(ctx, s.logger).With("file", fileName, "page", page)

	outcome, err := s.processPage(ctx, fileName, data, page)
	if err != nil {
		stats.Errors++
		span.RecordError(err)
		span.SetStatus(codes.Error, "page failed")
		logger.Error("page failed", "error", err)
		s.appendLog(ctx, constants.IngestError, fmt.Sprintf("Failed to extract page %d: %v", page, err), &fileName)
		return
	}

	span.SetAttributes(attribute.String("outcome", outcome.String()))
	switch outcome {
	case receipt.Success:
		stats.Success++
	case receipt.Partial:
		stats.Partial++
	case receipt.NotReceipt:
		stats.NotReceipt++
	}
	logger.Info("page processed", "outcome", outcome.String())
}

func (s *Scanner) processPage(ctx context.Context, fileName string, data []byte, page int) (outcome receipt.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	callCtx, cancel := s.callContext(ctx)
	img, err := s.renderer.RenderPage(callCtx, data, page)
	cancel()
	if err != nil {
		return outcome, fmt.Errorf("render: %w", err)
	}

	callCtx, cancel = s.callContext(ctx)
	fields, err := s.extractor.ExtractFields(callCtx, img)
	cancel()
	if err != nil {
		return outcome, fmt.Errorf("extract: %w", err)
	}

	outcome = receipt.Classify(fields)
	if outcome == receipt.NotReceipt {
		msg := fmt.Sprintf("No receipt found on page %d", page)
		if err := s.store.IngestLog.Append(ctx, &entity.IngestLogEntry{
			Status:   constants.IngestNotReceipt,
			Message:  msg,
			FileName: &fileName,
		}); err != nil {
			return outcome, err
		}
		return outcome, nil
	}

	status := constants.IngestSuccess
	msg := fmt.Sprintf("Parsed receipt for %s on page %d", fields.Store, page)
	if outcome == receipt.Partial {
		status = constants.IngestPartial
		msg = fmt.Sprintf("Partial receipt on page %d, missing %s", page, receipt.DescribeMissing(fields))
	}

	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		entry := s.ledgerEntry(fields)
		if err := tx.Ledger.Create(ctx, entry); err != nil {
			return err
		}
		return tx.IngestLog.Append(ctx, &entity.IngestLogEntry{
			Status:   status,
			Message:  msg,
			FileName: &fileName,
			LedgerID: &entry.ID,
		})
	})
	return outcome, err
}

func (s *Scanner) ledgerEntry(f receipt.Fields) *entity.LedgerEntry {
	return &entity.LedgerEntry{
		Date:          f.ParsedDate(s.now()),
		Merchant:      f.Store.String(),
		Amount:        f.Amount.Value(),
		Description:   f.Description.Value(""),
		Category:      f.Category.String(),
		PaymentMethod: f.PaymentMethod.String(),
	}
}

func (s *Scanner) markRead(ctx context.Context, mb mail.Mailbox, id string, stats *CycleStats) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := mb.MarkRead(callCtx, id); err != nil {
		stats.MarkReadFailures++
		common.LoggerFrom(ctx, s.logger).Warn("mark read failed", "message_id", id, "error", err)
	}
}

// appendLog writes an audit entry outside any transaction. The write detaches
// from ctx cancellation so a shutdown mid-page still records why the page
// failed. A failed write is logged; there is nowhere else to record it.
func (s *Scanner) appendLog(ctx context.Context, status constants.IngestStatus, msg string, fileName *string) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()
	e := &entity.IngestLogEntry{Status: status, Message: msg, FileName: fileName}
	if err := s.store.IngestLog.Append(wctx, e); err != nil {
		common.LoggerFrom(ctx, s.logger).Error("ingest log write failed", "status", status, "message", msg, "error", err)
	}
}

func (s *Scanner) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.CallTimeout)
}
