package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/inbox-ledger/internal/common"
	"github.com/joseph-ayodele/inbox-ledger/internal/ingest"
	"github.com/joseph-ayodele/inbox-ledger/internal/llm/openai"
	"github.com/joseph-ayodele/inbox-ledger/internal/mail"
	"github.com/joseph-ayodele/inbox-ledger/internal/pdf"
	"github.com/joseph-ayodele/inbox-ledger/internal/poller"
	repo "github.com/joseph-ayodele/inbox-ledger/internal/repository"
	"github.com/joseph-ayodele/inbox-ledger/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	once := flag.Bool("once", false, "run a single poll cycle and exit")
	flag.Parse()

	// .env is optional; real deployments set INBOX_* directly
	_ = godotenv.Load()

	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return common.ExitCode(err)
	}
	logger := common.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return common.ExitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := common.SetupTracing(ctx, cfg.Tracing, os.Stderr, logger)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		return common.ExitCode(err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	db, err := server.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		return common.ExitFail
	}
	defer repo.Close(db, logger)
	store := repo.NewStore(db, logger)

	renderer := pdf.NewRenderer(pdf.Config{
		Pdftoppm:  cfg.Render.Pdftoppm,
		Pdfinfo:   cfg.Render.Pdfinfo,
		Scale:     cfg.Render.Scale,
		MaxPixels: cfg.Render.MaxPixels,
	}, logger)

	extractor, err := openai.NewClient(openai.Config{
		APIKey:           cfg.LLM.APIKey,
		BaseURL:          cfg.LLM.BaseURL,
		Model:            cfg.LLM.Model,
		Temperature:      cfg.LLM.Temperature,
		MaxTokens:        cfg.LLM.MaxTokens,
		Timeout:          cfg.LLM.Timeout,
		StructuredOutput: cfg.LLM.StructuredOutput,
	}, logger)
	if err != nil {
		logger.Error("failed to create extraction client", "error", err)
		return common.ExitCode(err)
	}

	sessions := mail.NewSessionManager(mail.SessionConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		TokenURL:     cfg.Google.TokenURL,
		GmailBaseURL: cfg.Google.GmailBaseURL,
	}, logger)

	scanner := ingest.NewScanner(ingest.Config{
		QueryWindow:    cfg.Ingest.QueryWindow,
		MaxResults:     cfg.Ingest.MaxResults,
		CallTimeout:    cfg.Ingest.CallTimeout,
		TrackProcessed: cfg.Ingest.TrackProcessed,
	}, renderer, extractor, store, logger)

	health := server.NewHealth(cfg.Poller.Interval, logger)
	opts := []poller.Option{poller.WithObserver(health.ObservePoller)}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to reach redis", "addr", cfg.Redis.Addr, "error", err)
			return common.ExitFail
		}
		opts = append(opts, poller.WithLocker(poller.NewRedisLocker(rdb, cfg.Redis.LockTTL, logger)))
		logger.Info("distributed user lock enabled", "addr", cfg.Redis.Addr)
	}

	p := poller.New(poller.Config{
		Interval:    cfg.Poller.Interval,
		Workers:     cfg.Poller.Workers,
		UserTimeout: cfg.Poller.UserTimeout,
	}, store.Accounts, sessions, scanner, logger, opts...)

	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		p.Close(sctx)
		health.Shutdown(sctx)
	}()

	if *once {
		if err := p.RunOnce(ctx); err != nil {
			logger.Error("poll cycle failed", "error", err)
			return common.ExitFail
		}
		return common.ExitOK
	}

	if cfg.Server.GRPCAddr != "" {
		go health.Watch(ctx)
		go func() {
			if err := health.Serve(cfg.Server.GRPCAddr); err != nil {
				logger.Error("health server stopped", "error", err)
			}
		}()
	}

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("poller exited", "error", err)
	}
	logger.Info("shutting down")
	return common.ExitOK
}
