package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/inbox-ledger/constants"
	"github.com/joseph-ayodele/inbox-ledger/internal/common"
	"github.com/joseph-ayodele/inbox-ledger/internal/entity"
	"github.com/joseph-ayodele/inbox-ledger/internal/export"
	repo "github.com/joseph-ayodele/inbox-ledger/internal/repository"
	"github.com/joseph-ayodele/inbox-ledger/internal/server"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  logs    print the most recent ingest log entries
  last    print the latest successful ingest
  export  write ledger and ingest log to an XLSX file
  link    store a mailbox refresh token for a user
`

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	if len(os.Args) < 2 {
		printError(usage)
		os.Exit(common.ExitUsage)
	}

	_ = godotenv.Load()
	cfg, err := common.LoadConfig()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(common.ExitCode(err))
	}
	if err := cfg.ValidateStore(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(common.ExitCode(err))
	}
	// stdout carries command output; logs go to stderr
	logger := common.NewLogger(cfg.Log, os.Stderr)

	ctx := context.Background()
	db, err := server.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(common.ExitFail)
	}
	store := repo.NewStore(db, logger)

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "logs":
		err = runLogs(ctx, store, args)
	case "last":
		err = runLast(ctx, store)
	case "export":
		err = runExport(ctx, export.NewService(store.Ledger, store.IngestLog, logger), args)
	case "link":
		err = runLink(ctx, store, args)
	default:
		printError("unknown command %q\n\n%s", cmd, usage)
		repo.Close(db, logger)
		os.Exit(common.ExitUsage)
	}
	repo.Close(db, logger)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(common.ExitCode(err))
	}
}

func runLogs(ctx context.Context, store *repo.Store, args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	limit := fs.Int("n", repo.DefaultRecentLimit, "number of entries")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entries, err := store.IngestLog.ListRecent(ctx, *limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tSTATUS\tFILE\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime), e.Status, fileName(e), e.Message)
	}
	return w.Flush()
}

func runLast(ctx context.Context, store *repo.Store) error {
	e, err := store.IngestLog.LatestSuccess(ctx)
	if errors.Is(err, common.ErrNotFound) {
		fmt.Println("no successful ingest yet")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s  %s\n", e.CreatedAt.Local().Format(time.DateTime), fileName(*e), e.Message)
	return nil
}

func runExport(ctx context.Context, svc *export.Service, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var (
		out     = fs.String("out", "ledger.xlsx", "output XLSX file path")
		fromStr = fs.String("from", "", "from date YYYY-MM-DD")
		toStr   = fs.String("to", "", "to date YYYY-MM-DD")
		logs    = fs.Int("logs", 500, "ingest log entries to include")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	from, err := parseDate("--from", *fromStr)
	if err != nil {
		return err
	}
	to, err := parseDate("--to", *toStr)
	if err != nil {
		return err
	}

	data, err := svc.ExportXLSX(ctx, from, to, *logs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
	return nil
}

func runLink(ctx context.Context, store *repo.Store, args []string) error {
	fs := flag.NewFlagSet("link", flag.ExitOnError)
	var (
		user  = fs.String("user", "", "user id (required)")
		email = fs.String("email", "", "mailbox address")
		token = fs.String("refresh-token", "", "OAuth refresh token (required)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" || *token == "" {
		return fmt.Errorf("--user and --refresh-token are required: %w", common.ErrInvalidInput)
	}

	if err := store.Accounts.Upsert(ctx, entity.LinkedMailAccount{
		UserID:       *user,
		Email:        *email,
		Provider:     constants.ProviderGoogle,
		RefreshToken: *token,
	}); err != nil {
		return err
	}
	fmt.Printf("linked %s\n", *user)
	return nil
}

func parseDate(flagName, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date %q, use YYYY-MM-DD: %w", flagName, s, common.ErrInvalidInput)
	}
	return &t, nil
}

func fileName(e entity.IngestLogEntry) string {
	if e.FileName == nil {
		return "-"
	}
	return *e.FileName
}
