// Package poller drives the inbox scanner for every linked account on a fixed
// interval.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/inbox-ledger/constants"
	"github.com/joseph-ayodele/inbox-ledger/internal/async"
	"github.com/joseph-ayodele/inbox-ledger/internal/common"
	"github.com/joseph-ayodele/inbox-ledger/internal/entity"
	"github.com/joseph-ayodele/inbox-ledger/internal/ingest"
	"github.com/joseph-ayodele/inbox-ledger/internal/mail"
)

// AccountLister returns the accounts to poll.
type AccountLister interface {
	ListLinked(ctx context.Context, provider string) ([]entity.LinkedMailAccount, error)
}

// UserScanner runs one user's cycle over an open session.
type UserScanner interface {
	ScanUser(ctx context.Context, acct entity.LinkedMailAccount, sess *mail.Session) (ingest.CycleStats, error)
}

type Config struct {
	Interval    time.Duration
	Workers     int
	UserTimeout time.Duration
}

type Poller struct {
	cfg      Config
	accounts AccountLister
	opener   mail.Opener
	scanner  UserScanner
	queue    *async.KeyedPool
	locker   Locker
	clock    Clock
	observer func(State)
	logger   *slog.Logger
	tracer   trace.Tracer

	state atomic.Int32
}

type Option func(*Poller)

func WithClock(c Clock) Option {
	return func(p *Poller) {
		if c != nil {
			p.clock = c
		}
	}
}

func WithLocker(l Locker) Option {
	return func(p *Poller) {
		if l != nil {
			p.locker = l
		}
	}
}

// WithObserver is called on every state change, from the loop goroutine.
func WithObserver(fn func(State)) Option {
	return func(p *Poller) { p.observer = fn }
}

func New(cfg Config, accounts AccountLister, opener mail.Opener, scanner UserScanner, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	p := &Poller{
		cfg:      cfg,
		accounts: accounts,
		opener:   opener,
		scanner:  scanner,
		locker:   NoopLocker{},
		clock:    RealClock,
		logger:   logger,
		tracer:   otel.Tracer("github.com/joseph-ayodele/inbox-ledger/internal/poller"),
	}
	for _, o := range opts {
		o(p)
	}
	p.queue = async.NewKeyedPool(logger,
		async.WithWorkers(cfg.Workers),
		async.WithQueueSize(cfg.Workers*4),
		async.WithJobTimeout(cfg.UserTimeout),
	)
	return p
}

func (p *Poller) State() State {
	return State(p.state.Load())
}

func (p *Poller) setState(s State) {
	if State(p.state.Swap(int32(s))) == s {
		return
	}
	p.logger.Debug("poller state", "state", s.String())
	if p.observer != nil {
		p.observer(s)
	}
}

// Run polls until ctx is cancelled and then returns ctx.Err(). A failed
// cycle is logged and the loop sleeps as usual.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "interval", p.cfg.Interval.String(), "workers", p.cfg.Workers)
	defer p.setState(Idle)

	for {
		if err := ctx.Err(); err != nil {
			p.logger.Info("poller stopped")
			return err
		}

		if err := p.safeCycle(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("poll cycle failed", "error", err)
		}

		p.setState(Sleeping)
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return ctx.Err()
		case <-p.clock.After(p.cfg.Interval):
		}
		p.setState(Idle)
	}
}

// RunOnce runs a single cycle and leaves the poller Idle.
func (p *Poller) RunOnce(ctx context.Context) error {
	defer p.setState(Idle)
	return p.safeCycle(ctx)
}

// Close stops the worker pool after in-flight users finish or ctx is done.
func (p *Poller) Close(ctx context.Context) {
	p.queue.Shutdown(ctx)
}

func (p *Poller) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return p.cycle(ctx)
}

func (p *Poller) cycle(ctx context.Context) error {
	p.setState(Running)
	ctx = common.WithCycleID(ctx, uuid.NewString())
	logger := common.LoggerFrom(ctx, p.logger)
	ctx, span := p.tracer.Start(ctx, "poller.cycle")
	defer span.End()

	start := p.clock.Now()
	accts, err := p.accounts.ListLinked(ctx, constants.ProviderGoogle)
	if err != nil {
		span.RecordError(err)
		logger.Error("list linked accounts failed", "error", err)
		return fmt.Errorf("list accounts: %w", err)
	}
	span.SetAttributes(attribute.Int("accounts", len(accts)))
	logger.Info("poll cycle started", "accounts", len(accts))

	queued := 0
	for _, acct := range accts {
		if ctx.Err() != nil {
			break
		}
		if !acct.HasRefreshToken() {
			logger.Info("account has no refresh token, skipping", "user", acct.UserID)
			continue
		}
		err := p.queue.Enqueue(ctx, async.Job{
			Key: acct.UserID,
			Run: func(ctx context.Context) error { return p.pollUser(ctx, acct) },
		})
		switch {
		case err == nil:
			queued++
		case errors.Is(err, async.ErrDuplicateKey):
			logger.Warn("previous cycle still running for user, skipping", "user", acct.UserID)
		default:
			logger.Error("enqueue user failed", "user", acct.UserID, "error", err)
		}
	}

	if err := p.queue.Wait(ctx); err != nil {
		return err
	}
	logger.Info("poll cycle complete", "users", queued, "elapsed_ms", p.clock.Now().Sub(start).Milliseconds())
	return ctx.Err()
}

// pollUser is one user's unit of work. Refresh failures end the user's cycle
// without touching the store.
func (p *Poller) pollUser(ctx context.Context, acct entity.LinkedMailAccount) error {
	ctx = common.WithUserID(ctx, acct.UserID)
	logger := common.LoggerFrom(ctx, p.logger)

	release, ok, err := p.locker.Acquire(ctx, acct.UserID)
	if err != nil {
		return fmt.Errorf("acquire user lock: %w", err)
	}
	if !ok {
		logger.Info("user locked by another poller, skipping")
		return nil
	}
	defer release()

	sess, err := p.opener.Open(ctx, acct)
	if err != nil {
		if errors.Is(err, mail.ErrRefreshFailed) {
			logger.Warn("token refresh failed, skipping user", "error", err)
			return nil
		}
		return fmt.Errorf("open mailbox: %w", err)
	}

	if _, err := p.scanner.ScanUser(ctx, acct, sess); err != nil {
		return fmt.Errorf("scan user %s: %w", acct.UserID, err)
	}
	return nil
}
