// Package pipeline runs the periodic scoring cycle: read accounts, score them,
// aggregate the portfolio, then persist and publish the snapshot.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/refset/account-health/internal/account"
	"github.com/refset/account-health/internal/config"
	"github.com/refset/account-health/internal/portfolio"
	"github.com/refset/account-health/internal/scoring"
	"github.com/refset/account-health/internal/snapshot"
)

// Source supplies the accounts to score.
type Source interface {
	ListAccounts(ctx context.Context) ([]account.Record, error)
}

// Syncer pulls fresh account data from upstream before a cycle. Commit is
// called once the polled records are stored.
type Syncer interface {
	Poll(ctx context.Context) ([]account.Record, []account.Rejection, error)
	Commit()
}

// AccountWriter stores synced accounts.
type AccountWriter interface {
	UpsertAccounts(ctx context.Context, records []account.Record) (int, error)
}

// RunStore records finished cycles.
type RunStore interface {
	SaveRun(ctx context.Context, snap snapshot.Snapshot) error
}

// Publisher announces finished cycles downstream.
type Publisher interface {
	PublishResults(ctx context.Context, runID string, results []scoring.Result) error
	PublishReport(ctx context.Context, snap snapshot.Snapshot) error
}

// Cache holds the latest snapshot for readers.
type Cache interface {
	Put(ctx context.Context, snap snapshot.Snapshot) error
}

// Pipeline orchestrates one scoring cycle per tick
type Pipeline struct {
	cfg       *config.Config
	logger    *zap.Logger
	source    Source
	runs      RunStore
	syncer    Syncer
	accounts  AccountWriter
	publisher Publisher
	cache     Cache
	now       func() time.Time
	newID     func() string
}

// Option wires an optional stage into the pipeline.
type Option func(*Pipeline)

// WithSync pulls accounts from syncer and writes them through w before
// each cycle.
func WithSync(syncer Syncer, w AccountWriter) Option {
	return func(p *Pipeline) {
		p.syncer = syncer
		p.accounts = w
	}
}

func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

func WithCache(c Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a new pipeline. The configuration is validated up front so a
// bad weight or threshold fails before any record is read.
func New(cfg *config.Config, logger *zap.Logger, source Source, runs RunStore, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:    cfg,
		logger: logger,
		source: source,
		runs:   runs,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes a cycle immediately and then on every interval until ctx is
// canceled. Cycle failures are logged and do not stop the loop.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.cfg.Pipeline.Interval <= 0 {
		return fmt.Errorf("pipeline.interval must be positive, got %s", p.cfg.Pipeline.Interval)
	}
	p.logger.Info("starting account health pipeline",
		zap.Duration("interval", p.cfg.Pipeline.Interval),
		zap.Bool("sync", p.syncer != nil),
		zap.Bool("publish", p.publisher != nil),
		zap.Bool("cache", p.cache != nil),
	)

	ticker := time.NewTicker(p.cfg.Pipeline.Interval)
	defer ticker.Stop()

	if _, err := p.RunOnce(ctx); err != nil {
		p.logger.Error("initial cycle failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down pipeline")
			return nil
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				p.logger.Error("cycle failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes a single cycle and returns the snapshot it produced. The
// run is persisted before it is published or cached; downstream failures
// are logged and do not fail the cycle.
func (p *Pipeline) RunOnce(ctx context.Context) (snapshot.Snapshot, error) {
	started := p.now()

	var rejected []account.Rejection
	if p.syncer != nil {
		var err error
		rejected, err = p.sync(ctx)
		if err != nil {
			p.logger.Warn("account sync failed, scoring stored accounts", zap.Error(err))
		}
	}

	records, err := p.source.ListAccounts(ctx)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("load accounts: %w", err)
	}

	asOf, err := p.cfg.EvaluationDate(started)
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	snap, err := Compute(ctx, p.cfg, records, rejected, asOf, p.newID(), started)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	for _, s := range snap.Report.Skipped {
		p.logger.Warn("skipped account",
			zap.Int("index", s.Index),
			zap.String("account_id", s.AccountID),
			zap.String("kind", s.Kind),
			zap.String("reason", s.Reason),
		)
	}

	if err := p.runs.SaveRun(ctx, snap); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("save run: %w", err)
	}

	if p.publisher != nil {
		if err := p.publisher.PublishResults(ctx, snap.RunID, snap.Results); err != nil {
			p.logger.Error("publish results failed", zap.String("run_id", snap.RunID), zap.Error(err))
		} else if err := p.publisher.PublishReport(ctx, snap); err != nil {
			p.logger.Error("publish report failed", zap.String("run_id", snap.RunID), zap.Error(err))
		}
	}
	if p.cache != nil {
		if err := p.cache.Put(ctx, snap); err != nil {
			p.logger.Error("cache snapshot failed", zap.String("run_id", snap.RunID), zap.Error(err))
		}
	}

	p.logger.Info("cycle complete",
		zap.String("run_id", snap.RunID),
		zap.Time("as_of", snap.AsOf),
		zap.Int("scored", len(snap.Results)),
		zap.Int("skipped", len(snap.Report.Skipped)),
		zap.Int("rejected", len(snap.Report.Rejected)),
		zap.Duration("elapsed", p.now().Sub(started)),
	)
	return snap, nil
}

// sync stores the polled records and commits the syncer checkpoint only
// after the write succeeds. Rows the syncer rejected are returned even when
// the write fails.
func (p *Pipeline) sync(ctx context.Context) ([]account.Rejection, error) {
	records, rejected, err := p.syncer.Poll(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rejected {
		p.logger.Warn("rejected upstream account",
			zap.String("source", r.Source),
			zap.String("account_id", r.AccountID),
			zap.String("reason", r.Reason),
		)
	}
	if len(records) > 0 {
		n, err := p.accounts.UpsertAccounts(ctx, records)
		if err != nil {
			return rejected, err
		}
		p.logger.Info("synced accounts", zap.Int("count", n))
	}
	p.syncer.Commit()
	return rejected, nil
}

// Compute scores records and aggregates them into a snapshot without any
// side effects. Rejected input rows are carried into the report.
func Compute(ctx context.Context, cfg *config.Config, records []account.Record, rejected []account.Rejection, asOf time.Time, runID string, generatedAt time.Time) (snapshot.Snapshot, error) {
	engine, err := scoring.NewEngine(cfg.Scoring)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	batch, err := engine.ScoreBatch(ctx, records)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("score accounts: %w", err)
	}
	batch.Rejected = rejected
	report, err := portfolio.Build(batch, cfg.PortfolioOptions(asOf))
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return snapshot.New(runID, generatedAt, batch, report), nil
}
