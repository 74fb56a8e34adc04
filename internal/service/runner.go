package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"options-flow-scanner/internal/alerting"
	"options-flow-scanner/internal/scheduler"
	"options-flow-scanner/internal/sheet"
	"options-flow-scanner/internal/storage"
)

// Source loads the sheet export for one run.
type Source func(ctx context.Context) ([]sheet.Block, error)

// RunnerOptions configure the scheduled runner.
type RunnerOptions struct {
	// LockKey is the Postgres advisory lock guarding a run. Zero disables it.
	LockKey    int64
	DigestTopN int
	Notifier   alerting.Notifier
	// OnComplete is called after every run, successful or not.
	OnComplete func(Result, error)
}

// Runner executes the pipeline once a day and dispatches the digest.
type Runner struct {
	pipeline  *Pipeline
	scheduler *scheduler.Scheduler
	source    Source
	opts      RunnerOptions
	locker    storage.AdvisoryLocker
	logger    zerolog.Logger
}

// NewRunner wires a pipeline to its scheduler. store is only inspected for
// advisory locking.
func NewRunner(p *Pipeline, sched *scheduler.Scheduler, source Source, store storage.SnapshotStore, opts RunnerOptions, logger zerolog.Logger) *Runner {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Runner{
		pipeline:  p,
		scheduler: sched,
		source:    source,
		opts:      opts,
		locker:    locker,
		logger:    logger.With().Str("component", "runner").Logger(),
	}
}

// Run blocks on the daily schedule.
func (r *Runner) Run(ctx context.Context) error {
	if r.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return r.scheduler.Run(ctx, r.ProcessDay)
}

// ProcessDay runs the pipeline for the day containing at.
func (r *Runner) ProcessDay(ctx context.Context, at time.Time) error {
	unlock, proceed, err := r.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		r.logger.Debug().Time("run_at", at).Msg("skip run because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	res, err := r.execute(ctx, at)
	if r.opts.OnComplete != nil {
		r.opts.OnComplete(res, err)
	}
	return err
}

func (r *Runner) execute(ctx context.Context, at time.Time) (Result, error) {
	blocks, err := r.source(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load sheet: %w", err)
	}

	res, runErr := r.pipeline.Run(ctx, blocks, at)
	if ctx.Err() != nil {
		return res, runErr
	}

	if r.opts.Notifier != nil {
		if err := r.opts.Notifier.Notify(ctx, res.Digest(r.opts.DigestTopN)); err != nil {
			r.logger.Error().Err(err).Time("date", res.Date).Msg("failed to dispatch digest")
		}
	}
	return res, runErr
}

func (r *Runner) acquireLock(ctx context.Context) (func(), bool, error) {
	if r.opts.LockKey == 0 || r.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := r.locker.TryAdvisoryLock(ctx, r.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// Digest condenses a result for chat delivery.
func (res Result) Digest(topN int) alerting.Digest {
	return alerting.Digest{
		Date:        res.Date,
		Repeated:    res.Repeated,
		LargeOrders: res.LargeOrders,
		Trend:       res.Trend.Statuses,
		Sentiment:   res.Sentiment,
		TopN:        topN,
	}
}
