package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"options-flow-scanner/internal/alerting"
	"options-flow-scanner/internal/config"
	"options-flow-scanner/internal/fetcher"
	"options-flow-scanner/internal/metrics"
	"options-flow-scanner/internal/scheduler"
	"options-flow-scanner/internal/service"
	"options-flow-scanner/internal/sheet"
	"options-flow-scanner/internal/storage"
	"options-flow-scanner/internal/trend"
	"options-flow-scanner/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Fs     afero.Fs
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Fs: afero.NewOsFs()}
}

func (a *App) newFeed() fetcher.PriceFeed {
	cfg := a.Config.Feed
	return fetcher.NewYahoo(fetcher.YahooOptions{
		BaseURL:           cfg.BaseURL,
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.Timeout,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Retries:           cfg.Retries,
		Aliases:           cfg.SymbolAliases,
	}, a.Logger)
}

func (a *App) newScorer(rec *metrics.Recorder) (*trend.Scorer, error) {
	timeframes, err := a.Config.Trend.Frames()
	if err != nil {
		return nil, err
	}
	scorer := trend.NewScorer(a.newFeed(), trend.Options{
		Timeframes:   timeframes,
		Workers:      a.Config.Trend.Workers,
		FetchTimeout: a.Config.Trend.FetchTimeout,
		MinHistory:   a.Config.Trend.MinHistory,
	}, a.Logger)
	if rec != nil {
		scorer = scorer.WithObserver(rec)
	}
	return scorer, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) fileStore() *storage.FileStore {
	return storage.NewFileStore(a.Fs, a.Config.Snapshot.Dir, a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.SnapshotStore, func(), error) {
	store, closer, err := storage.Open(ctx, *a.Config, a.fileStore())
	if err != nil {
		return nil, nil, err
	}
	return store, closer, nil
}

func (a *App) loadSheet(path string) ([]sheet.Block, error) {
	if path == "" {
		path = a.Config.Input.Path
	}
	return sheet.LoadFile(a.Fs, path)
}

// PipelineOptions choose which optional stages a run performs.
type PipelineOptions struct {
	SkipTrend    bool
	SkipSnapshot bool
}

func (a *App) newPipeline(store storage.SnapshotStore, rec *metrics.Recorder, opts PipelineOptions) (*service.Pipeline, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, err
	}

	var scorer service.TrendScorer
	if a.Config.Trend.Enabled && !opts.SkipTrend {
		s, err := a.newScorer(rec)
		if err != nil {
			return nil, err
		}
		scorer = s
	}
	if !a.Config.Snapshot.Enabled || opts.SkipSnapshot {
		store = nil
	}

	var m service.Metrics
	if rec != nil {
		m = rec
	}

	return service.NewPipeline(service.Options{
		Location:            loc,
		LookbackDays:        a.Config.Analysis.DaysBack,
		ForwardMonths:       a.Config.Analysis.NearTermMonths,
		RepetitionThreshold: a.Config.Analysis.RepetitionThreshold,
		LargeOrderMin:       largeOrderMin(a.Config.Analysis.LargeOrderMin),
		Watchlist:           a.Config.Trend.Watchlist,
	}, scorer, store, m, a.Logger), nil
}

func largeOrderMin(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func (a *App) writeMetrics(rec *metrics.Recorder) {
	if err := rec.WriteTextfile(a.Config.Metrics.Textfile); err != nil {
		a.Logger.Warn().Err(err).Str("path", a.Config.Metrics.Textfile).Msg("failed to write metrics textfile")
	}
}

// Run executes the long-running daily service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}
	hour, minute, err := a.Config.RunAt()
	if err != nil {
		return err
	}
	sched, err := scheduler.New(scheduler.Options{
		Hour:         hour,
		Minute:       minute,
		Location:     loc,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	rec := metrics.New()
	pipeline, err := a.newPipeline(store, rec, PipelineOptions{})
	if err != nil {
		return err
	}

	runner := service.NewRunner(pipeline, sched, func(context.Context) ([]sheet.Block, error) {
		return a.loadSheet("")
	}, store, service.RunnerOptions{
		LockKey:    a.Config.Scheduler.AdvisoryLockKey,
		DigestTopN: a.Config.Alerting.TopN,
		Notifier:   a.newNotifier(),
		OnComplete: func(service.Result, error) { a.writeMetrics(rec) },
	}, a.Logger)

	a.Logger.Info().Str("run_at", a.Config.Scheduler.RunAt).Str("version", version.String()).Msg("starting flow scanner service")
	err = runner.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("flow scanner service stopped")
	return nil
}

// AnalyzeOptions configure a one-off pipeline run.
type AnalyzeOptions struct {
	Input  string
	AsOf   time.Time
	TopN   int
	OutDir string
	Notify bool
	PipelineOptions
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Date time.Time
	List bool
	Diff bool
	TopN int
}

// ExportOptions select the stored snapshot to export.
type ExportOptions struct {
	Date   time.Time
	OutDir string
}

// BackfillOptions configure the snapshot backfill job.
type BackfillOptions struct {
	Input  string
	From   time.Time
	To     time.Time
	DryRun bool
}
