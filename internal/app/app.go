package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"stellar-insights/internal/alerting"
	"stellar-insights/internal/analytics"
	"stellar-insights/internal/cache"
	"stellar-insights/internal/config"
	"stellar-insights/internal/fetcher"
	"stellar-insights/internal/logging"
	"stellar-insights/internal/metrics"
	"stellar-insights/internal/scheduler"
	"stellar-insights/internal/service"
	"stellar-insights/internal/storage"
	"stellar-insights/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	// Out receives command output.
	Out      io.Writer

	metrics *metrics.Metrics
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	registry := prometheus.NewRegistry()
	return &App{
		Config:   cfg,
		Logger:   logging.Component(logger, "app"),
		Registry: registry,
		Out:      os.Stdout,
		metrics:  metrics.New(registry),
	}
}

func (a *App) newSource() fetcher.PaymentSource {
	if a.Config.Horizon.MockMode {
		a.Logger.Warn().Msg("horizon.mock_mode enabled; ingesting simulated payments")
		return fetcher.NewSimulated(fetcher.SimulatedOptions{PageSize: a.Config.Horizon.PageLimit})
	}
	return fetcher.NewHorizon(fetcher.HorizonOptions{
		BaseURL:   a.Config.Horizon.BaseURL,
		PageLimit: a.Config.Horizon.PageLimit,
		Timeout:   a.Config.Horizon.RequestTimeout,
		UserAgent: a.Config.Horizon.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	var notifiers alerting.MultiNotifier
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger))
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notifiers
}

func (a *App) newCache(ctx context.Context, m *metrics.Metrics) (*cache.Aside, func()) {
	if !a.Config.Cache.Enabled {
		return cache.New(cache.NopBackend{}, m, a.Logger), func() {}
	}

	backend := cache.NewRedisBackend(cache.RedisOptions{
		Addr:     a.Config.Cache.RedisAddr,
		Password: a.Config.Cache.RedisPassword,
		DB:       a.Config.Cache.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := backend.Ping(pingCtx); err != nil {
		a.Logger.Warn().Err(err).Str("addr", a.Config.Cache.RedisAddr).Msg("redis unreachable; cached reads will fail until it recovers")
	}
	closer := func() {
		if err := backend.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close redis client")
		}
	}
	return cache.New(backend, m, a.Logger), closer
}

func (a *App) newScorer() analytics.WeightedScorer {
	return analytics.WeightedScorer{
		SuccessWeight:      a.Config.Scoring.SuccessWeight,
		SettlementWeight:   a.Config.Scoring.SettlementWeight,
		TargetSettlementMs: a.Config.Scoring.TargetSettlementMs,
	}
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	return storage.Open(ctx, a.Config.Database)
}

// newService wires a Service. sched may be nil for one-shot commands.
func (a *App) newService(ctx context.Context, sched *scheduler.Scheduler) (*service.Service, func(), error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	m := a.metrics
	aside, closeCache := a.newCache(ctx, m)

	svc := service.New(a.Config, service.Dependencies{
		Scheduler: sched,
		Source:    a.newSource(),
		Store:     store,
		Cache:     aside,
		Scorer:    a.newScorer(),
		Notifier:  a.newNotifier(),
		Metrics:   m,
	}, a.Logger)

	closer := func() {
		closeCache()
		store.Close()
	}
	return svc, closer, nil
}

// Run executes the long-running ingestion service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
		CycleTimeout: a.Config.Scheduler.CycleTimeout,
	}, a.Logger)

	svc, closeService, err := a.newService(ctx, sched)
	if err != nil {
		return err
	}
	defer closeService()

	a.Logger.Info().
		Str("version", version.String()).
		Str("driver", a.Config.Database.Driver).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting ingestion service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("ingestion service stopped")
	return nil
}

// ExportOptions hold parameters for exporting hourly corridor metrics.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	Corridor  string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// AggregateOptions configure a range backfill.
type AggregateOptions struct {
	From time.Time
	To   time.Time
}

// CorridorOptions configure the corridors listing.
type CorridorOptions struct {
	From           time.Time
	To             time.Time
	SuccessRateMin *float64
	SuccessRateMax *float64
	VolumeMin      *float64
	VolumeMax      *float64
	Limit          int
	JSON           bool
}

// ScoreOptions either score raw counters or an account's stored payments.
type ScoreOptions struct {
	Account         string
	From            time.Time
	To              time.Time
	Total           int64
	Successful      int64
	Failed          int64
	AvgSettlementMs *float64
	// History lists the account's recorded snapshots instead of scoring.
	History bool
	Limit   int
	JSON    bool
}

// MuxedOptions configure the muxed analytics report.
type MuxedOptions struct {
	TopN int
	JSON bool
}

// PaymentsOptions select stored payments by id.
type PaymentsOptions struct {
	IDs  []string
	JSON bool
}
