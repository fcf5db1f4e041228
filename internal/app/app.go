package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Stripstone/OfflineEbayMonitor/internal/alerting"
	"github.com/Stripstone/OfflineEbayMonitor/internal/config"
	"github.com/Stripstone/OfflineEbayMonitor/internal/diagnostics"
	"github.com/Stripstone/OfflineEbayMonitor/internal/ingest"
	"github.com/Stripstone/OfflineEbayMonitor/internal/logging"
	"github.com/Stripstone/OfflineEbayMonitor/internal/metrics"
	"github.com/Stripstone/OfflineEbayMonitor/internal/scheduler"
	"github.com/Stripstone/OfflineEbayMonitor/internal/seen"
	"github.com/Stripstone/OfflineEbayMonitor/internal/service"
	"github.com/Stripstone/OfflineEbayMonitor/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

func (a *App) newNotifier() *alerting.Fanout {
	fan := alerting.NewFanout(a.Logger)
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		fan.Add(config.ChannelTelegram, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger))
	}
	fan.Add(config.ChannelLog, alerting.NewLogNotifier(a.Logger))
	return fan
}

// openStore connects to PostgreSQL and applies migrations. It returns nil when no DSN is set.
func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool, a.Config.Seen.TTL)
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) benchmarkStore(store *storage.Store) (storage.BenchmarkStore, error) {
	switch a.Config.Benchmark.Backend {
	case config.BackendPostgres:
		if store == nil {
			return nil, errors.New("benchmark.backend=postgres requires database.dsn")
		}
		return store, nil
	default:
		return service.NewFileBenchmarks(a.Config.Benchmark.Path, a.Logger), nil
	}
}

func (a *App) seenStore(ctx context.Context, store *storage.Store) (seen.Store, func(), error) {
	switch a.Config.Seen.Backend {
	case config.BackendPostgres:
		if store == nil {
			return nil, nil, errors.New("seen.backend=postgres requires database.dsn")
		}
		return store, nil, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return seen.NewRedisStore(rdb, a.Config.Redis.KeyPrefix, a.Config.Seen.TTL), func() { _ = rdb.Close() }, nil
	default:
		return seen.NewFileStore(a.Config.Seen.Path, a.Config.Seen.TTL), nil, nil
	}
}

func (a *App) newLoader() (*ingest.Loader, error) {
	enricher, err := a.Config.Enricher()
	if err != nil {
		return nil, fmt.Errorf("build enricher: %w", err)
	}
	return ingest.NewLoader(ingest.Options{
		Dir:             a.Config.Scan.SnapshotDir,
		Pattern:         a.Config.Scan.Pattern,
		ArchiveDir:      a.Config.Scan.ArchiveDir,
		DeleteProcessed: a.Config.Scan.DeleteProcessed,
	}, enricher, a.Logger), nil
}

// newService wires every backend the config selects. The returned cleanup is never nil.
func (a *App) newService(ctx context.Context, sched *scheduler.Scheduler) (*service.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, cleanup, err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}
	if store == nil {
		a.Logger.Debug().Msg("database.dsn not configured; scan runs and alert history disabled")
	}

	benchmarks, err := a.benchmarkStore(store)
	if err != nil {
		return nil, cleanup, err
	}
	seenStore, closeSeen, err := a.seenStore(ctx, store)
	if err != nil {
		return nil, cleanup, err
	}
	if closeSeen != nil {
		closers = append(closers, closeSeen)
	}
	loader, err := a.newLoader()
	if err != nil {
		return nil, cleanup, err
	}

	deps := service.Deps{
		Source:      loader,
		Benchmarks:  benchmarks,
		Seen:        seenStore,
		Notifier:    a.newNotifier(),
		Diagnostics: diagnostics.NewWriter(a.Config.Diagnostics.Dir),
	}
	if store != nil {
		deps.Runs = store
		deps.Alerts = store
		deps.Locker = store
	}

	svc, err := service.New(a.Config, sched, deps, a.Logger)
	if err != nil {
		return nil, cleanup, err
	}
	return svc, cleanup, nil
}

// Run executes the long-running scan loop.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		Jitter:         a.Config.Scheduler.Jitter,
		RunImmediately: a.Config.Scheduler.RunImmediately,
	}, a.Logger)

	svc, cleanup, err := a.newService(ctx, sched)
	defer cleanup()
	if err != nil {
		return err
	}

	if a.Config.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, a.Config.Metrics.ListenAddr, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	a.Logger.Info().
		Str("snapshot_dir", a.Config.Scan.SnapshotDir).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting scan loop")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("scan loop terminated with error")
		return err
	}

	a.Logger.Info().Msg("scan loop stopped")
	return nil
}

// Scan runs one cycle and prints the verdict table.
func (a *App) Scan(ctx context.Context, opts ScanOptions) error {
	svc, cleanup, err := a.newService(ctx, nil)
	defer cleanup()
	if err != nil {
		return err
	}

	res, err := svc.ScanOnce(ctx)
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Fprintln(os.Stdout, "another instance holds the scan lock; nothing to do")
		return nil
	}

	printVerdicts(os.Stdout, res.Verdicts, opts.All)
	fmt.Fprintf(os.Stdout, "\nfiles=%d seen=%d hits=%d pros=%d misses=%d ineligible=%d captured=%d notified=%d\n",
		res.Files, res.Seen, res.Hits, res.Pros, res.Misses, res.Ineligible, res.Captured, res.Notified)
	if opts.Summary {
		fmt.Fprint(os.Stdout, "\n"+diagnostics.Summary(svc.Diagnostics()))
	}
	return nil
}

// ScanOptions configure the scan command.
type ScanOptions struct {
	// All prints MISS and INELIGIBLE rows too.
	All     bool
	Summary bool
}

// ExportOptions hold parameters for exporting benchmarks.
type ExportOptions struct {
	PNGPath string
	CSVPath string
	MaxRows int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	What  string
	Limit int
}

// ReplayOptions configure the benchmark replay job.
type ReplayOptions struct {
	Dir     string
	Pattern string
	DryRun  bool
}
