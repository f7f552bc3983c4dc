// Package app builds and holds the long-lived services of the scraper from a
// loaded configuration, acting as the dependency injection container for the
// CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	gcstorage "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-chart-scraper/internal/api"
	"github.com/JakeFAU/realtime-chart-scraper/internal/cache"
	"github.com/JakeFAU/realtime-chart-scraper/internal/clock/system"
	"github.com/JakeFAU/realtime-chart-scraper/internal/config"
	"github.com/JakeFAU/realtime-chart-scraper/internal/extract"
	collyfetcher "github.com/JakeFAU/realtime-chart-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/realtime-chart-scraper/internal/hash/sha256"
	"github.com/JakeFAU/realtime-chart-scraper/internal/id/uuid"
	"github.com/JakeFAU/realtime-chart-scraper/internal/logging"
	"github.com/JakeFAU/realtime-chart-scraper/internal/pipeline"
	pubsubpublisher "github.com/JakeFAU/realtime-chart-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/realtime-chart-scraper/internal/scheduler"
	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
	"github.com/JakeFAU/realtime-chart-scraper/internal/snapshot"
	"github.com/JakeFAU/realtime-chart-scraper/internal/storage/gcs"
	"github.com/JakeFAU/realtime-chart-scraper/internal/storage/local"
	"github.com/JakeFAU/realtime-chart-scraper/internal/storage/postgres"
	"github.com/JakeFAU/realtime-chart-scraper/internal/storage/sqlite"
	"github.com/JakeFAU/realtime-chart-scraper/internal/telemetry"
	"github.com/JakeFAU/realtime-chart-scraper/internal/writer"
)

// ServiceName identifies the process in traces.
const ServiceName = "chartscraper"

// Version is overridden at build time with -ldflags.
var Version = "dev"

const (
	flushTimeout    = 5 * time.Second
	sqliteBusyAfter = 5 * time.Second
)

type closer struct {
	name string
	fn   func() error
}

// App holds the shared services for one process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	tracer    *sdktrace.TracerProvider
	files     *local.BlobStore
	store     scraper.RecordStore
	cache     scraper.EncodedCache
	publisher scraper.Publisher
	runner    *pipeline.Runner
	clock     scheduler.Clock
	closers   []closer
}

// Option customizes New.
type Option func(*App)

// WithLogger replaces the logger built from the logging config.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithClock sets the clock driving the scheduler.
func WithClock(c scheduler.Clock) Option {
	return func(a *App) {
		a.clock = c
	}
}

// New initializes every service named by cfg. Any partially built services
// are released before an error is returned.
func New(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg, clock: system.New()}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.logger == nil {
		logger, lerr := logging.New(logging.Options{Development: cfg.Logging.Development, File: cfg.Logging.File})
		if lerr != nil {
			return nil, fmt.Errorf("init logger: %w", lerr)
		}
		a.logger = logger
		a.closers = append(a.closers, closer{name: "logger", fn: func() error {
			// Sync reports EINVAL for terminal stderr.
			_ = logger.Sync()
			return nil
		}})
	}
	a.logger.Info("initializing application services", zap.String("version", Version))

	tp, err := telemetry.InitTracerProvider(ctx, ServiceName, Version)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.tracer = tp

	a.files, err = local.New(local.Config{BaseDir: cfg.Output.Dir})
	if err != nil {
		return nil, fmt.Errorf("init output dir: %w", err)
	}
	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	if err := a.initCache(); err != nil {
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		return nil, err
	}
	mirror, err := a.initMirror(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.initRunner(mirror); err != nil {
		return nil, err
	}

	a.logger.Info("application services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("output_dir", cfg.Output.Dir),
		zap.Bool("redis", cfg.Cache.RedisAddr != ""),
		zap.Bool("mirror", mirror != nil),
		zap.Bool("snapshot", cfg.Snapshot.Enabled),
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.DriverPostgres:
		store, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
			DSN:      a.cfg.Store.PostgresDSN,
			Table:    a.cfg.Store.Table,
			MaxConns: a.cfg.Store.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		a.store = store
	default:
		store, err := sqlite.Open(ctx, sqlite.Config{
			Path:        a.cfg.SQLitePath(),
			Table:       a.cfg.Store.Table,
			BusyTimeout: sqliteBusyAfter,
		})
		if err != nil {
			return fmt.Errorf("init sqlite store: %w", err)
		}
		a.store = store
	}
	a.closers = append(a.closers, closer{name: "store", fn: a.store.Close})
	return nil
}

func (a *App) initCache() error {
	slot := cache.NewSlot()
	if a.cfg.Cache.RedisAddr == "" {
		a.cache = slot
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Cache.RedisAddr,
		Password: a.cfg.Cache.RedisPassword,
		DB:       a.cfg.Cache.RedisDB,
	})
	a.closers = append(a.closers, closer{name: "redis", fn: client.Close})
	mirrored, err := cache.NewMirrored(slot, client, cache.RedisConfig{Key: a.cfg.Cache.Key, TTL: a.cfg.Cache.TTL})
	if err != nil {
		return fmt.Errorf("init redis cache: %w", err)
	}
	a.cache = mirrored
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.cfg.Notify.Topic == "" {
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	a.closers = append(a.closers, closer{name: "pubsub", fn: client.Close})
	pub := pubsubpublisher.New(client.Publisher(a.cfg.Notify.Topic))
	a.closers = append(a.closers, closer{name: "publisher", fn: func() error {
		pub.Close()
		return nil
	}})
	a.publisher = pub
	return nil
}

func (a *App) initMirror(ctx context.Context) (scraper.BlobStore, error) {
	if a.cfg.Mirror.GCSBucket == "" {
		return nil, nil
	}
	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("init gcs client: %w", err)
	}
	a.closers = append(a.closers, closer{name: "gcs", fn: client.Close})
	mirror, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Mirror.GCSBucket, Prefix: a.cfg.Mirror.Prefix})
	if err != nil {
		return nil, fmt.Errorf("init gcs mirror: %w", err)
	}
	return mirror, nil
}

func (a *App) initRunner(mirror scraper.BlobStore) error {
	writerOpts := []writer.Option{writer.WithHasher(sha256.New())}
	if mirror != nil {
		writerOpts = append(writerOpts, writer.WithMirror(mirror))
	}
	w, err := writer.New(writer.Config{
		DocumentPath: a.cfg.Output.DocumentFile,
		TabularPath:  a.cfg.Output.TabularFile,
	}, a.files, a.store, a.cache, writerOpts...)
	if err != nil {
		return fmt.Errorf("init writer: %w", err)
	}

	runnerOpts := []pipeline.Option{
		pipeline.WithClock(system.New()),
		pipeline.WithIDGenerator(uuid.New()),
		pipeline.WithTracer(telemetry.Tracer()),
	}
	if a.publisher != nil {
		runnerOpts = append(runnerOpts, pipeline.WithPublisher(a.publisher))
	}
	if a.cfg.Snapshot.Enabled {
		var snapOpts []snapshot.Option
		if mirror != nil {
			snapOpts = append(snapOpts, snapshot.WithMirror(mirror))
		}
		capturer, err := snapshot.New(snapshot.Config{
			UserAgent: a.cfg.Snapshot.UserAgent,
			Timeout:   a.cfg.Snapshot.Timeout,
			ExecPath:  a.cfg.Snapshot.ExecPath,
		}, a.files, a.logger.Named("snapshot"), snapOpts...)
		if err != nil {
			return fmt.Errorf("init snapshot: %w", err)
		}
		runnerOpts = append(runnerOpts, pipeline.WithCapturer(capturer))
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Fetch.UserAgent,
		RespectRobots: a.cfg.Fetch.RespectRobots,
		Timeout:       a.cfg.Fetch.Timeout,
	})
	runner, err := pipeline.New(pipeline.Config{
		SourceURL:      a.cfg.Source.URL,
		Selector:       a.cfg.Source.Selector,
		Headers:        a.cfg.HTTPHeaders(),
		ScreenshotPath: a.cfg.Output.ScreenshotFile,
		Topic:          a.cfg.Notify.Topic,
	}, fetcher, extract.New(), w, a.logger.Named("pipeline"), runnerOpts...)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	a.runner = runner
	return nil
}

// Config returns the configuration the services were built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the queryable record store.
func (a *App) Store() scraper.RecordStore {
	return a.store
}

// Cache returns the encoded document cache.
func (a *App) Cache() scraper.EncodedCache {
	return a.cache
}

// RunOnce executes a single pipeline run.
func (a *App) RunOnce(ctx context.Context) (scraper.RunReport, error) {
	return a.runner.Run(ctx)
}

// Handler returns the read API routes.
func (a *App) Handler() http.Handler {
	return api.NewServer(a.store, a.cache, a.logger.Named("api")).Handler()
}

// RunSchedule blocks until ctx is cancelled or the configured schedule has no
// further firings, running the pipeline at every firing.
func (a *App) RunSchedule(ctx context.Context) error {
	sched, err := a.newScheduler()
	if err != nil {
		return err
	}
	sched.Run(ctx)
	return nil
}

func (a *App) newScheduler() (*scheduler.Scheduler, error) {
	cfg := scheduler.Config{
		Mode:       scheduler.Mode(a.cfg.Schedule.Mode),
		Interval:   a.cfg.Schedule.Interval,
		Cron:       a.cfg.Schedule.Cron,
		RunOnStart: a.cfg.Schedule.RunOnStart,
	}
	if cfg.Mode == scheduler.ModeOnce {
		at, err := a.cfg.ScheduleAt()
		if err != nil {
			return nil, err
		}
		cfg.At = at
	}
	logger := a.logger.Named("scheduler")
	job := func(ctx context.Context) error {
		report, err := a.runner.Run(ctx)
		if err != nil {
			return fmt.Errorf("run %s: %w", report.RunID, err)
		}
		return nil
	}
	sched, err := scheduler.New(cfg, job, logger, scheduler.WithClock(a.clock))
	if err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	return sched, nil
}

// Close releases services in reverse order of creation. It is safe to call on
// a partially initialized App.
func (a *App) Close() {
	logger := a.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("shutting down application services")

	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := a.tracer.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	a.tracer = nil
}
