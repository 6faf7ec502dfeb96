package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bryanwahyu/geoanalysis/internal/application"
	appanalyses "github.com/bryanwahyu/geoanalysis/internal/application/analyses"
	appdatasets "github.com/bryanwahyu/geoanalysis/internal/application/datasets"
	appinsight "github.com/bryanwahyu/geoanalysis/internal/application/insight"
	"github.com/bryanwahyu/geoanalysis/internal/config"
	"github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
	"github.com/bryanwahyu/geoanalysis/internal/domain/insight"
	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
	"github.com/bryanwahyu/geoanalysis/internal/infra/ai/openai"
	"github.com/bryanwahyu/geoanalysis/internal/infra/ai/prompt"
	"github.com/bryanwahyu/geoanalysis/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/geoanalysis/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/geoanalysis/internal/infra/db/postgres"
	"github.com/bryanwahyu/geoanalysis/internal/infra/events/kafka"
	"github.com/bryanwahyu/geoanalysis/internal/infra/metrics"
	memqueue "github.com/bryanwahyu/geoanalysis/internal/infra/queue/memory"
	redisqueue "github.com/bryanwahyu/geoanalysis/internal/infra/queue/redis"
	minioStore "github.com/bryanwahyu/geoanalysis/internal/infra/storage"
	"github.com/bryanwahyu/geoanalysis/internal/middleware"
)

// Stores is the persistence side for one database driver.
type Stores struct {
	DB       *sql.DB // nil for the memory driver
	Datasets spatial.DatasetRepository
	Layers   spatial.LayerRepository
	Features spatial.FeatureRepository
	Analyses analyses.Repository
	Errors   analyses.ErrorLog
	Insights insight.Repository
}

// OpenStores connects the configured driver and builds its repositories.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		return &Stores{
			DB:       db,
			Datasets: mysqlp.NewDatasetRepository(db),
			Layers:   mysqlp.NewLayerRepository(db),
			Features: mysqlp.NewFeatureRepository(db),
			Analyses: mysqlp.NewAnalysisRepository(db),
			Errors:   mysqlp.NewErrorRepository(db),
			Insights: mysqlp.NewInsightRepository(db),
		}, nil
	case config.DriverPostgres:
		db, err := pgp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		return &Stores{
			DB:       db,
			Datasets: pgp.NewDatasetRepository(db),
			Layers:   pgp.NewLayerRepository(db),
			Features: pgp.NewFeatureRepository(db),
			Analyses: pgp.NewAnalysisRepository(db),
			Errors:   pgp.NewErrorRepository(db),
			Insights: pgp.NewInsightRepository(db),
		}, nil
	}
	return &Stores{
		Datasets: memory.NewDatasetRepository(),
		Layers:   memory.NewLayerRepository(),
		Features: memory.NewFeatureRepository(),
		Analyses: memory.NewAnalysisRepository(),
		Errors:   memory.NewErrorLog(),
		Insights: memory.NewInsightRepository(),
	}, nil
}

// App is the wired process: stores, collaborators and services.
type App struct {
	Config  *config.Config
	Log     *zap.Logger
	Stores  *Stores
	Metrics *metrics.Metrics

	Redis      *goredis.Client   // nil unless worker mode is redis
	RedisQueue *redisqueue.Queue // nil unless worker mode is redis
	MemQueue   *memqueue.Queue   // nil unless worker mode is memory
	Artifacts  *minioStore.Store // nil when minio is disabled
	Events     analyses.EventPublisher

	Datasets *appdatasets.Service
	Analyses *appanalyses.Service
	Tasks    *appanalyses.Tasks
	Insight  *appinsight.Service

	closers []func() error
}

// New wires every component from cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}

	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Stores = stores
	if stores.DB != nil {
		a.closers = append(a.closers, stores.DB.Close)
	}

	var queue analyses.Queue
	switch cfg.Worker.Mode {
	case config.QueueRedis:
		rdb, err := redisqueue.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis connect: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, rdb.Close)
		a.RedisQueue = redisqueue.New(rdb, redisqueue.Options{Prefix: cfg.Redis.Prefix}, log.Named("queue"))
		queue = a.RedisQueue
	default:
		a.MemQueue = memqueue.New(cfg.Worker.QueueSize, log.Named("queue"))
		queue = a.MemQueue
	}

	var artifacts analyses.ArtifactStore
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("minio init: %w", err)
		}
		a.Artifacts = store
		artifacts = store
	}

	a.Events = kafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.Named("events"))
	if c, ok := a.Events.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	clock := application.SystemClock{}
	a.Datasets = &appdatasets.Service{
		Datasets: stores.Datasets,
		Layers:   stores.Layers,
		Features: stores.Features,
		Clock:    clock,
		Log:      log.Named("datasets"),
	}
	a.Analyses = &appanalyses.Service{
		Repo:      stores.Analyses,
		Datasets:  stores.Datasets,
		Layers:    stores.Layers,
		Features:  stores.Features,
		Errors:    stores.Errors,
		Artifacts: artifacts,
		Events:    a.Events,
		Metrics:   a.Metrics,
		Clock:     clock,
		Log:       log.Named("analyses"),
	}
	a.Tasks = &appanalyses.Tasks{Service: a.Analyses, Queue: queue, Log: log.Named("tasks")}

	var client insight.Client = prompt.Offline{}
	model := "offline"
	if cfg.OpenAI.APIKey != "" {
		model = cfg.OpenAI.Model
		if model == "" {
			model = openai.DefaultModel
		}
		if cfg.OpenAI.BaseURL != "" {
			client = openai.NewClientWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, model)
		} else {
			client = openai.NewClient(cfg.OpenAI.APIKey, model)
		}
	}
	a.Insight = &appinsight.Service{
		Analyses: stores.Analyses,
		Repo:     stores.Insights,
		Client:   client,
		Model:    model,
		Clock:    clock,
		Log:      log.Named("insight"),
	}
	return a, nil
}

// Health returns the readiness checks of the wired dependencies.
func (a *App) Health() map[string]middleware.HealthChecker {
	checks := map[string]middleware.HealthChecker{}
	if a.Stores.DB != nil {
		checks["database"] = &middleware.DatabaseHealthChecker{DB: a.Stores.DB}
	}
	if a.Redis != nil {
		checks["redis"] = middleware.CheckFunc(func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		})
	}
	if a.Artifacts != nil {
		checks["minio"] = middleware.CheckFunc(a.Artifacts.Ping)
	}
	return checks
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
}
