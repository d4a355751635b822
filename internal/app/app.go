// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/api"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/bulkload"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/collector"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/config"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/dedupe"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grantsgov"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/id/uuid"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/logging"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/normalize"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/queue"
	queueMemory "github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/queue/memory"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/rawstore"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/scrape"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/source"
	storeMemory "github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/store/memory"
	storePostgres "github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/store/postgres"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/telemetry"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/worker"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and passed to the commands that
// need it.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Store      grants.Store
	Client     *grantsgov.Client
	BulkIndex  *source.BulkIndexSource
	Chain      *source.Chain
	Searcher   *source.Searcher
	Archiver   rawstore.Archiver
	Seen       grants.SeenSet
	Collector  *collector.Collector
	BulkRunner *collector.BulkRunner
	Loader     *bulkload.Loader

	redis    *redis.Client
	psClient *pubsub.Client
	psTopic  *pubsub.Topic
}

// New wires the full pipeline from configuration. It fails fast if any
// critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	a.initSources()
	if err := a.initQueue(ctx); err != nil {
		return nil, err
	}
	if err := a.initArchiver(ctx); err != nil {
		return nil, err
	}
	a.initDedupe()
	a.initPipeline()

	logger.Info("application services initialized",
		zap.String("queue", cfg.Queue.Kind),
		zap.String("rawstore", cfg.RawStore.Kind),
		zap.Bool("postgres", cfg.Database.DSN != ""),
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.Config.Database.DSN == "" {
		a.Logger.Info("no database dsn configured, using in-memory store")
		a.Store = storeMemory.New(nil)
		return nil
	}
	st, err := storePostgres.New(ctx, storePostgres.Config{
		DSN:      a.Config.Database.DSN,
		Table:    a.Config.Database.Table,
		MaxConns: a.Config.Database.MaxConns,
		MinConns: a.Config.Database.MinConns,
	}, nil)
	if err != nil {
		return fmt.Errorf("init postgres store: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	a.Store = st
	return nil
}

func (a *App) initSources() {
	a.Client = grantsgov.New(grantsgov.Config{
		BaseURL:    a.Config.GrantsGov.BaseURL,
		Timeout:    time.Duration(a.Config.GrantsGov.TimeoutSeconds) * time.Second,
		UserAgent:  a.Config.GrantsGov.UserAgent,
		RatePerSec: a.Config.GrantsGov.RatePerSec,
	}, a.Logger)
	fetcher := scrape.NewFetcher(scrape.FetcherConfig{
		UserAgent: a.Config.Scrape.UserAgent,
		Timeout:   time.Duration(a.Config.Scrape.TimeoutSeconds) * time.Second,
	}, a.Logger)
	a.BulkIndex = source.NewBulkIndexSource()

	a.Chain = source.NewChain(a.Logger, []source.Source{
		source.NewAPIDetailSource(a.Client),
		source.NewAPISearchSource(a.Client),
		source.NewScrapeSource(fetcher, scrape.NewParser()),
		a.BulkIndex,
	}, source.WithObserver(telemetry.ObserveSourceAttempt))

	a.Searcher = source.NewSearcher(a.Client, a.Logger)
	a.Loader = bulkload.NewLoader(a.Config.Bulkload.BaseURL, a.Logger)
}

func (a *App) initQueue(ctx context.Context) error {
	if a.Config.Queue.Kind != "pubsub" {
		return nil
	}
	client, topic, err := queue.DialPubSub(ctx, a.Config.Queue.ProjectID, a.Config.Queue.Topic)
	if err != nil {
		return fmt.Errorf("init pubsub queue: %w", err)
	}
	a.psClient = client
	a.psTopic = topic
	return nil
}

// newQueue mints the task queue for one collection run. Memory queues
// are single-use; pubsub queues share the process-wide client so a
// closed run does not sever the connection.
func (a *App) newQueue() queue.Queue {
	if a.psClient != nil {
		sub := a.psClient.Subscription(a.Config.Queue.Subscription)
		return queue.NewPubSub(a.psTopic, sub, a.Logger)
	}
	return queueMemory.NewQueue(a.Config.Queue.Depth)
}

func (a *App) initArchiver(ctx context.Context) error {
	switch a.Config.RawStore.Kind {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		g, err := rawstore.NewGCS(client, a.Config.RawStore.Bucket)
		if err != nil {
			return fmt.Errorf("init gcs rawstore: %w", err)
		}
		a.Archiver = g
	case "local":
		l, err := rawstore.NewLocal(a.Config.RawStore.Dir)
		if err != nil {
			return fmt.Errorf("init local rawstore: %w", err)
		}
		a.Archiver = l
	default:
		a.Archiver = rawstore.Noop{}
	}
	return nil
}

func (a *App) initDedupe() {
	if a.Config.Redis.Addr == "" {
		a.Seen = dedupe.NewMemorySeen()
		return
	}
	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	a.Seen = dedupe.NewRedisSeen(a.redis,
		a.Config.Redis.Prefix,
		time.Duration(a.Config.Redis.TTLHours)*time.Hour,
	)
}

func (a *App) initPipeline() {
	normalizer := normalize.New()
	sessions := func(context.Context) (collector.Session, error) {
		q := a.newQueue()
		w := worker.New(q, a.Chain, normalizer, a.Store, a.Archiver, a.Logger)
		return collector.Session{Queue: q, Pool: worker.NewPool(w, a.Config.Collect.Workers)}, nil
	}
	a.Collector = collector.New(a.Searcher, sessions, a.Seen, uuid.New(), nil, a.Logger)
	a.BulkRunner = collector.NewBulkRunner(normalizer, a.Store, a.BulkIndex, a.Logger)
}

// APIServer builds the HTTP surface over the configured store.
func (a *App) APIServer() *api.Server {
	checks := map[string]api.HealthChecker{
		"store": a.Store.Ping,
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}
	cfg := api.Config{RequestTimeout: a.Config.APITimeout()}
	if a.Config.Auth.Enabled {
		cfg.APIKey = a.Config.Auth.APIKey
	}
	return api.NewServer(a.Store, checks, cfg, a.Logger)
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() {
	a.Logger.Info("shutting down application services")
	if a.psClient != nil {
		a.psTopic.Stop()
		if err := a.psClient.Close(); err != nil {
			a.Logger.Warn("error closing pubsub client", zap.Error(err))
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("error closing redis client", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
