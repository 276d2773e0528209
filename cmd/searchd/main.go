// Command searchd serves full-text queries over a built index. At startup it
// rebuilds the index if the status marker says the last build never
// completed, then loads the serve-phase artifacts and exposes the HTTP API.
// Redis, Kafka, and Postgres are optional: the daemon degrades to uncached,
// in-process-only operation when they are absent.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/lunate/websearch/internal/analytics"
	analyticsstore "github.com/lunate/websearch/internal/analytics/store"
	"github.com/lunate/websearch/internal/artifacts"
	"github.com/lunate/websearch/internal/build"
	"github.com/lunate/websearch/internal/search"
	"github.com/lunate/websearch/internal/search/cache"
	"github.com/lunate/websearch/internal/server"
	"github.com/lunate/websearch/pkg/config"
	"github.com/lunate/websearch/pkg/health"
	"github.com/lunate/websearch/pkg/kafka"
	"github.com/lunate/websearch/pkg/logger"
	"github.com/lunate/websearch/pkg/metrics"
	"github.com/lunate/websearch/pkg/middleware"
	"github.com/lunate/websearch/pkg/postgres"
	"github.com/lunate/websearch/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("WS_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("searchd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	layout := artifacts.Layout{Dir: cfg.Index.ArtifactsDir}

	if err := ensureIndex(ctx, layout, cfg, m, log); err != nil {
		return err
	}

	engine, err := search.Open(layout, cfg.Search.MaxResults, cfg.Search.PrecacheStopWords)
	if err != nil {
		return fmt.Errorf("opening search engine: %w", err)
	}
	defer engine.Close()

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		status, err := layout.LoadStatus()
		if err != nil || !status.Completed {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index not built"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, query caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	searcher := cache.New(engine, redisClient, cfg.Redis.CacheTTL, m)

	aggregator := analytics.NewAggregator(10)
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, aggregator.Handle)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("analytics consumer stopped", "error", err)
			}
		}()
	}
	collector := analytics.NewCollector(producer)
	defer collector.Close()

	var snapshotStore *analyticsstore.Store
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			log.Warn("postgres unavailable, snapshots disabled", "error", err)
		} else {
			defer pg.Close()
			snapshotStore, err = analyticsstore.New(ctx, pg)
			if err != nil {
				return fmt.Errorf("preparing analytics store: %w", err)
			}
			go snapshotStore.RunPeriodic(ctx, aggregator, cfg.Postgres.SnapshotEvery)
			checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
				if err := pg.DB.PingContext(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
		}
	}

	handler := server.NewHandler(server.Config{
		Searcher:     searcher,
		Engine:       engine,
		Layout:       layout,
		Aggregator:   aggregator,
		Collector:    collector,
		Store:        snapshotStore,
		Metrics:      m,
		ObserveLocal: !cfg.Kafka.Enabled,
	})

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("GET /healthz", checker.LiveHandler())
	mux.HandleFunc("GET /readyz", checker.ReadyHandler())
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	chain := middleware.RequestID(
		middleware.Metrics(m)(
			middleware.Timeout(cfg.Server.WriteTimeout)(mux)))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// ensureIndex triggers a rebuild when no completed build exists, so a fresh
// deployment or an aborted build self-heals at startup.
func ensureIndex(ctx context.Context, layout artifacts.Layout, cfg *config.Config, m *metrics.Metrics, log *slog.Logger) error {
	status, err := layout.LoadStatus()
	if err != nil {
		return fmt.Errorf("loading build status: %w", err)
	}
	if status.Completed {
		log.Info("using existing index", "last_run", status.LastRun)
		return nil
	}
	log.Info("no completed index found, building", "corpus", cfg.Corpus.Dir)
	start := time.Now()
	report, err := build.Run(ctx, layout, cfg.Corpus.Dir, build.Options{
		OffloadThreshold: cfg.Index.OffloadThreshold,
		Workers:          cfg.Index.Workers,
		Metrics:          m,
	})
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	log.Info("startup build finished",
		"documents", report.Documents,
		"unique_terms", report.UniqueTerms,
		"took", time.Since(start))
	return nil
}
