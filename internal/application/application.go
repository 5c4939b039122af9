// Package application wires the storefront process: connectors, services
// and every long-running module in one errgroup.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"storefront/internal/config"
	"storefront/internal/domain/service/cart"
	"storefront/internal/domain/service/stats"
	"storefront/internal/infrastructure/cache"
	"storefront/internal/infrastructure/notifier"
	"storefront/internal/infrastructure/persistence"
	"storefront/internal/server"
	"storefront/internal/worker"
	"storefront/pkg/application/connectors"
	"storefront/pkg/application/modules"
	"storefront/pkg/contextx"
	"storefront/pkg/logx"
	"storefront/pkg/middlewarex"
	"storefront/pkg/probe"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

func Run(ctx context.Context, cfg config.Config) error { //nolint:funlen
	g, ctx := errgroup.WithContext(ctx)

	registry := modules.NewMetricRegistry()

	pg := &connectors.Postgres{
		DSN:             cfg.Postgres.DSN,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	}
	db := pg.Client(ctx)
	defer pg.Close(context.WithoutCancel(ctx))

	checks := []probe.Check{{Name: "postgres", Probe: pg.Ping}}

	var store cache.Store

	if cfg.Redis.Enabled() {
		rc := &connectors.Redis{
			Username:           cfg.Redis.Username,
			Password:           cfg.Redis.Password,
			Address:            cfg.Redis.Address,
			DatabaseNumber:     cfg.Redis.DatabaseNumber,
			PoolSize:           cfg.Redis.PoolSize,
			MinIdleConnections: cfg.Redis.MinIdleConnections,
			MaxIdleConnections: cfg.Redis.MaxIdleConnections,
			MaxRetries:         cfg.Redis.MaxRetries,
			MinRetryBackoff:    cfg.Redis.MinRetryBackoff,
			MaxRetryBackoff:    cfg.Redis.MaxRetryBackoff,
			DialTimeout:        cfg.Redis.DialTimeout,
		}
		defer rc.Close(context.WithoutCancel(ctx))

		redisStore := cache.NewRedisStore(rc.Client(ctx))
		store = redisStore

		// The cache is optional, so redis never fails readiness.
		checks = append(checks, probe.Check{Name: "redis", Optional: true, Probe: redisStore.Probe})

		g.Go(func() error {
			return redisStore.Watch(ctx, cfg.Cache.WatchInterval)
		})
	} else {
		logger(ctx).Warn("REDIS_ADDRESS is empty, using in-process cache")

		store = cache.NewMemoryStore()
	}

	cacheService := cache.NewService(store,
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithMetrics(cache.NewMetrics(registry)),
	)

	products := persistence.NewProductRepository(db)
	soldCounts := persistence.NewSoldCountRepository(db)

	viewService := stats.NewViewService(soldCounts, worker.NewRefreshMetrics(registry))
	statsService := stats.NewService(products, soldCounts, soldCounts, cacheService, stats.Config{
		TTL:              cfg.Stats.TTL,
		BatchConcurrency: cfg.Stats.BatchConcurrency,
		Source:           stats.Source(cfg.Stats.Source),
	})
	cartService := cart.NewService(persistence.NewCartRepository(db), products, cfg.Cart.MaxQuantity)

	alerts := notifier.NewQueue(cfg.Alert.QueueSize)

	sink, err := alertSink(cfg.Alert)
	if err != nil {
		return err
	}

	g.Go(func() error {
		return alerts.Run(ctx, sink)
	})

	refresher := worker.NewSoldCountRefresher(viewService, alerts, cfg.Refresh.Schedule, cfg.Refresh.RunOnStart)
	g.Go(func() error {
		return refresher.Run(ctx)
	})

	if cfg.Redis.Enabled() {
		modules.AsynqServer{
			RedisUsername:   cfg.Redis.Username,
			RedisPassword:   cfg.Redis.Password,
			RedisAddress:    cfg.Redis.Address,
			RedisDB:         cfg.Redis.DatabaseNumber,
			Concurrency:     cfg.Asynq.Concurrency,
			ShutdownTimeout: cfg.Asynq.ShutdownTimeout,
		}.Run(ctx, g,
			modules.AsynqQueues{cfg.Asynq.Queue: 1},
			modules.AsynqHandler{
				Pattern: worker.TaskOrderStateChanged,
				Handle:  worker.NewOrderEventHandler(statsService).ProcessTask,
			},
		)
	}

	srv := server.NewServer(
		server.NewProductServer(statsService, viewService),
		server.NewCartServer(cartService),
		persistence.NewSessionRepository(db),
	)

	modules.HTTPServer{
		ListenAddress:     cfg.HTTP.ListenAddress,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		ShutdownTimeout:   cfg.HTTP.ShutdownTimeout,
	}.Run(ctx, g, newRouter(srv, cfg.HTTP))

	modules.ProbeServer{
		Name:          cfg.App.Name,
		Version:       cfg.App.Version,
		ListenAddress: cfg.App.ProbeAddress,
		Checks:        checks,
	}.Run(ctx, g)

	modules.MetricServer{
		ListenAddress: cfg.App.MetricsAddress,
		Registry:      registry,
	}.Run(ctx, g)

	logger(ctx).Info("application started",
		slog.String(logx.FieldAppName, cfg.App.Name),
		slog.String(logx.FieldAppVersion, cfg.App.Version),
	)

	if err = g.Wait(); err != nil {
		return fmt.Errorf("errgroup.Wait: %w", err)
	}

	return nil
}

func newRouter(srv server.Server, cfg config.HTTP) http.Handler {
	access := middlewarex.AccessLog{
		Masker:         logx.NewSensitiveDataMasker(),
		LogFieldMaxLen: cfg.LogFieldMaxLen,
	}

	r := chi.NewRouter()
	r.Use(
		middlewarex.TraceID,
		middlewarex.Logger,
		middlewarex.Recovery,
		access.Requests,
		access.Responses,
	)

	srv.RegisterRoutes(r)

	return r
}

func alertSink(cfg config.Alert) (notifier.Sink, error) {
	if !cfg.Enabled() {
		return notifier.LogSink{}, nil
	}

	bot, err := notifier.NewTelegramBot(cfg.BotToken, cfg.ChatID)
	if err != nil {
		return nil, fmt.Errorf("notifier.NewTelegramBot: %w", err)
	}

	return bot, nil
}
