package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/cache"
	"github.com/Clark-Hu/movie-ratings/internal/config"
	"github.com/Clark-Hu/movie-ratings/internal/content"
	httpserver "github.com/Clark-Hu/movie-ratings/internal/http"
	"github.com/Clark-Hu/movie-ratings/internal/logging"
	"github.com/Clark-Hu/movie-ratings/internal/obs"
	"github.com/Clark-Hu/movie-ratings/internal/ratings"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/store"
)

const (
	sweepInterval = time.Minute
	retryInterval = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", cfg.ServiceName))

	shutdownTracer, err := obs.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("init tracer", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		HealthCheckPeriod:      time.Duration(cfg.DBHealthCheckSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer func() {
		if stat := st.Stats(); stat != nil {
			logger.Info("pool stats at shutdown",
				zap.Int32("total_conns", stat.TotalConns()),
				zap.Int64("acquire_count", stat.AcquireCount()),
			)
		}
		st.Close()
	}()

	backend, closeCache, err := buildCacheBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init cache", zap.Error(err))
	}
	defer closeCache()

	repo := repository.New(st)
	cacheTTL := time.Duration(cfg.CacheTTLSecs) * time.Second
	aggregates := cache.NewAggregateCache(backend, cacheTTL)
	go retryInvalidations(ctx, aggregates, logger)
	service := ratings.NewService(repo.Ratings, aggregates, ratings.Options{
		CacheTTL: cacheTTL,
		Logger:   logger,
	})

	var contentClient content.Client
	if cfg.ContentURL != "" {
		client, err := content.NewHTTPClient(cfg.ContentURL, cfg.ContentAPIKey, time.Duration(cfg.ContentTimeoutSecs)*time.Second, logger)
		if err != nil {
			logger.Fatal("init content client", zap.Error(err))
		}
		contentClient = client
	}

	server := httpserver.New(cfg, httpserver.Dependencies{
		Ratings: service,
		Lister:  repo.Ratings,
		Content: contentClient,
		Health:  st,
		Logger:  logger,
	})

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			logger.Error("server error", zap.Error(err))
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}
}

// buildCacheBackend selects the aggregate cache backend named by CACHE_BACKEND.
func buildCacheBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.Backend, func(), error) {
	switch cfg.CacheBackend {
	case config.CacheNone:
		logger.Info("aggregate cache disabled")
		return cache.NopBackend{}, func() {}, nil

	case config.CacheRedis:
		client, err := cache.DialRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		rb := cache.NewRedisBackend(client, "")
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rb.Ping(pingCtx); err != nil {
			// Reads fall back to the database until redis answers.
			logger.Warn("redis not reachable at startup", zap.Error(err))
		}
		settings := cache.BreakerSettings("aggregate-cache-redis", cfg.CBMaxFailures, time.Duration(cfg.CBOpenSecs)*time.Second, logger)
		logger.Info("aggregate cache backed by redis")
		return cache.NewBreakerBackend(rb, settings), func() { _ = rb.Close() }, nil

	default:
		mb := cache.NewMemoryBackend()
		sweepCtx, stopSweep := context.WithCancel(ctx)
		go sweep(sweepCtx, mb, logger)

		if cfg.NATSURL == "" {
			logger.Info("aggregate cache in memory")
			return mb, stopSweep, nil
		}
		nc, err := cache.DialNATS(cfg.NATSURL, -1, 2*time.Second)
		if err != nil {
			stopSweep()
			return nil, nil, err
		}
		bc, err := cache.AttachNATS(mb, nc, cfg.NATSSubject, logger)
		if err != nil {
			stopSweep()
			nc.Close()
			return nil, nil, err
		}
		logger.Info("aggregate cache in memory with nats invalidation", zap.String("subject", cfg.NATSSubject))
		return mb, func() {
			stopSweep()
			_ = bc.Close()
			nc.Close()
		}, nil
	}
}

func sweep(ctx context.Context, mb *cache.MemoryBackend, logger *zap.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mb.Sweep(); n > 0 {
				logger.Debug("swept expired aggregates", zap.Int("count", n))
			}
		}
	}
}

// retryInvalidations re-bumps tags whose invalidation failed until the backend accepts them.
func retryInvalidations(ctx context.Context, aggregates *cache.AggregateCache, logger *zap.Logger) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if aggregates.Pending() == 0 {
				continue
			}
			if left := aggregates.RetryPending(ctx); left > 0 {
				logger.Warn("aggregate invalidations still pending", zap.Int("count", left))
			}
		}
	}
}
