package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/config"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
	httpserver "github.com/Clark-Hu/movie-ratings/internal/http"
	"github.com/Clark-Hu/movie-ratings/internal/lock"
	"github.com/Clark-Hu/movie-ratings/internal/logging"
	"github.com/Clark-Hu/movie-ratings/internal/memstore"
	"github.com/Clark-Hu/movie-ratings/internal/mongostore"
	"github.com/Clark-Hu/movie-ratings/internal/natsconn"
	"github.com/Clark-Hu/movie-ratings/internal/rating"
	"github.com/Clark-Hu/movie-ratings/internal/reconcile"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/store"
	"github.com/Clark-Hu/movie-ratings/internal/tracing"
)

// backend bundles whichever storage driver is configured.
type backend struct {
	ratings rating.Store
	movies  rating.Movies
	lister  reconcile.Lister
	catalog httpserver.MovieCatalog
	health  httpserver.HealthChecker
	close   func()
}

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
	logger = logger.With(zap.String("service", cfg.ServiceName))
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	locker, closeLocker, err := openLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	queue, closeQueue, err := openQueue(cfg, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	svc := rating.NewService(rating.Options{
		Store:              be.ratings,
		Movies:             be.movies,
		Locker:             locker,
		Reporter:           &reconcile.Dispatcher{Queue: queue, Logger: logger.Named("reconcile")},
		Logger:             logger,
		ProjectionAttempts: cfg.ProjectionAttempts,
	})

	worker := &reconcile.Worker{
		Queue:         queue,
		Reconciler:    svc,
		Lister:        be.lister,
		Logger:        logger.Named("reconcile"),
		SweepInterval: time.Duration(cfg.ReconcileSweepSecs) * time.Second,
		Concurrency:   cfg.ReconcileConcurrency,
	}
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(ctx); err != nil {
			logger.Error("reconcile worker stopped", zap.Error(err))
		}
	}()

	server := httpserver.New(cfg, httpserver.Deps{
		Ratings: svc,
		Catalog: be.catalog,
		Health:  be.health,
	}, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	var serveErr error
	select {
	case serveErr = <-serverErrCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}
	if serveErr == nil {
		<-workerDone
	}
	logger.Info("server stopped")
	return serveErr
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		st, err := store.New(connectCtx, cfg.DBURL, store.Options{
			MaxConns:               int32(cfg.DBMaxConns),
			MinConns:               int32(cfg.DBMinConns),
			MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
			MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
			ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
			StatementCacheCapacity: cfg.DBStatementCache,
			Logger:                 logger,
		})
		if err != nil {
			return backend{}, fmt.Errorf("connect database: %w", err)
		}
		repo := repository.New(st)
		return backend{
			ratings: repo.Ratings,
			movies:  repo.Movies,
			lister:  repo.Movies,
			catalog: repo.Movies,
			health:  st,
			close: func() {
				st.LogStats()
				st.Close()
			},
		}, nil

	case config.DriverMongo:
		ms, err := mongostore.Open(connectCtx, cfg.MongoURI, cfg.MongoDB, logger.Named("mongo"))
		if err != nil {
			return backend{}, err
		}
		return backend{
			ratings: ms,
			movies:  ms,
			lister:  ms,
			catalog: ms,
			health:  ms,
			close: func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = ms.Close(closeCtx)
			},
		}, nil

	default:
		ms := memstore.New()
		for _, title := range []string{"The Shawshank Redemption", "Spirited Away", "Seven Samurai"} {
			movie := ms.AddMovie(domain.Movie{Title: title, Slug: repository.Slugify(title)})
			logger.Info("seeded in-memory movie", zap.String("movie_id", movie.ID), zap.String("title", title))
		}
		logger.Warn("using in-memory store; votes are lost on restart")
		return backend{
			ratings: ms,
			movies:  ms,
			lister:  ms,
			health:  ms,
			close:   func() {},
		}, nil
	}
}

func openLocker(ctx context.Context, cfg config.Config, logger *zap.Logger) (rating.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("using in-process movie locks")
		return lock.NewStriped(256), func() {}, nil
	}
	rl, err := lock.NewRedis(ctx, lock.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		TTL:      time.Duration(cfg.LockTTLMillis) * time.Millisecond,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis lock: %w", err)
	}
	logger.Info("using redis movie locks", zap.String("addr", cfg.RedisAddr))
	return rl, func() { _ = rl.Close() }, nil
}

func openQueue(cfg config.Config, logger *zap.Logger) (reconcile.Queue, func(), error) {
	if cfg.NATSURL == "" {
		q := reconcile.NewLocalQueue(cfg.ReconcileQueueSize)
		return q, func() { _ = q.Close() }, nil
	}
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName, Logger: logger.Named("nats")})
	if err != nil {
		return nil, nil, err
	}
	q, err := reconcile.NewNATSQueue(nc, reconcile.DefaultSubject, reconcile.DefaultQueueGroup, cfg.ReconcileQueueSize, logger.Named("nats"))
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	logger.Info("reconcile requests over nats", zap.String("subject", reconcile.DefaultSubject))
	return q, func() {
		_ = q.Close()
		nc.Close()
	}, nil
}
