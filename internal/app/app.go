package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-wizard/internal/config"
	"github.com/kirinyoku/tix-wizard/internal/events"
	"github.com/kirinyoku/tix-wizard/internal/export"
	"github.com/kirinyoku/tix-wizard/internal/metrics"
	"github.com/kirinyoku/tix-wizard/internal/postgres"
	"github.com/kirinyoku/tix-wizard/internal/redis"
	postgresrepo "github.com/kirinyoku/tix-wizard/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tix-wizard/internal/repository/redis"
	"github.com/kirinyoku/tix-wizard/internal/service/session"
	"github.com/kirinyoku/tix-wizard/internal/storage"
	httpgin "github.com/kirinyoku/tix-wizard/internal/transport/http/gin"
	"github.com/kirinyoku/tix-wizard/internal/upload"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	sessions   *session.Service
	closers    []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	m := metrics.New()

	sessionDeps := session.Deps{
		Backend: storage.NewMemory(),
		Bus:     events.NewLocal(),
		Logger:  logger,
		Metrics: m,
	}

	routerDeps := httpgin.RouterDeps{
		Metrics:       m,
		Logger:        logger,
		MaxPhotoBytes: cfg.Upload.MaxBytes,
		SessionTTL:    cfg.Session.TTL,
	}

	var renderCache export.Cache

	// Initialize storage backend
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		sessionDeps.Backend = redisrepo.NewStorage(rdb, cfg.Session.TTL)
		a.wireRedisExtras(rdb, &sessionDeps, &routerDeps, &renderCache)

	case config.BackendPostgres:
		pool, err := postgres.New(ctx, postgres.Config{DSN: cfg.Postgres.DSN()})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return nil, fmt.Errorf("failed to prepare schema: %w", err)
		}

		pg := newPostgresBackend(pool, cfg.Session.TTL, m)
		sessionDeps.Backend = pg
		sessionDeps.Purge = pg.Purge

		// Redis is optional next to Postgres.
		if cfg.Redis.Addr != "" {
			rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			if err != nil {
				logger.Warn("redis unavailable, running without cache and rate limits", "error", err)
			} else {
				a.closers = append(a.closers, func() { _ = rdb.Close() })
				a.wireRedisExtras(rdb, &sessionDeps, &routerDeps, &renderCache)
			}
		}
	}

	// Initialize upload gateway and ticket exporter
	sessionDeps.Uploader = upload.Prepared(newGateway(cfg.Upload), cfg.Upload.MaxBytes)

	renderer := export.NewImageRenderer(
		export.EventInfo{Name: cfg.Event.Name, Location: cfg.Event.Location, Date: cfg.Event.Date},
		export.NewHTTPFetcher(nil, cfg.Upload.MaxBytes),
		2,
	)
	sessionDeps.Exporter = export.NewExporter(renderer, renderCache)

	// Initialize sessions
	a.sessions = session.New(sessionDeps, session.Config{IdleTTL: cfg.Session.IdleTTL})
	routerDeps.Sessions = a.sessions

	// Initialize Gin router
	router := httpgin.NewRouter(routerDeps)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("application initialized",
		"storage", cfg.Storage.Backend,
		"upload", cfg.Upload.Provider,
	)

	return a, nil
}

// wireRedisExtras plugs the Redis-backed cache, idempotency store, rate
// limiter and cross-instance bus.
func (a *App) wireRedisExtras(
	rdb *goredis.Client,
	sessionDeps *session.Deps,
	routerDeps *httpgin.RouterDeps,
	renderCache *export.Cache,
) {
	*renderCache = redisrepo.NewRenderCache(redisrepo.New(rdb), time.Hour)
	sessionDeps.Bus = redisrepo.NewEventsPubSub(rdb)
	routerDeps.Idem = redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)
	if a.cfg.Upload.RateLimit > 0 {
		routerDeps.Limiter = redisrepo.NewSlidingWindowLimiter(rdb, storage.KeyRateLimit("photo"), a.cfg.Upload.RateLimit, time.Minute)
	}
}

func newPostgresBackend(pool *pgxpool.Pool, ttl time.Duration, m *metrics.Metrics) *postgresrepo.Storage {
	return postgresrepo.NewStorage(postgres.NewStore(pool), ttl, func(_ context.Context, keys int) {
		m.SlotsWritten(keys)
	})
}

func newGateway(cfg config.UploadConfig) upload.Gateway {
	switch cfg.Provider {
	case config.ProviderS3:
		return upload.NewS3(upload.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
		})
	default:
		return upload.NewCloudinary(upload.CloudinaryConfig{
			CloudName:    cfg.Cloudinary.CloudName,
			UploadPreset: cfg.Cloudinary.UploadPreset,
			APIBase:      cfg.Cloudinary.APIBase,
		}, nil)
	}
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i]()
		}
	}()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Evict idle sessions and purge expired slots
	g.Go(func() error {
		return a.sessions.Run(gCtx)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
