package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/recipe-box/internal/auth"
	"github.com/iliyamo/recipe-box/internal/config"
	"github.com/iliyamo/recipe-box/internal/database"
	"github.com/iliyamo/recipe-box/internal/handler"
	"github.com/iliyamo/recipe-box/internal/logging"
	"github.com/iliyamo/recipe-box/internal/middleware"
	"github.com/iliyamo/recipe-box/internal/queue"
	"github.com/iliyamo/recipe-box/internal/repository"
	"github.com/iliyamo/recipe-box/internal/router"
	"github.com/iliyamo/recipe-box/internal/service"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.New(logging.Config{
		Service: "recipe-box",
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.DBMigrate {
		if err := database.Migrate(database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	// Without Redis rate limiting uses in-process buckets; the redis
	// revocation backend refuses to start.
	rdb, err := config.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable; using in-process fallbacks", "addr", cfg.Redis.Addr, "error", err)
	} else {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	revoked, closeRevoked, err := revocationStore(cfg, logger, db, rdb)
	if err != nil {
		return err
	}
	defer closeRevoked()

	var opts []auth.Option
	if cfg.AuditEventsEnabled {
		pub := service.NewEventPublisher(cfg.AMQPURL, logger)
		defer pub.Close()
		opts = append(opts, auth.WithEvents(pub))
	}
	if cfg.AuditConsumerEnabled {
		consumer := queue.NewAuditConsumer(cfg.AMQPURL, cfg.AuditLogDir, logger)
		go func() { _ = consumer.Run(ctx) }()
	}

	svc, err := auth.NewService(auth.Config{
		Secret:            cfg.JWTSecret,
		Algorithm:         cfg.JWTAlgorithm,
		Issuer:            cfg.JWTIssuer,
		AccessTTL:         cfg.AccessTTL(),
		RefreshTTL:        cfg.RefreshTTL(),
		BcryptCost:        cfg.BcryptCost,
		MaxFailedAttempts: cfg.LoginMaxFailedAttempts,
		LockoutDuration:   cfg.LoginLockoutDuration,
	}, users, revoked, opts...)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.Recover())

	checks := map[string]handler.Check{"mysql": db.PingContext}
	var limit echo.MiddlewareFunc
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		limit = middleware.NewTokenBucket(cfg.RateLimit, rdb)
	} else {
		limit = middleware.NewTokenBucket(cfg.RateLimit, nil)
	}

	router.RegisterRoutes(e, handler.NewReadinessHandler(checks))
	router.RegisterAuth(e, handler.NewAuthHandler(svc, users), svc, limit)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "revocation", cfg.RevocationBackend)
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace", cfg.ShutdownGracePeriod)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// errRedisRequired is returned when the redis revocation backend is
// configured but no Redis client is available.
var errRedisRequired = errors.New("revocation backend redis: redis is unreachable")

// revocationStore builds the configured registry and returns a func that
// stops its background work. Only REVOCATION_BACKEND=memory yields a
// process-local store.
func revocationStore(cfg config.Config, logger *slog.Logger, db *sql.DB, rdb *redis.Client) (auth.RevocationStore, func(), error) {
	switch cfg.RevocationBackend {
	case config.RevocationRedis:
		if rdb == nil {
			return nil, nil, errRedisRequired
		}
		return repository.NewRedisRevocationStore(rdb, cfg.Redis.Prefix), func() {}, nil
	case config.RevocationMySQL:
		tokens := repository.NewTokenRepo(db)
		hk := service.NewHousekeeping(tokens, logger, cfg.RevocationSweepInterval)
		hk.Start()
		return tokens, hk.Stop, nil
	case config.RevocationMemory:
		logger.Warn("revocations are process-local; do not run more than one replica")
		mem := auth.NewMemoryRevocationStore(cfg.RevocationSweepInterval)
		return mem, func() { _ = mem.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown revocation backend %q", cfg.RevocationBackend)
}
