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

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"salonpos/backend/internal/cache"
	"salonpos/backend/internal/config"
	"salonpos/backend/internal/httpapi"
	"salonpos/backend/internal/ledger"
	"salonpos/backend/internal/lock"
	"salonpos/backend/internal/notify"
	"salonpos/backend/internal/recurring"
	"salonpos/backend/internal/revenue"
	"salonpos/backend/internal/service"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/store/memory"
	pgstore "salonpos/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatalf("invalid security configuration: %v", err)
	}
	location, err := cfg.Location()
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatalf("apply schema: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	var catalog cache.CatalogCache = cache.NewMemoryCache()
	var locker lock.Locker = lock.NoopLocker{}
	notifier := notify.Multi{notify.NewLogNotifier(logger)}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unavailable, using in-process cache and no batch lock")
			_ = client.Close()
		} else {
			catalog = cache.NewRedisCache(client)
			locker = lock.NewRedisLocker(client)
			notifier = append(notifier, notify.NewRedisNotifier(client, cfg.NotifyChannel))
			closers = append(closers, client.Close)
			logger.Info("cache, lock and notifications: redis")
		}
	} else {
		logger.Info("cache: in-process")
	}

	svc := service.New(repo, revenue.NewStorePoster(repo), service.Options{
		Cache:             catalog,
		CacheTTL:          cfg.CatalogCacheTTL,
		DefaultLocationID: cfg.DefaultLocationID,
		Logger:            logger,
	})
	runs := ledger.New(repo, cfg.BatchStaleAfter, logger)
	scheduler := recurring.NewScheduler(repo, recurring.NewStoreGenerator(repo), runs, locker, notifier, location, logger)
	configs := recurring.NewConfigService(repo, logger)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL)
	cron, err := httpapi.NewCronGuard(cfg.CronSecret)
	if err != nil {
		logger.Fatalf("cron guard: %v", err)
	}
	api := httpapi.New(svc, configs, scheduler, auth, cron, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// the batch trigger runs inside the request
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("salon backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Warn("close error")
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.CronSecret) < 32 {
		return fmt.Errorf("CRON_SECRET must be set and at least 32 characters")
	}
	if cfg.CronSecret == cfg.AuthSecret {
		return fmt.Errorf("CRON_SECRET must differ from AUTH_SECRET")
	}
	return nil
}
