package main

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

	"github.com/gin-gonic/gin"
	"github.com/jobboard/backend/internal/cache"
	"github.com/jobboard/backend/internal/config"
	"github.com/jobboard/backend/internal/db"
	"github.com/jobboard/backend/internal/handler"
	"github.com/jobboard/backend/internal/lib/logger"
	"github.com/jobboard/backend/internal/lib/sl"
	"github.com/jobboard/backend/internal/service"
)

const startupTimeout = 15 * time.Second

type storage interface {
	service.Store
	Close(ctx context.Context) error
}

// @title Job Board API
// @version 1.0
// @description Authentication and account API for the job board backend.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Env, os.Stdout)
	if err != nil {
		return err
	}
	if cfg.Env != logger.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("starting job board backend",
		slog.String("env", cfg.Env),
		slog.String("storage", cfg.Storage.Driver),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	store, err := openStorage(startCtx, cfg)
	if err != nil {
		return err
	}
	defer closeWithTimeout(log, "storage", store.Close)

	rdb, err := cache.NewRedisClient(startCtx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("failed to close redis", sl.Err(err))
		}
	}()

	// nil disables the refresh lock
	var locker service.Locker
	if cfg.Auth.RefreshLock {
		locker = cache.NewLocker(rdb, cfg.Redis.KeyPrefix)
	}

	authSvc, err := service.NewAuthService(
		log,
		store,
		cache.NewBlacklist(rdb, cfg.Redis.KeyPrefix),
		locker,
		cfg.Auth,
	)
	if err != nil {
		return err
	}

	router, err := handler.NewRouter(log, authSvc, cfg.HTTP, cfg.CORS)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func openStorage(ctx context.Context, cfg config.Config) (storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMongo:
		return db.NewMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	case config.DriverPostgres:
		return db.NewPostgres(ctx, cfg.Postgres)
	case config.DriverMemory:
		return db.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func closeWithTimeout(log *slog.Logger, name string, closeFn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := closeFn(ctx); err != nil {
		log.Warn("failed to close "+name, sl.Err(err))
	}
}
