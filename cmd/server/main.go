// cmd/server/main.go
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

	"github.com/jason-s-yu/mindmeld/internal/cache"
	"github.com/jason-s-yu/mindmeld/internal/config"
	"github.com/jason-s-yu/mindmeld/internal/database"
	"github.com/jason-s-yu/mindmeld/internal/handlers"
	"github.com/jason-s-yu/mindmeld/internal/room"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("state store: %v", err)
	}
	defer closeStore()

	rs := handlers.NewRoomServer(room.NewRegistry(store, logger), logger)
	rs.WriteTimeout = cfg.WriteTimeout
	rs.SendBuffer = cfg.SendBuffer
	rs.MessageRate = rate.Limit(cfg.MessageRate)
	rs.MessageBurst = cfg.MessageBurst
	rs.OriginPatterns = cfg.AllowedOrigins

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.NewRouter(rs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s (state backend: %s)", srv.Addr, cfg.StateBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("%v", err)
		closeStore()
		os.Exit(1)
	}
}

// openStore connects the configured state backend and returns a func that
// releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (room.StateStore, func(), error) {
	switch cfg.StateBackend {
	case config.BackendRedis:
		rdb, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("Room state in Redis at %s (db %d)", cfg.RedisAddr, cfg.RedisDB)
		return cache.NewRoomStateStore(rdb, cfg.RedisKeyPrefix), func() { rdb.Close() }, nil

	case config.BackendPostgres:
		pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := database.NewRoomStateStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Room state in Postgres")
		return store, pool.Close, nil

	default:
		logger.Warn("Room state is in memory only and will be lost on restart")
		return room.NewMemoryStore(), func() {}, nil
	}
}
