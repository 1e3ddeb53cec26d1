// cmd/archiver copies room snapshots from Redis into Postgres so finished
// games outlive the cache.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/mindmeld/internal/archive"
	"github.com/jason-s-yu/mindmeld/internal/cache"
	"github.com/jason-s-yu/mindmeld/internal/config"
	"github.com/jason-s-yu/mindmeld/internal/database"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.Level())
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	sink := database.NewRoomStateStore(pool)
	if err := sink.EnsureSchema(ctx); err != nil {
		logger.Fatalf("postgres: %v", err)
	}

	src := cache.NewRoomStateStore(rdb, cfg.RedisKeyPrefix)
	arch := archive.New(src, sink, cfg.ArchiveInterval, cfg.ArchiveBatchSize, logger)
	if err := arch.Run(ctx); err != nil {
		logger.Errorf("archiver: %v", err)
		os.Exit(1)
	}
}
