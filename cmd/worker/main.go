package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/bryanwahyu/geoanalysis/internal/bootstrap"
	"github.com/bryanwahyu/geoanalysis/internal/config"
	"github.com/bryanwahyu/geoanalysis/internal/logging"
)

// worker consumes the Redis job list and runs analyses. Only used with
// worker.mode redis; in memory mode the API process runs its own workers.
func main() {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.Worker.Mode != config.QueueRedis {
		log.Fatalf("worker needs worker.mode %q, got %q", config.QueueRedis, cfg.Worker.Mode)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init", zap.Error(err))
	}
	defer app.Close()

	logger.Info("worker started", zap.Int("count", cfg.Worker.Count), zap.String("database", cfg.Database.Driver))

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Count; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := app.RedisQueue.Work(ctx, n, app.Tasks.Handle); err != nil {
				logger.Error("worker stopped", zap.Int("worker", n), zap.Error(err))
			}
		}(i)
	}

	<-ctx.Done()
	logger.Info("shutting down workers...")
	// BRPOP berhenti saat ctx cancel, job yang sedang jalan diselesaikan dulu
	wg.Wait()
}
