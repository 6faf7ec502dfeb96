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

	"github.com/bryanwahyu/geoanalysis/internal/bootstrap"
	"github.com/bryanwahyu/geoanalysis/internal/config"
	"github.com/bryanwahyu/geoanalysis/internal/infra/httpserver"
	"github.com/bryanwahyu/geoanalysis/internal/logging"
	"github.com/bryanwahyu/geoanalysis/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
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

	// mode memory: worker jalan di proses API
	if app.MemQueue != nil {
		app.MemQueue.Start(context.Background(), cfg.Worker.Count, app.Tasks.Handle)
		logger.Info("in-process workers started", zap.Int("count", cfg.Worker.Count))
	}

	deps := httpserver.Deps{
		Datasets:    app.Datasets,
		Analyses:    app.Analyses,
		Tasks:       app.Tasks,
		Insight:     app.Insight,
		APIKeys:     cfg.Auth.APIKeys,
		CORSOrigins: cfg.Server.CORSOrigins,
		Observer:    app.Metrics,
		Metrics:     app.Metrics.Handler(),
		Health:      app.Health(),
		Log:         logger.Named("http"),
	}
	if cfg.Server.RateLimit > 0 {
		deps.Limiter = middleware.NewRateLimiter(cfg.Server.RateBurst, cfg.Server.RateLimit)
	}
	if len(cfg.Auth.APIKeys) == 0 {
		logger.Warn("auth disabled: no api keys configured")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpserver.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("database", cfg.Database.Driver),
			zap.String("queue", cfg.Worker.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	if app.MemQueue != nil {
		// tunggu job yang sudah di-queue selesai
		app.MemQueue.Stop()
	}
}
