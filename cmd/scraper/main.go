package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/poddle/compute/internal/cache"
	"github.com/poddle/compute/internal/config"
	"github.com/poddle/compute/internal/scraper"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	rdb, err := cache.NewClient(&cache.Config{
		Host: cfg.Cache.Host, Port: cfg.Cache.Port, Password: cfg.Cache.Password, DB: cfg.Cache.DB,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to cache", zap.Error(err))
	}
	mc := cache.New(rdb, cfg.Scraper.SnapshotsToKeep)

	prom, err := scraper.NewPrometheusClient(cfg.Prometheus.Address)
	if err != nil {
		logger.Fatal("failed to build prometheus client", zap.Error(err))
	}

	interval := time.Duration(cfg.Scraper.ScrapeIntervalSeconds) * time.Second
	timeout := interval
	if cfg.Prometheus.Timeout > 0 {
		timeout = time.Duration(cfg.Prometheus.Timeout) * time.Second
	}

	s := scraper.New(prom, mc, cfg.Prometheus.RateWindow, interval, timeout, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("scraper started", zap.Duration("scrape_interval", interval))
	if err := s.Run(ctx); err != nil {
		logger.Error("scraper exited with error", zap.Error(err))
	}
	logger.Info("scraper shut down")
}
