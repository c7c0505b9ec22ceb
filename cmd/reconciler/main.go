package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/poddle/compute/internal/cache"
	"github.com/poddle/compute/internal/cluster"
	"github.com/poddle/compute/internal/config"
	"github.com/poddle/compute/internal/db"
	"github.com/poddle/compute/internal/reconciler"
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

	dbConn, err := db.Connect(&db.Config{
		Host: cfg.Database.Host, Port: cfg.Database.Port, User: cfg.Database.User,
		Password: cfg.Database.Password, DBName: cfg.Database.DBName, SSLMode: cfg.Database.SSLMode,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	repo := db.NewRepository(dbConn)

	rdb, err := cache.NewClient(&cache.Config{
		Host: cfg.Cache.Host, Port: cfg.Cache.Port, Password: cfg.Cache.Password, DB: cfg.Cache.DB,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to cache", zap.Error(err))
	}
	mc := cache.New(rdb, cfg.Scraper.SnapshotsToKeep)

	clusterCfg := cluster.Config{
		KubeconfigPath: cfg.Cluster.ConfigPath,
		InCluster:      cfg.Cluster.InCluster,
		LabelSelector:  cfg.Cluster.LabelSelector,
	}
	restCfg, err := cluster.LoadRestConfig(clusterCfg)
	if err != nil {
		logger.Fatal("failed to load cluster config", zap.Error(err))
	}
	clientset, dyn, err := cluster.NewClients(restCfg)
	if err != nil {
		logger.Fatal("failed to build cluster clients", zap.Error(err))
	}
	gw := cluster.New(clientset, dyn, clusterCfg, logger)

	interval := time.Duration(cfg.Reconciler.ReconciliationIntervalSeconds) * time.Second
	r := reconciler.New(gw, repo, mc, interval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("reconciler started", zap.Duration("reconciliation_interval", interval))
	if err := r.Run(ctx); err != nil {
		logger.Error("reconciler exited with error", zap.Error(err))
	}
	logger.Info("reconciler shut down")
}
