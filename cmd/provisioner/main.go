package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/poddle/compute/internal/cache"
	"github.com/poddle/compute/internal/cluster"
	"github.com/poddle/compute/internal/config"
	"github.com/poddle/compute/internal/db"
	"github.com/poddle/compute/internal/provisioner"
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
	if err := db.Migrate(dbConn); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}
	repo := db.NewRepository(dbConn)

	rdb, err := cache.NewClient(&cache.Config{
		Host: cfg.Cache.Host, Port: cfg.Cache.Port, Password: cfg.Cache.Password, DB: cfg.Cache.DB,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to cache", zap.Error(err))
	}
	mc := cache.New(rdb, cfg.Scraper.SnapshotsToKeep)

	clusterCfg := clusterConfig(cfg)
	restCfg, err := cluster.LoadRestConfig(clusterCfg)
	if err != nil {
		logger.Fatal("failed to load cluster config", zap.Error(err))
	}
	clientset, dyn, err := cluster.NewClients(restCfg)
	if err != nil {
		logger.Fatal("failed to build cluster clients", zap.Error(err))
	}
	gw := cluster.New(clientset, dyn, clusterCfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gw.Preflight(ctx); err != nil {
		logger.Fatal("preflight checks failed", zap.Error(err))
	}

	secrets := provisioner.NewVaultKVStore(cfg.SecretStore.Address, cfg.SecretStore.Token, cfg.Cluster.VaultKVMount)

	p, err := provisioner.New(cfg.Broker.URL, repo, mc, gw, secrets, logger)
	if err != nil {
		logger.Fatal("failed to start provisioner", zap.Error(err))
	}
	defer p.Close()

	logger.Info("provisioner started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	if err := g.Wait(); err != nil {
		logger.Error("provisioner exited with error", zap.Error(err))
	}

	logger.Info("provisioner shut down")
}

func clusterConfig(cfg *config.Config) cluster.Config {
	return cluster.Config{
		KubeconfigPath:            cfg.Cluster.ConfigPath,
		InCluster:                 cfg.Cluster.InCluster,
		Domain:                    cfg.Cluster.Domain,
		TraefikNamespace:          cfg.Cluster.TraefikNamespace,
		IngressClassName:          cfg.Cluster.IngressClassName,
		ClusterIssuerName:         cfg.Cluster.ClusterIssuerName,
		WildcardCertificateName:   cfg.Cluster.WildcardCertificateName,
		WildcardCertificateSecret: cfg.Cluster.WildcardCertificateSecret,
		EntryPoints:               cfg.Cluster.EntryPoints,
		VaultConnectionName:       cfg.Cluster.VaultConnectionName,
		VaultAuthName:             cfg.Cluster.VaultAuthName,
		VaultKVMount:              cfg.Cluster.VaultKVMount,
		LabelSelector:             cfg.Cluster.LabelSelector,
	}
}
