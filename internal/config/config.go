package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration shared by the provisioner, reconciler, and
// scraper binaries. Each binary reads the sub-configs it needs and ignores
// the rest.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Broker      BrokerConfig      `mapstructure:"broker"`
	Cluster     ClusterConfig     `mapstructure:"cluster"`
	SecretStore SecretStoreConfig `mapstructure:"secret_store"`
	Prometheus  PrometheusConfig  `mapstructure:"prometheus"`
	Reconciler  ReconcilerConfig  `mapstructure:"reconciler"`
	Scraper     ScraperConfig     `mapstructure:"scraper"`
}

// SecretStoreConfig holds the Vault KV v2 address and token the Provisioner
// writes deployment secrets to.
type SecretStoreConfig struct {
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
}

// DatabaseConfig holds Postgres connection configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// CacheConfig holds the shared Redis connection configuration.
type CacheConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BrokerConfig holds the AMQP broker configuration the Provisioner consumes
// from.
type BrokerConfig struct {
	URL                string `mapstructure:"url"`
	Exchange           string `mapstructure:"exchange"`
	DeadLetterExchange string `mapstructure:"dead_letter_exchange"`
	Prefetch           int    `mapstructure:"prefetch"`
	MaxRetries         int    `mapstructure:"max_retries"`
}

// ClusterConfig holds the target cluster and ingress/secret-store wiring the
// ClusterGateway needs.
type ClusterConfig struct {
	ConfigPath                string   `mapstructure:"config_path"`
	InCluster                 bool     `mapstructure:"in_cluster"`
	Domain                    string   `mapstructure:"domain"`
	TraefikNamespace          string   `mapstructure:"traefik_namespace"`
	IngressClassName          string   `mapstructure:"ingress_class_name"`
	ClusterIssuerName         string   `mapstructure:"cluster_issuer_name"`
	WildcardCertificateName   string   `mapstructure:"wildcard_certificate_name"`
	WildcardCertificateSecret string   `mapstructure:"wildcard_certificate_secret_name"`
	EntryPoints               []string `mapstructure:"ingress_entry_points"`
	VaultConnectionName       string   `mapstructure:"vault_connection_name"`
	VaultAuthName             string   `mapstructure:"vault_auth_name"`
	VaultKVMount              string   `mapstructure:"vault_kv_mount"`
	LabelSelector             string   `mapstructure:"label_selector"`
}

// PrometheusConfig holds the metrics source the Scraper queries.
type PrometheusConfig struct {
	Address    string `mapstructure:"address"`
	RateWindow string `mapstructure:"rate_window"`
	Timeout    int    `mapstructure:"timeout_seconds"`
}

// ReconcilerConfig holds the Reconciler's drift-loop cadence.
type ReconcilerConfig struct {
	ReconciliationIntervalSeconds int `mapstructure:"reconciliation_interval_seconds"`
}

// ScraperConfig holds the Scraper's tick cadence and retained history depth.
type ScraperConfig struct {
	ScrapeIntervalSeconds int   `mapstructure:"scrape_interval_seconds"`
	SnapshotsToKeep       int64 `mapstructure:"snapshots_to_keep"`
}

// Load loads configuration from file and environment variables. configPath,
// when non-empty, names an explicit config file; otherwise config.yaml is
// searched for in the working directory, ./config, and /etc/poddle.
func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/poddle")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "poddle")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("cache.host", "localhost")
	viper.SetDefault("cache.port", "6379")
	viper.SetDefault("cache.password", "")
	viper.SetDefault("cache.db", 0)

	viper.SetDefault("broker.url", "amqp://localhost:5672")
	viper.SetDefault("broker.exchange", "compute")
	viper.SetDefault("broker.dead_letter_exchange", "compute.dead_letter")
	viper.SetDefault("broker.prefetch", 10)
	viper.SetDefault("broker.max_retries", 3)

	viper.SetDefault("cluster.in_cluster", true)
	viper.SetDefault("cluster.domain", "poddle.uz")
	viper.SetDefault("cluster.traefik_namespace", "traefik")
	viper.SetDefault("cluster.ingress_class_name", "traefik")
	viper.SetDefault("cluster.cluster_issuer_name", "letsencrypt-prod")
	viper.SetDefault("cluster.wildcard_certificate_name", "poddle-wildcard")
	viper.SetDefault("cluster.wildcard_certificate_secret_name", "poddle-wildcard-tls")
	viper.SetDefault("cluster.ingress_entry_points", []string{"websecure"})
	viper.SetDefault("cluster.vault_connection_name", "vault-connection")
	viper.SetDefault("cluster.vault_auth_name", "vault-auth")
	viper.SetDefault("cluster.vault_kv_mount", "kvv2")
	viper.SetDefault("cluster.label_selector", "managed-by=poddle")

	viper.SetDefault("secret_store.address", "http://localhost:8200")
	viper.SetDefault("secret_store.token", "")

	viper.SetDefault("prometheus.address", "http://localhost:9090")
	viper.SetDefault("prometheus.rate_window", "2m")
	viper.SetDefault("prometheus.timeout_seconds", 10)

	viper.SetDefault("reconciler.reconciliation_interval_seconds", 120)

	viper.SetDefault("scraper.scrape_interval_seconds", 15)
	viper.SetDefault("scraper.snapshots_to_keep", 240)
}

// Validate checks the fields every binary depends on regardless of which
// sub-config it otherwise uses.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Cache.Host == "" {
		return fmt.Errorf("cache host is required")
	}
	if c.Broker.URL == "" {
		return fmt.Errorf("broker url is required")
	}
	if c.Cluster.LabelSelector == "" {
		return fmt.Errorf("cluster label selector is required")
	}
	return nil
}
