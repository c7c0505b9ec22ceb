package db

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds connection parameters for the relational store.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN returns the libpq connection string.
func (cfg *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// Connect establishes the database connection with bounded retry, grounded
// on the teacher's ConnectDatabase (internal/db/connection.go).
func Connect(cfg *Config, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	var conn *gorm.DB
	var err error

	const maxRetries = 10
	for i := 0; i < maxRetries; i++ {
		conn, err = gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
		if err == nil {
			var sqlDB *sql.DB
			sqlDB, err = conn.DB()
			if err == nil {
				if pingErr := sqlDB.Ping(); pingErr == nil {
					break
				} else {
					err = pingErr
				}
			}
		}
		if i < maxRetries-1 {
			wait := time.Duration(i+1) * time.Second
			log.Warn("database connection attempt failed, retrying",
				zap.Int("attempt", i+1), zap.Duration("wait", wait), zap.Error(err))
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return conn, nil
}

// Migrate runs AutoMigrate for every model this module owns.
func Migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(&Deployment{}, &DeploymentEvent{})
}
