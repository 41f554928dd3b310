// Package config collects both binaries' startup configuration into
// one typed, environment-driven struct per process: flat
// os.Getenv-with-default reads, validated with
// go-playground/validator/v10
// struct tags rather than a viper/koanf layer.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/GIScience/climatoology-go/internal/objectstore"
	"github.com/GIScience/climatoology-go/internal/store"
)

// DatabaseConfig is the relational store's connection configuration.
type DatabaseConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	User     string `validate:"required"`
	Password string
	DBName   string `validate:"required"`
	SSLMode  string `validate:"required,oneof=disable require verify-ca verify-full"`
}

func (d DatabaseConfig) ToStoreConfig() store.Config {
	return store.Config{Host: d.Host, Port: d.Port, User: d.User, Password: d.Password, DBName: d.DBName, SSLMode: d.SSLMode}
}

// BrokerConfig is the NATS connection configuration.
type BrokerConfig struct {
	URL      string `validate:"required"`
	User     string
	Password string
	Name     string `validate:"required"`
}

// ObjectStoreConfig is the S3-compatible object store configuration.
type ObjectStoreConfig struct {
	Endpoint        string
	Region          string `validate:"required"`
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string `validate:"required"`
	UsePathStyle    bool
}

func (o ObjectStoreConfig) ToObjectStoreConfig() objectstore.Config {
	return objectstore.Config{
		Endpoint: o.Endpoint, Region: o.Region, AccessKeyID: o.AccessKeyID,
		SecretAccessKey: o.SecretAccessKey, Bucket: o.Bucket, UsePathStyle: o.UsePathStyle,
	}
}

// RedisConfig gates caching behind a CACHE_ENABLED toggle: a disabled
// stub unless explicitly enabled.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
}

// GatewayConfig is cmd/gateway's full startup configuration.
type GatewayConfig struct {
	Port     string `validate:"required,numeric"`
	Database DatabaseConfig
	Broker   BrokerConfig
	Objects  ObjectStoreConfig
	Redis    RedisConfig

	// AssertLibraryVersion enforces library-version compatibility on every
	// RequestInfo call made through the gateway's sender.
	AssertLibraryVersion bool
	LocalLibraryVersion  string `validate:"required"`

	// APIKey gates every route behind middleware.RequireAPIKey when
	// set; empty leaves the gateway open.
	APIKey string
}

// WorkerConfig is cmd/worker's full startup configuration. One worker
// process hosts exactly one plugin.
type WorkerConfig struct {
	Database DatabaseConfig
	Broker   BrokerConfig
	Objects  ObjectStoreConfig

	// AllowVersionDowngrade overrides the refuse-on-downgrade startup
	// check.
	AllowVersionDowngrade bool

	// TaskTimeLimit bounds how long a single compute task may run
	// before its context is cancelled; zero means unbounded.
	TaskTimeLimit time.Duration
}

var validate = validator.New()

// LoadGateway reads GatewayConfig from the environment, failing with
// a validation error the caller should fatal-log and exit non-zero on
// so the caller can fatal-log and exit non-zero.
func LoadGateway() (GatewayConfig, error) {
	cfg := GatewayConfig{
		Port: getEnv("GATEWAY_PORT", "8000"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "climatoology"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "climatoology"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Broker: BrokerConfig{
			URL:      getEnv("NATS_URL", "nats://localhost:4222"),
			User:     getEnv("NATS_USER", ""),
			Password: getEnv("NATS_PASSWORD", ""),
			Name:     getEnv("NATS_CLIENT_NAME", "climatoology-gateway"),
		},
		Objects: ObjectStoreConfig{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "eu-central-1"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("S3_BUCKET", "climatoology-artifacts"),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", false),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("CACHE_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		AssertLibraryVersion: getEnvBool("ASSERT_LIBRARY_VERSION", true),
		LocalLibraryVersion:  getEnv("LIBRARY_VERSION", "1.0.0"),
		APIKey:               getEnv("GATEWAY_API_KEY", ""),
	}

	if err := validate.Struct(cfg); err != nil {
		return GatewayConfig{}, fmt.Errorf("invalid gateway configuration: %w", err)
	}
	return cfg, nil
}

// LoadWorker reads WorkerConfig from the environment.
func LoadWorker() (WorkerConfig, error) {
	cfg := WorkerConfig{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "climatoology"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "climatoology"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Broker: BrokerConfig{
			URL:      getEnv("NATS_URL", "nats://localhost:4222"),
			User:     getEnv("NATS_USER", ""),
			Password: getEnv("NATS_PASSWORD", ""),
			Name:     getEnv("NATS_CLIENT_NAME", "climatoology-worker"),
		},
		Objects: ObjectStoreConfig{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "eu-central-1"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("S3_BUCKET", "climatoology-artifacts"),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", false),
		},
		AllowVersionDowngrade: getEnvBool("ALLOW_VERSION_DOWNGRADE", false),
		TaskTimeLimit:         getEnvDuration("TASK_TIME_LIMIT", 0),
	}

	if err := validate.Struct(cfg); err != nil {
		return WorkerConfig{}, fmt.Errorf("invalid worker configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
