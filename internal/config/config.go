// Package config loads the indexer's process configuration from
// environment variables, following the load/validate split of the
// original Python indexer's Config.from_env()/validate().
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-sourced setting listed in spec.md §6.
type Config struct {
	// Chain
	FactoryAddress        string
	RPCURL                string
	ChainID               int64
	Confirmations         uint64
	BlockBatchSize        uint64
	PollIntervalSeconds   int
	ReorgRollbackBlocks   uint64

	// Store
	DBURL string

	// Bus
	RabbitMQHost          string
	RabbitMQPort          int
	RabbitMQUser          string
	RabbitMQPassword      string
	RabbitMQVHost         string
	RabbitMQExchange      string
	RabbitMQPrefetchCount int

	// Workers
	ConsumerWorkers int
	MaxRetries      int

	// Reconciliation
	ReconciliationIntervalSeconds int

	LogLevel string

	// MetricsAddr, when non-empty, serves Prometheus metrics on this
	// address. Not part of spec.md's enumerated env vars; supplements
	// the ambient observability stack without changing indexing
	// semantics.
	MetricsAddr string

	// IPFSGatewayURL, when non-empty, enables internal/ipfsmeta's
	// optional CLI-status annotation (SPEC_FULL.md §3.10). Empty
	// disables it entirely — the read path never depends on it.
	IPFSGatewayURL string
}

// Load reads configuration from the environment, loading a local .env
// file first (if present) the way the original indexer's config.py does
// via python-dotenv. Missing .env files are not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	factoryAddress := os.Getenv("FACTORY_ADDRESS")
	if factoryAddress == "" {
		return nil, fmt.Errorf("FACTORY_ADDRESS environment variable is required")
	}
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DB_URL environment variable is required")
	}

	cfg := &Config{
		FactoryAddress:                strings.ToLower(factoryAddress),
		RPCURL:                        getEnv("RPC_URL", "http://127.0.0.1:8545"),
		ChainID:                       getEnvInt64("CHAIN_ID", 31337),
		Confirmations:                 getEnvUint64("CONFIRMATIONS", 1),
		BlockBatchSize:                getEnvUint64("BLOCK_BATCH_SIZE", 2000),
		PollIntervalSeconds:           getEnvInt("POLL_INTERVAL_SECONDS", 2),
		ReorgRollbackBlocks:           getEnvUint64("REORG_ROLLBACK_BLOCKS", 50),
		DBURL:                         dbURL,
		RabbitMQHost:                  getEnv("RABBITMQ_HOST", "localhost"),
		RabbitMQPort:                  getEnvInt("RABBITMQ_PORT", 5672),
		RabbitMQUser:                  getEnv("RABBITMQ_USER", "guest"),
		RabbitMQPassword:              getEnv("RABBITMQ_PASSWORD", "guest"),
		RabbitMQVHost:                 getEnv("RABBITMQ_VHOST", "/"),
		RabbitMQExchange:              getEnv("RABBITMQ_EXCHANGE", "blockchain_events"),
		RabbitMQPrefetchCount:         getEnvInt("RABBITMQ_PREFETCH_COUNT", 10),
		ConsumerWorkers:               getEnvInt("CONSUMER_WORKERS", 4),
		MaxRetries:                    getEnvInt("MAX_RETRIES", 3),
		ReconciliationIntervalSeconds: getEnvInt("RECONCILIATION_INTERVAL_SECONDS", 300),
		LogLevel:                      getEnv("LOG_LEVEL", "info"),
		MetricsAddr:                   getEnv("METRICS_ADDR", ""),
		IPFSGatewayURL:                getEnv("IPFS_GATEWAY_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configuration combinations that cannot run correctly,
// before any goroutine starts.
func (c *Config) Validate() error {
	if c.FactoryAddress == "" {
		return fmt.Errorf("factory address is required")
	}
	if c.DBURL == "" {
		return fmt.Errorf("db url is required")
	}
	if c.BlockBatchSize == 0 {
		return fmt.Errorf("block batch size must be > 0")
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll interval seconds must be > 0")
	}
	if c.ReorgRollbackBlocks == 0 {
		return fmt.Errorf("reorg rollback blocks must be > 0")
	}
	if c.RabbitMQPort <= 0 {
		return fmt.Errorf("rabbitmq port must be > 0")
	}
	if c.RabbitMQPrefetchCount <= 0 {
		return fmt.Errorf("rabbitmq prefetch count must be > 0")
	}
	if c.ConsumerWorkers <= 0 {
		return fmt.Errorf("consumer workers must be > 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvUint64(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
