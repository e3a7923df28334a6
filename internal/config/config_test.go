package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func clearIndexerEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"FACTORY_ADDRESS", "DB_URL", "RPC_URL", "CHAIN_ID", "CONFIRMATIONS",
		"BLOCK_BATCH_SIZE", "POLL_INTERVAL_SECONDS", "REORG_ROLLBACK_BLOCKS",
		"RABBITMQ_HOST", "RABBITMQ_PORT", "RABBITMQ_USER", "RABBITMQ_PASSWORD",
		"RABBITMQ_VHOST", "RABBITMQ_EXCHANGE", "RABBITMQ_PREFETCH_COUNT",
		"CONSUMER_WORKERS", "MAX_RETRIES", "RECONCILIATION_INTERVAL_SECONDS",
		"LOG_LEVEL", "METRICS_ADDR", "IPFS_GATEWAY_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadRequiresFactoryAddressAndDBURL(t *testing.T) {
	clearIndexerEnv(t)
	_, err := Load()
	require.ErrorContains(t, err, "FACTORY_ADDRESS")

	t.Setenv("FACTORY_ADDRESS", "0xABCDEF0000000000000000000000000000000000")
	_, err = Load()
	require.ErrorContains(t, err, "DB_URL")
}

func TestLoadAppliesDefaultsAndLowercasesFactoryAddress(t *testing.T) {
	clearIndexerEnv(t)
	t.Setenv("FACTORY_ADDRESS", "0xABCDEF0000000000000000000000000000000000")
	t.Setenv("DB_URL", "postgres://localhost/indexer")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0xabcdef0000000000000000000000000000000000", cfg.FactoryAddress)
	require.Equal(t, "http://127.0.0.1:8545", cfg.RPCURL)
	require.Equal(t, int64(31337), cfg.ChainID)
	require.Equal(t, uint64(2000), cfg.BlockBatchSize)
	require.Equal(t, "", cfg.MetricsAddr)
	require.Equal(t, "", cfg.IPFSGatewayURL)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	clearIndexerEnv(t)
	t.Setenv("FACTORY_ADDRESS", "0xabcdef0000000000000000000000000000000000")
	t.Setenv("DB_URL", "postgres://localhost/indexer")
	t.Setenv("BLOCK_BATCH_SIZE", "500")
	t.Setenv("CONSUMER_WORKERS", "8")
	t.Setenv("METRICS_ADDR", ":9100")
	t.Setenv("IPFS_GATEWAY_URL", "https://ipfs.io")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, uint64(500), cfg.BlockBatchSize)
	require.Equal(t, 8, cfg.ConsumerWorkers)
	require.Equal(t, ":9100", cfg.MetricsAddr)
	require.Equal(t, "https://ipfs.io", cfg.IPFSGatewayURL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			FactoryAddress:        "0xabc",
			DBURL:                 "postgres://localhost/indexer",
			BlockBatchSize:        100,
			PollIntervalSeconds:   1,
			ReorgRollbackBlocks:   10,
			RabbitMQPort:          5672,
			RabbitMQPrefetchCount: 10,
			ConsumerWorkers:       1,
			MaxRetries:            3,
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.BlockBatchSize = 0
	require.ErrorContains(t, c.Validate(), "block batch size")

	c = base()
	c.ConsumerWorkers = 0
	require.ErrorContains(t, c.Validate(), "consumer workers")

	c = base()
	c.MaxRetries = -1
	require.ErrorContains(t, c.Validate(), "max retries")
}
