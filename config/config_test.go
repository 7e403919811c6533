package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/deal-service/internal/providers"
)

const testYAML = `
server:
  port: 8080
aggregator:
  pool_size: 3
  provider_timeout: 2m
alerts:
  interval: 30m
providers:
  - name: ripley
    kind: html
    search_url: https://ripley.example/search?q={query}
    item_selector: .product
    name_selector: .name
    price_selector: .price
    link_selector: a
    max_pages: 2
  - name: falabella
    kind: json
    search_url: https://falabella.example/api?q={query}
    items_path: data.results
    name_path: displayName
    price_path: prices.0.price
    url_path: url
    rate_limit:
      requests_per_second: 1
      burst: 1
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Aggregator.PoolSize)
	assert.Equal(t, 10*time.Minute, cfg.Aggregator.ProviderTimeout)
	assert.Equal(t, 4*time.Hour, cfg.Alerts.Interval)
	assert.True(t, cfg.Alerts.Enabled)
	assert.InDelta(t, 0.80, cfg.Ledger.HugeDropThreshold, 1e-9)
	assert.Equal(t, 256, cfg.Dispatcher.QueueSize)
	assert.Equal(t, "deal-alerts", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Providers)
	assert.Same(t, cfg, Get())
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Aggregator.PoolSize)
	assert.Equal(t, 2*time.Minute, cfg.Aggregator.ProviderTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Alerts.Interval)

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "ripley", cfg.Providers[0].Name)
	assert.Equal(t, providers.KindHTML, cfg.Providers[0].Kind)
	assert.Equal(t, 2, cfg.Providers[0].MaxPages)
	assert.Equal(t, "prices.0.price", cfg.Providers[1].PricePath)
	require.NotNil(t, cfg.Providers[1].RateLimit)
	assert.InDelta(t, 1.0, cfg.Providers[1].RateLimit.RequestsPerSecond, 1e-9)

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/deals")
	t.Setenv("DEAL_SERVICE_AGGREGATOR_POOL_SIZE", "5")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("INTERNAL_API_KEY", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://u:p@localhost:5432/deals", cfg.Database.URL)
	assert.Equal(t, 5, cfg.Aggregator.PoolSize)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "secret", cfg.Internal.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("# comment\nexport DEAL_SERVICE_LOGGING_LEVEL=\"debug\"\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DEAL_SERVICE_LOGGING_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"pool size", func(c *Config) { c.Aggregator.PoolSize = 0 }, "aggregator.pool_size"},
		{"timeout", func(c *Config) { c.Aggregator.ProviderTimeout = 0 }, "aggregator.provider_timeout"},
		{"no providers", func(c *Config) { c.Providers = nil }, "providers"},
		{"duplicate provider", func(c *Config) { c.Providers[1].Name = "ripley" }, "providers[1].name"},
		{"unknown kind", func(c *Config) { c.Providers[0].Kind = "graphql" }, "providers[0].kind"},
		{"no placeholder", func(c *Config) { c.Providers[0].SearchURL = "https://ripley.example" }, "providers[0].search_url"},
		{"huge drop", func(c *Config) { c.Ledger.HugeDropThreshold = 1.5 }, "ledger.huge_drop_threshold"},
		{"alerts interval", func(c *Config) { c.Alerts.Interval = 0 }, "alerts.interval"},
		{"kafka topic", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"}; c.Kafka.Topic = "" }, "kafka.topic"},
		{"telemetry endpoint", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Endpoint = "" }, "telemetry.endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, testYAML))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			var invalid ErrInvalidConfig
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}
