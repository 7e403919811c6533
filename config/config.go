package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/kosarica/deal-service/internal/aggregator"
	"github.com/kosarica/deal-service/internal/database"
	"github.com/kosarica/deal-service/internal/notify"
	"github.com/kosarica/deal-service/internal/providers"
	"github.com/kosarica/deal-service/internal/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. DEAL_SERVICE_SERVER_PORT
const EnvPrefix = "DEAL_SERVICE"

// Config holds the application configuration
type Config struct {
	Server     ServerConfig            `mapstructure:"server"`
	Database   database.Config         `mapstructure:"database"`
	Redis      RedisConfig             `mapstructure:"redis"`
	Kafka      notify.KafkaConfig      `mapstructure:"kafka"`
	Aggregator aggregator.Config       `mapstructure:"aggregator"`
	Providers  []providers.Config      `mapstructure:"providers"`
	Ledger     LedgerConfig            `mapstructure:"ledger"`
	Alerts     AlertsConfig            `mapstructure:"alerts"`
	Dispatcher notify.DispatcherConfig `mapstructure:"dispatcher"`
	RateLimit  RateLimitConfig         `mapstructure:"rate_limit"`
	Internal   InternalConfig          `mapstructure:"internal"`
	Telemetry  telemetry.Config        `mapstructure:"telemetry"`
	Logging    LoggingConfig           `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration. A zero WriteTimeout leaves
// streaming searches unbounded.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig selects the redis price ledger. An empty URL keeps the ledger
// in memory.
type RedisConfig struct {
	URL    string        `mapstructure:"url"`
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// LedgerConfig holds price ledger settings
type LedgerConfig struct {
	HugeDropThreshold float64 `mapstructure:"huge_drop_threshold"`
}

// AlertsConfig holds the periodic price check settings
type AlertsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// RateLimitConfig holds the per-IP limit of public endpoints
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// InternalConfig protects the /internal routes
type InternalConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// ErrInvalidConfig is returned when the configuration is invalid
type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (e ErrInvalidConfig) Error() string {
	return e.Field + ": " + e.Reason
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Validate checks the values the service cannot run without
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return ErrInvalidConfig{Field: "server.port", Reason: "must be between 1 and 65535"}
	}
	if c.Aggregator.PoolSize < 1 {
		return ErrInvalidConfig{Field: "aggregator.pool_size", Reason: "must be at least 1"}
	}
	if c.Aggregator.ProviderTimeout <= 0 {
		return ErrInvalidConfig{Field: "aggregator.provider_timeout", Reason: "must be positive"}
	}
	if len(c.Providers) == 0 {
		return ErrInvalidConfig{Field: "providers", Reason: "at least one provider is required"}
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		field := fmt.Sprintf("providers[%d]", i)
		if strings.TrimSpace(p.Name) == "" {
			return ErrInvalidConfig{Field: field + ".name", Reason: "is required"}
		}
		if seen[p.Name] {
			return ErrInvalidConfig{Field: field + ".name", Reason: "duplicate provider " + p.Name}
		}
		seen[p.Name] = true
		if p.Kind != providers.KindJSON && p.Kind != providers.KindHTML {
			return ErrInvalidConfig{Field: field + ".kind", Reason: "must be json or html"}
		}
		if !strings.Contains(p.SearchURL, "{query}") {
			return ErrInvalidConfig{Field: field + ".search_url", Reason: "must contain {query}"}
		}
	}
	if c.Ledger.HugeDropThreshold <= 0 || c.Ledger.HugeDropThreshold > 1 {
		return ErrInvalidConfig{Field: "ledger.huge_drop_threshold", Reason: "must be in (0,1]"}
	}
	if c.Alerts.Enabled && c.Alerts.Interval <= 0 {
		return ErrInvalidConfig{Field: "alerts.interval", Reason: "must be positive"}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return ErrInvalidConfig{Field: "kafka.topic", Reason: "is required when brokers are set"}
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return ErrInvalidConfig{Field: "telemetry.endpoint", Reason: "is required when telemetry is enabled"}
	}
	return nil
}

// loadEnvFile loads the first .env file found by parsing KEY=VALUE lines and
// setting them as environment variables
func loadEnvFile() error {
	envPaths := []string{
		".",
		"./config",
	}

	for _, path := range envPaths {
		envFile := fmt.Sprintf("%s/.env", path)
		if _, err := os.Stat(envFile); err == nil {
			if err := loadDotEnvFile(envFile); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile reads a .env file and sets environment variables that are
// not already set
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = strings.Trim(strings.TrimSpace(value), "\"'")
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// bindEnvVars binds the conventional unprefixed variables
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")
	v.BindEnv("redis.url", EnvPrefix+"_REDIS_URL", "REDIS_URL")
	v.BindEnv("kafka.brokers", EnvPrefix+"_KAFKA_BROKERS", "KAFKA_BROKERS")

	v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	v.BindEnv("server.host", EnvPrefix+"_SERVER_HOST", "HOST")

	v.BindEnv("logging.level", EnvPrefix+"_LOGGING_LEVEL", "LOG_LEVEL")
	v.BindEnv("internal.api_key", EnvPrefix+"_INTERNAL_API_KEY", "INTERNAL_API_KEY")
	v.BindEnv("telemetry.endpoint", EnvPrefix+"_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 1)
	v.SetDefault("database.max_lifetime", 1*time.Hour)
	v.SetDefault("database.max_idle_time", 30*time.Minute)
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.prefix", "deal:ledger:")
	v.SetDefault("redis.ttl", 30*24*time.Hour)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "deal-alerts")

	agg := aggregator.DefaultConfig()
	v.SetDefault("aggregator.pool_size", agg.PoolSize)
	v.SetDefault("aggregator.provider_timeout", agg.ProviderTimeout)

	v.SetDefault("ledger.huge_drop_threshold", 0.80)

	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.interval", 4*time.Hour)

	disp := notify.DefaultDispatcherConfig()
	v.SetDefault("dispatcher.queue_size", disp.QueueSize)
	v.SetDefault("dispatcher.workers", disp.Workers)
	v.SetDefault("dispatcher.delivery_timeout", disp.DeliveryTimeout)

	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("internal.api_key", "")
	v.SetDefault("internal.requests_per_second", 5)
	v.SetDefault("internal.burst", 10)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", telemetry.DefaultServiceName)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}
