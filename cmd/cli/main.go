package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kosarica/deal-service/config"
	"github.com/kosarica/deal-service/internal/aggregator"
	"github.com/kosarica/deal-service/internal/alerts"
	"github.com/kosarica/deal-service/internal/database"
	"github.com/kosarica/deal-service/internal/notify"
	"github.com/kosarica/deal-service/internal/providers"
	"github.com/kosarica/deal-service/internal/subscriptions"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "deal-service",
	Short: "Deal Service CLI - multi-store product search and price alerts",
	Long: `A CLI tool for searching a product across every configured store,
exporting the merged results, managing price-drop subscriptions and running
a price check cycle by hand.`,
	PersistentPreRunE: persistentPreRun,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
}

// persistentPreRun runs before each command and initializes dependencies
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	logger = initLogger()

	if cfg == nil {
		return fmt.Errorf("config required for %s command but not loaded", cmd.Name())
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cmdNeedsDB := cmd.Name() == "check" || cmd.Name() == "subscribe" || cmd.Name() == "subscriptions"
	if cmdNeedsDB {
		if err := initDatabase(cmd.Context()); err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
		logger.Info().Msg("Database connected")
	}

	return nil
}

func initLogger() *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if cfg != nil && cfg.Logging.Level != "" {
		if parsedLevel, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			level = parsedLevel
		}
	}

	// stdout carries command output, logs go to stderr
	var output io.Writer
	if cfg != nil && cfg.Logging.Format == "json" {
		output = os.Stderr
	} else {
		noColor := false
		if cfg != nil {
			noColor = cfg.Logging.NoColor
		}
		output = zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor}
	}

	log := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &log
}

func initDatabase(ctx context.Context) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := database.Connect(ctx, cfg.Database); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

func newAggregator() (*aggregator.Aggregator, error) {
	registry, err := providers.Build(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to build providers: %w", err)
	}
	return aggregator.New(registry, cfg.Aggregator, logger), nil
}

// newEngine wires an alert engine on the postgres subscription store.
// cleanup flushes queued alerts and closes the connections.
func newEngine(ctx context.Context) (*alerts.Engine, func(), error) {
	agg, err := newAggregator()
	if err != nil {
		return nil, nil, err
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	closeNotifier := func() {}
	if len(cfg.Kafka.Brokers) > 0 {
		kn, err := notify.NewKafkaNotifier(cfg.Kafka)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create kafka notifier: %w", err)
		}
		notifier = kn
		closeNotifier = func() {
			if err := kn.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close kafka writer")
			}
		}
	}

	dispatcher := notify.NewDispatcher(notifier, cfg.Dispatcher, logger)
	dispatcher.Start(ctx)

	store := subscriptions.NewPostgresStore(database.Pool())
	engine := alerts.NewEngine(store, agg, dispatcher, alerts.WithLogger(logger))

	cleanup := func() {
		dispatcher.Stop()
		closeNotifier()
		database.Close()
	}
	return engine, cleanup, nil
}

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
