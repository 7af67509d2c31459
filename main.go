package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BRO3886/survey-index/internal/config"
	"github.com/BRO3886/survey-index/internal/kafka"
	"github.com/BRO3886/survey-index/internal/logging"
	"github.com/BRO3886/survey-index/internal/opensearch"
	"github.com/BRO3886/survey-index/internal/search"
	"github.com/BRO3886/survey-index/internal/sqlite"
)

type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "survey-index",
		Short: "Index survey responses by form model, tag and modification time",
		Long: `survey-index keeps a secondary view of survey responses.

Responses are read from a Kafka change feed, run through the view's map
function and stored in SQLite or OpenSearch, where they can be queried by
form model, newest first.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "path to config file")

	cmd.AddCommand(
		newIngestCmd(a),
		newIndexCmd(a),
		newServeCmd(a),
		newMapCmd(a),
	)
	return cmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.Log, os.Stderr)
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) kafkaConfig() (*kafka.Config, error) {
	if err := a.cfg.ValidateKafka(); err != nil {
		return nil, err
	}
	opts := []kafka.ConfigOpts{
		kafka.WithBrokers(a.cfg.Kafka.Brokers...),
		kafka.WithConsumeOldest(),
		kafka.WithTopics(a.cfg.Kafka.Topic.Name),
		kafka.WithConsumerGroup(a.cfg.Kafka.ConsumerGroup),
		kafka.WithRetry(
			a.cfg.Kafka.Retry.Max,
			time.Duration(a.cfg.Kafka.Retry.Backoff)*time.Millisecond,
		),
		kafka.WithLogger(a.logger),
	}
	if a.cfg.Kafka.Sync {
		opts = append(opts, kafka.WithSyncProducer())
	}
	return kafka.NewConfig(opts...), nil
}

func (a *app) openStore(ctx context.Context) (search.Store, error) {
	switch a.cfg.Store.Backend {
	case config.BackendOpensearch:
		return opensearch.New(ctx, a.cfg, a.logger)
	case config.BackendSQLite:
		return sqlite.Open(a.cfg.SQLite.Path, a.logger)
	}
	return nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
}
