package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BRO3886/survey-index/internal/api"
	"github.com/BRO3886/survey-index/internal/indexer"
	"github.com/BRO3886/survey-index/internal/kafka"
)

func newIndexCmd(a *app) *cobra.Command {
	var serve bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Consume the change feed and keep the view up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			kcfg, err := a.kafkaConfig()
			if err != nil {
				return err
			}
			dequeuer, err := kafka.NewDequeuer(ctx, kcfg)
			if err != nil {
				return fmt.Errorf("starting kafka dequeuer: %w", err)
			}
			defer dequeuer.Close()

			store, err := a.openStore(ctx)
			if err != nil {
				return fmt.Errorf("opening %s store: %w", a.cfg.Store.Backend, err)
			}
			defer store.Close()

			ix := indexer.New(store, a.logger, indexer.WithDedupe(a.cfg.Indexer.DedupeSize))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info("started indexing", "topic", a.cfg.Kafka.Topic.Name, "store", a.cfg.Store.Backend)
				return dequeuer.Dequeue(gctx, a.cfg.Kafka.Topic.Name, ix.HandleMessage)
			})
			if serve {
				g.Go(func() error {
					return api.Serve(gctx, a.cfg.HTTP.Addr, store, a.logger)
				})
			}
			if err := g.Wait(); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&serve, "serve", false, "also serve the query API")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return fmt.Errorf("opening %s store: %w", a.cfg.Store.Backend, err)
			}
			defer store.Close()
			return api.Serve(ctx, a.cfg.HTTP.Addr, store, a.logger)
		},
	}
}
