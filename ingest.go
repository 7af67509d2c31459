package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BRO3886/survey-index/internal/kafka"
	"github.com/BRO3886/survey-index/internal/queue"
	"github.com/BRO3886/survey-index/internal/types"
)

const maxLineSize = 4 << 20

func newIngestCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Publish documents from a JSON lines file to the change feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kcfg, err := a.kafkaConfig()
			if err != nil {
				return err
			}
			enqueuer, err := kafka.NewEnqueuer(ctx, kcfg)
			if err != nil {
				return fmt.Errorf("starting kafka enqueuer: %w", err)
			}
			defer enqueuer.Close()

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to read stream file: %w", err)
			}
			defer f.Close()

			return runIngestion(ctx, a.logger, f, a.cfg.Kafka.Topic.Name, enqueuer)
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "stream.jsonl", "JSON lines file with one document per line")
	return cmd
}

func runIngestion(ctx context.Context, logger *slog.Logger, r io.Reader, topic string, enqueuer queue.Enqueuer) error {
	logger = logger.With("component", "ingest")
	logger.Info("started ingestion")

	var sent, skipped int
	err := eachDocument(r, func(line int, doc types.Document, err error) error {
		if err != nil {
			logger.Warn("skipping line", "line", line, "err", err)
			skipped++
			return nil
		}
		change := newIngestChange(doc)
		data, err := json.Marshal(change)
		if err != nil {
			logger.Warn("skipping line", "line", line, "err", err)
			skipped++
			return nil
		}
		if err := enqueuer.Enqueue(ctx, topic, change.ID, data); err != nil {
			return fmt.Errorf("enqueue line %d: %w", line, err)
		}
		sent++
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("ingestion completed", "sent", sent, "skipped", skipped)
	return nil
}

// newIngestChange gives documents without an _id a fresh one; the id is the
// partition key and the view row id.
func newIngestChange(doc types.Document) types.Change {
	if doc.ID == "" {
		fields := doc.Fields()
		fields["_id"] = uuid.NewString()
		doc = types.NewDocument(fields)
	}
	return types.NewChange(doc)
}

// eachDocument calls fn for every non-blank line of r. Lines that do not
// decode are passed to fn with their error.
func eachDocument(r io.Reader, fn func(line int, doc types.Document, err error) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		doc, err := types.ParseDocument(raw)
		if err := fn(line, doc, err); err != nil {
			return err
		}
	}
	return scanner.Err()
}
