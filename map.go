package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BRO3886/survey-index/internal/types"
	"github.com/BRO3886/survey-index/internal/view"
)

func newMapCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Run the view's map function over a JSON lines file and print the emitted rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return runMap(a.logger, f, cmd.OutOrStdout(), view.ResponseIndexMapper)
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "stream.jsonl", "JSON lines file with one document per line")
	return cmd
}

// runMap writes one JSON row per emitted record to w. Documents the view
// rejects are logged, not fatal.
func runMap(logger *slog.Logger, r io.Reader, w io.Writer, mapper view.Mapper) error {
	logger = logger.With("component", "map")
	enc := json.NewEncoder(w)

	var emitted, read int
	err := eachDocument(r, func(line int, doc types.Document, err error) error {
		if err != nil {
			logger.Warn("skipping line", "line", line, "err", err)
			return nil
		}
		read++
		rec, err := mapper.Map(doc)
		if err != nil {
			logger.Warn("document excluded", "line", line, "err", err)
			return nil
		}
		if rec == nil {
			return nil
		}
		emitted++
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("map completed", "documents", read, "emitted", emitted)
	return nil
}
