package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dyluth/terrain/internal/index"
	"github.com/dyluth/terrain/internal/printer"
	"github.com/dyluth/terrain/internal/watch"
	"github.com/dyluth/terrain/pkg/canvas"
	"github.com/spf13/cobra"
)

var indexOutputFormat string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Ask the worker for the current tile index",
	Long: `Publish an indexTiles request and print the worker's tilesIndex reply.

Output Formats:
  default - Tile coordinates as (row,col)
  json    - The tilesIndex payload

Examples:
  terrain index
  terrain index --space mars -o json | jq '.tiles | length'`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild a space's index document from the stored tiles",
	Long: `Enumerate the tiles stored for a space and rewrite its index.json.

This talks to the blob store directly and does not need a running worker.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(reindexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	format, err := watch.ParseOutputFormat(indexOutputFormat)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, json"})
	}

	s, err := connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	sub, err := s.client.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Close()

	if err := s.client.Publish(ctx, canvas.EventIndexTiles, canvas.IndexTiles{Space: spaceName}); err != nil {
		return fmt.Errorf("failed to publish indexTiles: %w", err)
	}

	idx, err := watch.WaitForTilesIndex(ctx, sub, timeout)
	if err != nil {
		return printer.Error(
			"no reply from worker",
			err.Error(),
			[]string{"Check that a terrain-worker is running for this canvas"},
		)
	}

	if format == watch.OutputFormatJSON {
		return json.NewEncoder(printer.Out).Encode(idx)
	}
	printer.Tiles(fmt.Sprintf("Tiles in space '%s'", s.space()), idx.Tiles)
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	printer.Step("Rescanning space '%s'...\n", s.space())
	tiles, err := index.NewMaintainer(s.store()).Rescan(ctx, s.space())
	if err != nil {
		return printer.ErrorWithContext(
			"reindex failed",
			err.Error(),
			map[string]string{"Space": s.space(), "Prefix": s.store().Prefix()},
			nil,
		)
	}

	printer.Success("Index rewritten with %d tile(s)\n", len(tiles))
	return nil
}
