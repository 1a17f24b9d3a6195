package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/terrain/internal/printer"
	"github.com/dyluth/terrain/internal/tilestore"
	"github.com/dyluth/terrain/pkg/canvas"
	"github.com/spf13/cobra"
)

var (
	tileRow    int
	tileCol    int
	tileOutput string
)

var tileCmd = &cobra.Command{
	Use:   "tile",
	Short: "Inspect stored tiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var tileGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Download one tile as a PNG",
	Long: `Read a tile from the blob store and write it as a PNG.

A tile that has never been painted is written as a fully transparent image.

Examples:
  terrain tile get --row 0 --col -1 -o tile.png`,
	Args: cobra.NoArgs,
	RunE: runTileGet,
}

var tileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tiles stored for a space",
	Args:  cobra.NoArgs,
	RunE:  runTileList,
}

func init() {
	tileGetCmd.Flags().IntVar(&tileRow, "row", 0, "Tile row")
	tileGetCmd.Flags().IntVar(&tileCol, "col", 0, "Tile column")
	tileGetCmd.Flags().StringVarP(&tileOutput, "output", "o", "", "Output file (default: <row>_<col>.png)")
	tileCmd.AddCommand(tileGetCmd)
	tileCmd.AddCommand(tileListCmd)
	rootCmd.AddCommand(tileCmd)
}

func runTileGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	c := canvas.Coord{Row: tileRow, Col: tileCol}
	data, err := tilestore.EncodeTile(s.store().Get(ctx, c))
	if err != nil {
		return fmt.Errorf("failed to encode tile %s: %w", c, err)
	}

	path := tileOutput
	if path == "" {
		path = fmt.Sprintf("%d_%d.png", c.Row, c.Col)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return printer.Error("failed to write tile", err.Error(), nil)
	}

	printer.Success("Wrote tile %s to %s\n", c, path)
	return nil
}

func runTileList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	tiles, err := s.store().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tiles: %w", err)
	}
	printer.Tiles(fmt.Sprintf("Stored tiles in space '%s'", s.space()), tiles)
	return nil
}
