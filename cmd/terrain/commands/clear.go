package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/terrain/internal/printer"
	"github.com/dyluth/terrain/internal/watch"
	"github.com/dyluth/terrain/pkg/canvas"
	"github.com/spf13/cobra"
)

var (
	clearX int
	clearY int
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset the tiles around a canvas position to blank",
	Long: `Publish a clearTiles request and wait for the worker's tilesUpdated reply.

The worker only honours clears when dispatcher.allow_clear is true.

Examples:
  terrain clear -x 700 -y 300`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().IntVarP(&clearX, "x", "x", 0, "x position in canvas pixels")
	clearCmd.Flags().IntVarP(&clearY, "y", "y", 0, "y position in canvas pixels")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

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

	req := canvas.ClearTiles{X: clearX, Y: clearY, Space: spaceName}
	if err := s.client.Publish(ctx, canvas.EventClearTiles, req); err != nil {
		return fmt.Errorf("failed to publish clearTiles: %w", err)
	}
	printer.Step("Clear requested around (%d, %d), waiting for worker...\n", req.X, req.Y)

	// Clear replies carry no id
	updated, err := watch.WaitForTilesUpdated(ctx, sub, "", timeout)
	if err != nil {
		return printer.Error(
			"no reply from worker",
			err.Error(),
			[]string{
				"Enable clearing on the worker:\n  dispatcher:\n    allow_clear: true",
				"Check that a terrain-worker is running for this canvas",
			},
		)
	}

	printer.Success("Clear complete\n")
	printer.Tiles("Cleared tiles", updated.Tiles)
	return nil
}
