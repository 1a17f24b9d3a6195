package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/terrain/internal/printer"
	"github.com/dyluth/terrain/internal/watch"
	"github.com/dyluth/terrain/pkg/canvas"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	renderX      int
	renderY      int
	renderNoWait bool
)

var renderCmd = &cobra.Command{
	Use:   "render [CAPTION...]",
	Short: "Ask the worker to paint the window at a canvas position",
	Long: `Publish a renderTile request and wait for the worker's tilesUpdated reply.

The caption is moderated by the worker; captions that do not start with
"a satellite image" (or are otherwise rejected) are replaced by the default.

Examples:
  # Paint the window at the origin
  terrain render -x 0 -y 0 a satellite image of a river delta

  # Paint in another space without waiting
  terrain render -x 512 -y -256 --space mars --no-wait a satellite image of craters`,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().IntVarP(&renderX, "x", "x", 0, "Window x position in canvas pixels")
	renderCmd.Flags().IntVarP(&renderY, "y", "y", 0, "Window y position in canvas pixels")
	renderCmd.Flags().BoolVar(&renderNoWait, "no-wait", false, "Publish the request and exit")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	req := canvas.RenderTile{
		X:       renderX,
		Y:       renderY,
		Caption: strings.Join(args, " "),
		ID:      uuid.NewString(),
		Space:   spaceName,
	}

	if renderNoWait {
		if err := s.client.Publish(ctx, canvas.EventRenderTile, req); err != nil {
			return fmt.Errorf("failed to publish renderTile: %w", err)
		}
		printer.Success("Render requested [id=%s]\n", req.ID)
		return nil
	}

	// Subscribe first so the reply cannot be missed
	sub, err := s.client.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Close()

	if err := s.client.Publish(ctx, canvas.EventRenderTile, req); err != nil {
		return fmt.Errorf("failed to publish renderTile: %w", err)
	}
	printer.Step("Render requested at (%d, %d) [id=%s], waiting for worker...\n", req.X, req.Y, req.ID)

	updated, err := watch.WaitForTilesUpdated(ctx, sub, req.ID, timeout)
	if err != nil {
		return printer.ErrorWithContext(
			"no reply from worker",
			err.Error(),
			map[string]string{"Canvas": s.cfg.Canvas.Name, "Request": req.ID},
			[]string{
				"Check that a terrain-worker is running for this canvas",
				"Increase the wait:\n  terrain render --timeout 10m ...",
			},
		)
	}

	if len(updated.Tiles) == 0 {
		return printer.Error(
			"render failed",
			"The worker reported no updated tiles. See the worker logs for request "+req.ID+".",
			nil,
		)
	}

	printer.Success("Render complete\n")
	printer.Tiles("Updated tiles", updated.Tiles)
	return nil
}
