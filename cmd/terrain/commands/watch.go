package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/terrain/internal/filter"
	"github.com/dyluth/terrain/internal/printer"
	"github.com/dyluth/terrain/internal/watch"
	"github.com/dyluth/terrain/pkg/canvas"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchEvent        string
	watchRequestID    string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream canvas events as they happen",
	Long: `Stream every request and reply on the canvas events channel.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Filters (ANDed):
  --event - Event name glob ("tiles*", "renderTile")
  --space - Only events addressed to this space
  --id    - Only events carrying this request id

Examples:
  terrain watch
  terrain watch --event "tiles*" --space mars
  terrain watch --canvas staging --output=json > events.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().StringVar(&watchEvent, "event", "", "Filter by event name (glob pattern)")
	watchCmd.Flags().StringVar(&watchRequestID, "id", "", "Filter by request id (exact match)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := watch.ParseOutputFormat(watchOutputFormat)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, json"})
	}

	criteria := &filter.Criteria{NameGlob: watchEvent, Space: spaceName, RequestID: watchRequestID}
	if err := criteria.Validate(); err != nil {
		return printer.Error("invalid event filter", err.Error(), []string{"Use a glob such as \"tiles*\""})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	var match func(*canvas.Envelope) bool
	if criteria.HasFilters() {
		defaultSpace := s.cfg.Canvas.DefaultSpace
		match = func(env *canvas.Envelope) bool { return criteria.Matches(env, defaultSpace) }
	}

	if format == watch.OutputFormatDefault {
		printer.Info("Watching canvas '%s' (Ctrl-C to stop)\n", s.cfg.Canvas.Name)
	}
	return watch.StreamEvents(ctx, sub, match, format, printer.Out)
}
