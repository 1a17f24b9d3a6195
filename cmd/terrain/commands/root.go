package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath string
	redisURL   string
	canvasName string
	spaceName  string
	timeout    time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "terrain",
	Short: "Terrain - operator CLI for the tile-canvas rendering worker",
	Long: `Terrain drives and inspects a running terrain worker.

Requests are published on the canvas events channel in Redis and the
worker's replies are awaited on the same channel. Tiles and the tile index
are read straight from the blob store.

Connection settings come from terrain.yml (or --config), then the
environment (REDIS_URL, TERRAIN_CANVAS), then the flags below.`,
	Version: version,
	// Show help rather than silently succeeding without a subcommand
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command. Called once by main.main().
func Execute() error {
	// Errors are printed by the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to terrain.yml (default: $TERRAIN_CONFIG or ./terrain.yml)")
	flags.StringVar(&redisURL, "redis-url", "", "Redis URL (overrides config and REDIS_URL)")
	flags.StringVar(&canvasName, "canvas", "", "Canvas name (overrides config and TERRAIN_CANVAS)")
	flags.StringVar(&spaceName, "space", "", "Canvas space (default: the worker's default space)")
	flags.DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the worker's reply")
}
