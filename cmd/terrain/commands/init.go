package commands

import (
	"path/filepath"
	"strings"

	"github.com/dyluth/terrain/internal/config"
	"github.com/dyluth/terrain/internal/printer"
	"github.com/dyluth/terrain/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit   bool
	initDir     string
	initBackend string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter terrain.yml",
	Long: `Write a starter configuration for terrain-worker and the CLI.

Creates:
  • terrain.yml  - Worker and CLI configuration, every default spelled out
  • .env.example - Environment overrides read at startup

Use --force to overwrite existing files.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing terrain.yml and .env.example")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to write into")
	initCmd.Flags().StringVar(&initBackend, "backend", config.BackendHTTP, "Inference backend (http or fill)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	params := scaffold.Params{Canvas: canvasName, Backend: initBackend}

	written, err := scaffold.Initialize(initDir, params, forceInit)
	if err != nil {
		if strings.HasPrefix(err.Error(), "project already initialized") {
			return printer.Error(
				"project already initialized",
				err.Error(),
				[]string{"Overwrite them:\n  terrain init --force"},
			)
		}
		return printer.Error("initialization failed", err.Error(), nil)
	}

	printer.Success("Initialized terrain configuration\n")
	printer.Info("\nCreated:\n")
	for _, path := range written {
		printer.Info("  ✓ %s\n", filepath.Clean(path))
	}
	printer.Info("\nNext steps:\n")
	printer.Info("  1. Point redis.url and inference.endpoint at your services\n")
	printer.Info("  2. Start the worker: terrain-worker\n")
	printer.Info("  3. Paint something: terrain render -x 0 -y 0 a satellite image of a coastline\n")
	return nil
}
