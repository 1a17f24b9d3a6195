package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/terrain/internal/config"
	"github.com/joho/godotenv"
)

func main() {
	// 1. Load .env (optional) so REDIS_URL and friends can live beside terrain.yml
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	// 2. Load terrain.yml (or defaults) with environment overrides
	cfg, err := config.LoadOrDefault("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 3. Connect to Redis and bring up the inference backend
	ctx := context.Background()
	w, err := newWorker(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer w.Close()

	fmt.Printf("Worker starting for canvas '%s' (tile_size=%d, backend=%s)\n",
		cfg.Canvas.Name, cfg.Canvas.TileSize, cfg.Inference.Backend)

	// 4. Setup graceful shutdown
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	// 5. Start dispatcher in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(runCtx)
	}()

	// 6. Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		fmt.Printf("Received signal %v, shutting down gracefully...\n", sig)
		cancel()
		// In-flight renders finish before Run returns
		<-errCh
	case runErr := <-errCh:
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Worker error: %v\n", runErr)
			w.Close()
			os.Exit(1)
		}
	}

	fmt.Println("Worker stopped")
}
