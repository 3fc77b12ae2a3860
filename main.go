package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"beacon/service/config"
	"beacon/service/server"
	"beacon/service/util"

	"github.com/joho/godotenv"
)

var (
	version = "dev"
)

func init() {
	_ = godotenv.Load() //nolint:errcheck
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("Beacon %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.VerboseLogging)
	logger.Info("Starting Beacon", "version", version)

	if err := runServer(cfg, logger); err != nil {
		logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func runServer(cfg *config.Config, logger *slog.Logger) error {
	srv, err := server.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.Info("Shutdown complete")
	return nil
}
