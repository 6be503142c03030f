package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/app"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/config"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/logger"
)

func main() {
	// Load configuration from environment
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Debug)
	logger.Info("Starting xtls-server...",
		"bind_address", cfg.BindAddress,
		"runtime", cfg.Runtime,
		"tls_mode", cfg.TLSMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg).Run(ctx); err != nil {
		logger.Fatal("Server error", "error", err)
	}
}
