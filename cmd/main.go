package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"yad2watch/internal/core"
	"yad2watch/internal/server"
)

func main() {
	// Load .env file if it exists
	godotenv.Load()

	// Configuration errors are the only fatal condition: fail loudly at
	// startup instead of running degraded.
	config, err := core.LoadConfig()
	if err != nil {
		bootLogger := core.NewLogger()
		bootLogger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(config.Storage.DataDir, 0o755); err != nil {
		bootLogger := core.NewLogger()
		bootLogger.Error("Failed to create data directory", "path", config.Storage.DataDir, "error", err)
		os.Exit(1)
	}

	logger := core.NewFileLogger(config.LogPath())
	defer logger.Close()

	srv := server.New(logger, config)

	// Serve until interrupted, then drain gracefully.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", "error", err)
		os.Exit(1)
	}
}
