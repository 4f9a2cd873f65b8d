package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sol1corejz/invertgold/cmd/config"
	"github.com/sol1corejz/invertgold/internal/handlers"
	"github.com/sol1corejz/invertgold/internal/logger"
	"github.com/sol1corejz/invertgold/internal/storage"
	"github.com/sol1corejz/invertgold/internal/workers"
	"go.uber.org/zap"
)

func main() {
	config.ParseFlags()

	if err := logger.Initialize(config.LogLevel); err != nil {
		logger.Log.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer logger.Log.Sync()

	if err := storage.Init(); err != nil {
		logger.Log.Error("Failed to init storage", zap.Error(err))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers.InitScheduleWatcher(ctx)

	if err := run(ctx); err != nil {
		logger.Log.Fatal("Failed to run server", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	app := handlers.NewApp()

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Running server", zap.String("address", config.RunAddress))
		errCh <- app.Listen(config.RunAddress)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down server")
	return app.ShutdownWithTimeout(10 * time.Second)
}
