package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/paul268484/document-mining/internal/app"
	"github.com/paul268484/document-mining/internal/config"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer application.Close()

	slog.Info("document mining service running", slog.String("port", cfg.Port))

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("service exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("service stopped")
}
