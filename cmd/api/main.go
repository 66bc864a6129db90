package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/acme/announcement-call/internal/api"
	"github.com/acme/announcement-call/internal/api/handlers"
	"github.com/acme/announcement-call/internal/app"
	"github.com/acme/announcement-call/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "configs/config.yaml"), "path to configuration file")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(context.Background())

	cfg := container.Config
	lg := container.Logger

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.App.Version)
	if err != nil {
		lg.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := container.EnsureTopics(ctx); err != nil {
		lg.Warn("failed to ensure kafka topics", zap.Error(err))
	}
	container.CheckAudioAsset(ctx)

	lg.Info("starting announcement call service",
		zap.String("provider", cfg.Communication.Provider),
		zap.String("from", cfg.Communication.FromPhoneNumber),
		zap.String("default_audio_url", cfg.Communication.DefaultAudioURL))

	server := api.NewServer(container, handlers.NewHandlerSet(container))
	if err := server.Start(ctx); err != nil {
		lg.Fatal("server terminated", zap.Error(err))
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
