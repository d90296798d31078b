package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/raster-intake/internal/app"
	"github.com/mohammed-shakir/raster-intake/internal/catalog"
	"github.com/mohammed-shakir/raster-intake/internal/core/config"
	"github.com/mohammed-shakir/raster-intake/internal/core/health"
	"github.com/mohammed-shakir/raster-intake/internal/core/server"
	"github.com/mohammed-shakir/raster-intake/internal/stream"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := app.Logger(cfg, "catalog-writer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov := app.Metrics("catalog-writer", Version)

	store, closeStore, err := app.CatalogStore(ctx, cfg, log)
	if err != nil {
		log.Error("catalog store setup failed", "err", err)
		return 1
	}
	defer closeStore()

	w := catalog.NewWriter(store, catalog.WriterOptions{
		DedupeSize:   cfg.Writer.DedupeSize,
		StoreTimeout: cfg.Writer.StoreTimeout,
		Logger:       log,
	})

	rcfg := stream.ConfigFrom(cfg.Kafka, cfg.Kafka.ItemsTopic, cfg.Writer.MaxInflight)
	runner := stream.New(rcfg, w, stream.Options{Logger: log, Register: prov.Registerer()})
	if err := runner.Start(ctx); err != nil {
		log.Error("consumer start failed", "err", err)
		return 1
	}
	defer runner.Stop()

	log.Info("catalog writer running",
		"topic", rcfg.Topic,
		"group", rcfg.GroupID,
		"dlq", rcfg.DeadLetterTopic,
		"redis", cfg.RedisAddr,
		"version", Version)

	h := server.Handler(log, server.Routes{
		Metrics:   prov.Handler(),
		Readiness: runner,
		Deps:      map[string]health.Pinger{"redis": store},
	})
	if err := server.Run(ctx, cfg.Addr, log, h); err != nil {
		log.Error("server exited with error", "err", err)
		return 1
	}
	log.Info("catalog writer stopped")
	return 0
}
