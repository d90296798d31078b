package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/raster-intake/internal/app"
	"github.com/mohammed-shakir/raster-intake/internal/core/config"
	"github.com/mohammed-shakir/raster-intake/internal/core/server"
	"github.com/mohammed-shakir/raster-intake/internal/publish"
	"github.com/mohammed-shakir/raster-intake/internal/stream"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := app.Logger(cfg, "intake-stream")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov := app.Metrics("intake-stream", Version)

	src, closeSrc, err := app.ObjectRouter(ctx, cfg, log)
	if err != nil {
		log.Error("object store setup failed", "err", err)
		return 1
	}
	defer closeSrc()

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, publish.NewProducerConfig(cfg.Kafka.ClientID))
	if err != nil {
		log.Error("kafka producer setup failed", "brokers", cfg.Kafka.Brokers, "err", err)
		return 1
	}
	emitter := publish.NewKafkaEmitter(producer, cfg.Kafka.ItemsTopic)
	defer func() { _ = emitter.Close() }()

	proc, err := app.Processor(cfg, src, emitter, log)
	if err != nil {
		log.Error("pipeline setup failed", "err", err)
		return 1
	}

	rcfg := stream.ConfigFrom(cfg.Kafka, cfg.Kafka.RequestsTopic, cfg.Bulk.Concurrency)
	rcfg.GroupID = cfg.Kafka.GroupID + "-intake"
	rcfg.DeadLetterTopic = cfg.Kafka.RequestsTopic + "-dlq"
	runner := stream.New(rcfg, stream.NewIntakeHandler(proc, cfg.Bulk.ItemTimeout, log), stream.Options{
		Logger:   log,
		Register: prov.Registerer(),
	})
	if err := runner.Start(ctx); err != nil {
		log.Error("consumer start failed", "err", err)
		return 1
	}
	defer runner.Stop()

	log.Info("intake stream running",
		"topic", rcfg.Topic,
		"group", rcfg.GroupID,
		"max_inflight", rcfg.MaxInflight,
		"version", Version)

	h := server.Handler(log, server.Routes{Metrics: prov.Handler(), Readiness: runner})
	if err := server.Run(ctx, cfg.Addr, log, h); err != nil {
		log.Error("server exited with error", "err", err)
		return 1
	}
	log.Info("intake stream stopped")
	return 0
}
