package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/raster-intake/internal/app"
	"github.com/mohammed-shakir/raster-intake/internal/bulk"
	"github.com/mohammed-shakir/raster-intake/internal/core/config"
	"github.com/mohammed-shakir/raster-intake/internal/core/health"
	"github.com/mohammed-shakir/raster-intake/internal/core/server"
	"github.com/mohammed-shakir/raster-intake/internal/logger"
	"github.com/mohammed-shakir/raster-intake/internal/publish"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	manifestFlag := flag.String("manifest", "", "manifest URI, prefix URI ending in / or comma separated image URIs")
	jobFlag := flag.String("job", "", "job id; reuse it with LEDGER_PATH to resume")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.FromEnv()
	if *manifestFlag != "" {
		cfg.Bulk.Manifest = strings.TrimSpace(*manifestFlag)
	}
	if *jobFlag != "" {
		cfg.Bulk.JobID = strings.TrimSpace(*jobFlag)
	}
	if cfg.Bulk.JobID == "" {
		cfg.Bulk.JobID = uuid.NewString()
	}

	log := app.Logger(cfg, "intake-bulk")
	if cfg.Bulk.Manifest == "" {
		log.Error("no manifest given; set MANIFEST or -manifest")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithJobID(ctx, cfg.Bulk.JobID)

	prov := app.Metrics("intake-bulk", Version)

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

	opts := bulk.Options{
		JobID:        cfg.Bulk.JobID,
		Concurrency:  cfg.Bulk.Concurrency,
		MaxRetries:   cfg.Bulk.MaxRetries,
		RetryBase:    cfg.Bulk.RetryBase,
		RetryMax:     cfg.Bulk.RetryMax,
		ItemTimeout:  cfg.Bulk.ItemTimeout,
		CollectionID: cfg.Item.CollectionID,
		CatalogURL:   cfg.Item.CatalogURL,
		Logger:       log,
	}
	if cfg.Bulk.LedgerPath != "" {
		ledger, err := bulk.OpenBoltLedger(cfg.Bulk.LedgerPath)
		if err != nil {
			log.Error("ledger open failed", "path", cfg.Bulk.LedgerPath, "err", err)
			return 1
		}
		defer func() { _ = ledger.Close() }()
		opts.Ledger = ledger
	}

	deps := map[string]health.Pinger{}
	if cfg.RedisAddr != "" {
		store, closeStore, err := app.CatalogStore(ctx, cfg, log)
		if err != nil {
			log.Warn("catalog store unavailable; collection will not be ensured", "err", err)
		} else {
			defer closeStore()
			opts.Collections = store
			deps["redis"] = store
		}
	}
	if cfg.Bulk.WriteReport {
		out, loc, err := src.Open(cfg.OutputURL)
		if err != nil {
			log.Error("report location invalid", "output", cfg.OutputURL, "err", err)
			return 1
		}
		opts.Reports, opts.ReportsKey = out, loc.Key
	}

	refs, err := bulk.ResolveManifest(ctx, src, cfg.Bulk.Manifest)
	if err != nil {
		log.Error("manifest resolve failed", "manifest", cfg.Bulk.Manifest, "err", err)
		return 1
	}

	coord := bulk.New(proc, opts)

	srvCtx, stopSrv := context.WithCancel(ctx)
	defer stopSrv()
	go func() {
		h := server.Handler(log, server.Routes{Metrics: prov.Handler(), Deps: deps, Jobs: coord})
		if err := server.Run(srvCtx, cfg.Addr, log, h); err != nil {
			log.Error("http server exited", "err", err)
		}
	}()

	log.Info("bulk job starting",
		"job_id", cfg.Bulk.JobID,
		"items", len(refs),
		"concurrency", cfg.Bulk.Concurrency,
		"max_retries", cfg.Bulk.MaxRetries,
		"version", Version)

	rep, err := coord.Run(ctx, refs)
	if err != nil {
		log.Error("bulk job failed", "err", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		log.Error("report encode failed", "err", err)
		return 1
	}
	log.Info("bulk job finished",
		"total", rep.Total,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed,
		"pending", rep.Pending,
		"canceled", rep.Canceled)
	return 0
}
