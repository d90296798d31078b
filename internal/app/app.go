// Package app wires configuration into the components shared by the intake binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"

	"github.com/mohammed-shakir/raster-intake/internal/catalog"
	"github.com/mohammed-shakir/raster-intake/internal/catalog/redisstore"
	"github.com/mohammed-shakir/raster-intake/internal/core/config"
	"github.com/mohammed-shakir/raster-intake/internal/core/observability"
	"github.com/mohammed-shakir/raster-intake/internal/extract"
	"github.com/mohammed-shakir/raster-intake/internal/logger"
	h3mapper "github.com/mohammed-shakir/raster-intake/internal/mapper/h3"
	"github.com/mohammed-shakir/raster-intake/internal/metrics"
	"github.com/mohammed-shakir/raster-intake/internal/objectstore"
	"github.com/mohammed-shakir/raster-intake/internal/pipeline"
	"github.com/mohammed-shakir/raster-intake/internal/publish"
	"github.com/mohammed-shakir/raster-intake/internal/stac"
)

func Logger(cfg config.Config, component string) *slog.Logger {
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogPretty,
		Component: component,
	}, os.Stdout)
	return logger.NewSlog(&zl)
}

// Metrics creates the registry and registers the shared collectors on it.
func Metrics(binary, version string) *metrics.Provider {
	p := metrics.Init(metrics.Config{
		Build: metrics.BuildInfo{
			Version:   version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Binary:    binary,
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(p.Registerer())
	return p
}

// ObjectRouter builds the S3 client from config and a GCS client from the ambient
// credentials. A missing GCS credential only disables gs:// references.
func ObjectRouter(ctx context.Context, cfg config.Config, log *slog.Logger) (*objectstore.Router, func(), error) {
	s3, err := objectstore.NewS3Client(objectstore.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		return nil, nil, err
	}
	r := &objectstore.Router{S3: s3}
	closeFn := func() {}

	gcs, err := storage.NewClient(ctx)
	if err != nil {
		log.Warn("gcs disabled", "err", err)
	} else {
		r.GCS = gcs
		closeFn = func() { _ = gcs.Close() }
	}
	return r, closeFn, nil
}

// Processor assembles extract, build and publish for the configured output location.
func Processor(cfg config.Config, src *objectstore.Router, emitter publish.Emitter, log *slog.Logger) (*pipeline.Processor, error) {
	out, loc, err := src.Open(cfg.OutputURL)
	if err != nil {
		return nil, fmt.Errorf("output %s: %w", cfg.OutputURL, err)
	}

	ex := extract.New(src, extract.Options{
		CRSOverride: cfg.Extract.CRSOverride,
		Preview:     cfg.Extract.PreviewEnabled,
		Stats:       cfg.Extract.StatsEnabled,
		PreviewSize: cfg.Extract.PreviewSize,
		TempDir:     cfg.Extract.TempDir,
	}, log)
	b := stac.NewBuilder(stac.Config{
		CatalogURL:         cfg.Item.CatalogURL,
		AssetBaseURL:       loc.String(),
		DefaultDatetimeNow: cfg.Item.DefaultDatetimeNow,
		H3Res:              cfg.Item.H3Res,
		H3MaxCells:         cfg.Item.H3MaxCells,
	}, h3mapper.New())
	pub := publish.New(out, loc.Key, emitter, publish.Options{Logger: log})

	return pipeline.NewProcessor(ex, b, pub, pipeline.Defaults{
		CollectionID:  cfg.Item.CollectionID,
		TileServerURL: cfg.Item.TileServerURL,
	}, log), nil
}

func CatalogStore(ctx context.Context, cfg config.Config, log *slog.Logger) (*catalog.RedisStore, func(), error) {
	cli, err := redisstore.New(ctx, cfg.RedisAddr,
		redisstore.WithPoolSize(cfg.Writer.MaxInflight*2),
		redisstore.WithReadTimeout(cfg.Writer.StoreTimeout),
		redisstore.WithWriteTimeout(cfg.Writer.StoreTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	return catalog.NewRedisStore(cli, log).WithHierarchy(h3mapper.New()), func() { _ = cli.Close() }, nil
}
