package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("THREAD_WORKERS", "")
	cfg := FromEnv()

	if cfg.Item.CollectionID != "OSML" {
		t.Fatalf("collection=%q want OSML", cfg.Item.CollectionID)
	}
	if cfg.Item.H3Res != 6 {
		t.Fatalf("h3 res=%d want 6", cfg.Item.H3Res)
	}
	if cfg.Bulk.Concurrency < 1 {
		t.Fatalf("concurrency=%d want >=1", cfg.Bulk.Concurrency)
	}
	if cfg.Extract.PreviewSize != 1024 {
		t.Fatalf("preview size=%d", cfg.Extract.PreviewSize)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "localhost:9092" {
		t.Fatalf("brokers=%v", cfg.Kafka.Brokers)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("THREAD_WORKERS", "7")
	t.Setenv("MAX_RETRIES", "-2")
	t.Setenv("H3_RES", "22")
	t.Setenv("ITEM_TIMEOUT", "90s")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("CATALOG_URL", "https://stac.example.com/")
	t.Setenv("DEFAULT_DATETIME_NOW", "yes")

	cfg := FromEnv()
	if cfg.Bulk.Concurrency != 7 {
		t.Fatalf("concurrency=%d", cfg.Bulk.Concurrency)
	}
	if cfg.Bulk.MaxRetries != 0 {
		t.Fatalf("negative retries must clamp to 0, got %d", cfg.Bulk.MaxRetries)
	}
	if cfg.Item.H3Res != 15 {
		t.Fatalf("h3 res must clamp to 15, got %d", cfg.Item.H3Res)
	}
	if cfg.Bulk.ItemTimeout != 90*time.Second {
		t.Fatalf("timeout=%s", cfg.Bulk.ItemTimeout)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Fatalf("brokers=%v", cfg.Kafka.Brokers)
	}
	if cfg.Item.CatalogURL != "https://stac.example.com" {
		t.Fatalf("catalog url=%q", cfg.Item.CatalogURL)
	}
	if !cfg.Item.DefaultDatetimeNow {
		t.Fatalf("expected default datetime policy on")
	}
}
