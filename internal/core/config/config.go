package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type KafkaCfg struct {
	Brokers         []string
	ItemsTopic      string
	RequestsTopic   string
	DeadLetterTopic string
	GroupID         string
	ClientID        string
}

type BulkCfg struct {
	Concurrency int
	MaxRetries  int
	RetryBase   time.Duration
	RetryMax    time.Duration
	ItemTimeout time.Duration
	LedgerPath  string
	Manifest    string
	JobID       string
	WriteReport bool
}

type ExtractCfg struct {
	CRSOverride    int
	PreviewEnabled bool
	StatsEnabled   bool
	PreviewSize    int
	TempDir        string
}

type ItemCfg struct {
	CollectionID       string
	TileServerURL      string
	CatalogURL         string
	DefaultDatetimeNow bool
	H3Res              int
	H3MaxCells         int
}

type WriterCfg struct {
	MaxInflight  int
	DedupeSize   int
	StoreTimeout time.Duration
}

type Config struct {
	Addr      string
	LogLevel  string
	LogPretty bool

	RedisAddr string
	OutputURL string

	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool

	Kafka   KafkaCfg
	Bulk    BulkCfg
	Extract ExtractCfg
	Item    ItemCfg
	Writer  WriterCfg
}

func FromEnv() Config {
	h3res := getint("H3_RES", 6)
	if h3res < 0 {
		h3res = 0
	}
	if h3res > 15 {
		h3res = 15
	}

	conc := getint("THREAD_WORKERS", runtime.GOMAXPROCS(0))
	if conc < 1 {
		conc = 1
	}
	retries := getint("MAX_RETRIES", 3)
	if retries < 0 {
		retries = 0
	}

	return Config{
		Addr:      getenv("ADDR", ":8090"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogPretty: getbool("LOG_PRETTY", false),

		RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
		OutputURL: getenv("OUTPUT_URL", "file:///tmp/raster-intake"),

		S3Endpoint:  getenv("S3_ENDPOINT", "s3.amazonaws.com"),
		S3Region:    getenv("AWS_DEFAULT_REGION", "us-west-2"),
		S3AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		S3SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		S3UseSSL:    getbool("S3_USE_SSL", true),

		Kafka: KafkaCfg{
			Brokers:         getlist("KAFKA_BROKERS", "localhost:9092"),
			ItemsTopic:      getenv("ITEMS_TOPIC", "stac-items"),
			RequestsTopic:   getenv("REQUESTS_TOPIC", "intake-requests"),
			DeadLetterTopic: getenv("DLQ_TOPIC", "stac-items-dlq"),
			GroupID:         getenv("KAFKA_GROUP_ID", "catalog-writer"),
			ClientID:        getenv("KAFKA_CLIENT_ID", "raster-intake"),
		},
		Bulk: BulkCfg{
			Concurrency: conc,
			MaxRetries:  retries,
			RetryBase:   getduration("RETRY_BASE", 500*time.Millisecond),
			RetryMax:    getduration("RETRY_MAX", 30*time.Second),
			ItemTimeout: getduration("ITEM_TIMEOUT", 5*time.Minute),
			LedgerPath:  getenv("LEDGER_PATH", ""),
			Manifest:    getenv("MANIFEST", ""),
			JobID:       getenv("JOB_ID", ""),
			WriteReport: getbool("WRITE_REPORT", true),
		},
		Extract: ExtractCfg{
			CRSOverride:    getint("CRS_OVERRIDE", 0),
			PreviewEnabled: getbool("PREVIEW_ENABLED", true),
			StatsEnabled:   getbool("STATS_ENABLED", true),
			PreviewSize:    getint("PREVIEW_SIZE", 1024),
			TempDir:        getenv("TMP_DIR", os.TempDir()),
		},
		Item: ItemCfg{
			CollectionID:       getenv("COLLECTION_ID", "OSML"),
			TileServerURL:      getenv("TILE_SERVER_URL", ""),
			CatalogURL:         strings.TrimRight(getenv("CATALOG_URL", "http://localhost:8080"), "/"),
			DefaultDatetimeNow: getbool("DEFAULT_DATETIME_NOW", false),
			H3Res:              h3res,
			H3MaxCells:         getint("H3_MAX_CELLS", 512),
		},
		Writer: WriterCfg{
			MaxInflight:  getint("WRITER_MAX_INFLIGHT", 16),
			DedupeSize:   getint("WRITER_DEDUPE_SIZE", 10000),
			StoreTimeout: getduration("STORE_OP_TIMEOUT", 2*time.Second),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// comma separated, blanks dropped
func getlist(k, def string) []string {
	var out []string
	for p := range strings.SplitSeq(getenv(k, def), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
