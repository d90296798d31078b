package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	itemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_items_total",
			Help: "Items reaching a terminal state, by status and error kind.",
		},
		[]string{"status", "kind"},
	)

	stageSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intake_stage_duration_seconds",
			Help:    "Latency of one pipeline stage for one item.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"stage", "result"},
	)

	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_retries_total",
			Help: "Retry attempts scheduled, by error kind.",
		},
		[]string{"kind"},
	)

	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_uploads_total",
			Help: "Artifact uploads by result (uploaded, skipped, error).",
		},
		[]string{"result"},
	)

	inflightItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "intake_inflight_items",
			Help: "Items currently being processed by bulk workers.",
		},
	)

	writerOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_writer_outcomes_total",
			Help: "Catalog writer results per consumed message.",
		},
		[]string{"outcome", "action"},
	)

	storeOpSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_store_op_duration_seconds",
			Help:    "Latency of catalog store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op", "result"},
	)

	consumerLagSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag_seconds",
			Help: "Approximate lag: now - message.timestamp.",
		},
		[]string{"topic"},
	)

	kafkaConsumerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)

	registerOnce sync.Once
)

// Init registers the intake collectors once; later calls are no-ops.
func Init(r prometheus.Registerer) {
	if r == nil {
		return
	}
	registerOnce.Do(func() {
		r.MustRegister(
			httpRequestsTotal,
			httpRequestDurationSeconds,
			itemsTotal,
			stageSeconds,
			retriesTotal,
			uploadsTotal,
			inflightItems,
			writerOutcomes,
			storeOpSeconds,
			consumerLagSeconds,
			kafkaConsumerErrors,
		)
	})
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func IncItem(status, kind string) {
	if kind == "" {
		kind = "none"
	}
	itemsTotal.WithLabelValues(status, kind).Inc()
}

func ObserveStage(stage string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	stageSeconds.WithLabelValues(stage, res).Observe(durationSeconds)
}

func IncRetry(kind string) {
	retriesTotal.WithLabelValues(kind).Inc()
}

func AddUploads(result string, n int) {
	if n <= 0 {
		return
	}
	uploadsTotal.WithLabelValues(result).Add(float64(n))
}

func IncInflight() { inflightItems.Inc() }
func DecInflight() { inflightItems.Dec() }

func IncWriterOutcome(outcome, action string) {
	if action == "" {
		action = "none"
	}
	writerOutcomes.WithLabelValues(outcome, action).Inc()
}

func ObserveStoreOp(op string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	storeOpSeconds.WithLabelValues(op, res).Observe(durationSeconds)
}

func SetConsumerLagSeconds(topic string, v float64) {
	if v < 0 {
		v = 0
	}
	consumerLagSeconds.WithLabelValues(topic).Set(v)
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}
