package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricSet struct {
	msgs     *prometheus.CounterVec
	proc     *prometheus.HistogramVec
	inflight prometheus.Gauge
}

func newMetricSet(r prometheus.Registerer) *metricSet {
	m := &metricSet{
		msgs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stream_msgs_total",
				Help: "Consumed messages by topic and outcome.",
			},
			[]string{"topic", "outcome"},
		),
		proc: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stream_processing_seconds",
				Help:    "Handler time for one message.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"topic"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stream_inflight_messages",
				Help: "Messages currently held by the handler.",
			},
		),
	}
	if r != nil {
		r.MustRegister(m.msgs, m.proc, m.inflight)
	}
	return m
}
