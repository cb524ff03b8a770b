package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hitsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webtrack",
		Subsystem: "relay",
		Name:      "hits_forwarded_total",
		Help:      "Hits delivered to the collector.",
	})
	hitsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webtrack",
		Subsystem: "relay",
		Name:      "hits_failed_total",
		Help:      "Hits the collector did not accept.",
	})
	forwardLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "webtrack",
		Subsystem: "relay",
		Name:      "forward_latency_seconds",
		Help:      "Time between accepting a hit and delivering its batch.",
		Buckets:   prometheus.DefBuckets,
	})
)
