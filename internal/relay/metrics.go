package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var hitsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "webtrack",
	Subsystem: "relay",
	Name:      "hits_dropped_total",
	Help:      "Hits dropped because they could not be queued or forwarded.",
})
