package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	flowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txcore",
			Name:      "flows_total",
			Help:      "finished flows by action and result",
		},
		[]string{"action", "result"},
	)

	flowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "txcore",
			Name:      "flow_duration_seconds",
			Help:      "time from start to a terminal state",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"action"},
	)

	flowsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "txcore",
			Name:      "flows_in_flight",
			Help:      "flows between IDLE and a terminal state",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(flowsTotal, flowDuration, flowsInFlight)
}

func traceFlowStarted(action string) {
	flowsInFlight.With(prometheus.Labels{"action": action}).Inc()
}

func traceFlowFinished(action, result string, duration time.Duration) {
	flowsInFlight.With(prometheus.Labels{"action": action}).Dec()
	flowsTotal.With(prometheus.Labels{"action": action, "result": result}).Inc()
	flowDuration.With(prometheus.Labels{"action": action}).Observe(duration.Seconds())
}
