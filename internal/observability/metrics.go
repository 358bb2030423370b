// Package observability provides Prometheus metrics and operator HTTP endpoints.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Stream metrics
	StreamEvents     prometheus.Counter
	StreamReconnects prometheus.Counter
	RPCCallLatency   *prometheus.HistogramVec

	// Detection metrics
	ParseErrors      prometheus.Counter
	SignalsDetected  prometheus.Counter
	DuplicateSignals prometheus.Counter
	DedupErrors      *prometheus.CounterVec

	// Intent channel metrics
	IntentQueueDepth prometheus.Gauge
	IntentSendWait   prometheus.Histogram
	IntentsDropped   *prometheus.CounterVec

	// Position metrics
	PositionTransitions *prometheus.CounterVec
	OpenPositions       prometheus.Gauge
	RealizedPnL         prometheus.Gauge
	TickDuration        prometheus.Histogram
	PriceFetchLatency   prometheus.Histogram
	PriceFetchErrors    prometheus.Counter
	ExecutionLatency    *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastEventTimestamp prometheus.Gauge
	LastTickTimestamp  prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_sniper"
	}

	return &Metrics{
		StreamEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Total number of raw notifications received from the log stream",
		}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of stream reconnects",
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "parse_errors_total",
			Help:      "Total number of malformed stream messages skipped",
		}),
		SignalsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "signals_total",
			Help:      "Total number of trade signals emitted",
		}),
		DuplicateSignals: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "duplicate_signals_total",
			Help:      "Total number of signals suppressed by dedup",
		}),
		DedupErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "dedup_errors_total",
			Help:      "Total number of shared dedup backend errors",
		}, []string{"backend"}),

		IntentQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "intent",
			Name:      "queue_depth",
			Help:      "Current number of queued trade intents",
		}),
		IntentSendWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "intent",
			Name:      "send_wait_seconds",
			Help:      "Time a producer spent blocked on a full intent channel",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1, 5, 30},
		}),
		IntentsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intent",
			Name:      "unprocessed_total",
			Help:      "Intents that could not be turned into positions, by reason",
		}, []string{"reason"}),

		PositionTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "transitions_total",
			Help:      "Total number of position state transitions",
		}, []string{"from", "to", "reason"}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "open",
			Help:      "Current number of non-terminal positions",
		}),
		RealizedPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "realized_pnl_sol",
			Help:      "Cumulative realized P&L in SOL",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one exit-evaluation sweep",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),
		PriceFetchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "price_fetch_seconds",
			Help:      "Price source latency per position",
			Buckets:   prometheus.DefBuckets,
		}),
		PriceFetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "price_fetch_errors_total",
			Help:      "Total number of skipped evaluations due to price errors",
		}),
		ExecutionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "latency_seconds",
			Help:      "Trade executor latency by operation and outcome",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"op", "outcome"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastEventTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_timestamp",
			Help:      "Unix timestamp of the last stream notification",
		}),
		LastTickTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_tick_timestamp",
			Help:      "Unix timestamp of the last completed exit-evaluation tick",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordStreamEvent counts a received notification.
func RecordStreamEvent(unixSeconds float64) {
	DefaultMetrics.StreamEvents.Inc()
	DefaultMetrics.LastEventTimestamp.Set(unixSeconds)
}

// RecordReconnect counts a stream discontinuity.
func RecordReconnect() {
	DefaultMetrics.StreamReconnects.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordParseError counts a skipped malformed message.
func RecordParseError() {
	DefaultMetrics.ParseErrors.Inc()
}

// RecordSignal counts an emitted trade signal.
func RecordSignal() {
	DefaultMetrics.SignalsDetected.Inc()
}

// RecordDuplicate counts a signal suppressed by dedup.
func RecordDuplicate() {
	DefaultMetrics.DuplicateSignals.Inc()
}

// RecordDedupError counts a shared dedup backend failure.
func RecordDedupError(backend string) {
	DefaultMetrics.DedupErrors.WithLabelValues(backend).Inc()
}

// UpdateIntentDepth sets the intent queue depth gauge.
func UpdateIntentDepth(n int) {
	DefaultMetrics.IntentQueueDepth.Set(float64(n))
}

// RecordIntentWait records how long a producer was blocked.
func RecordIntentWait(seconds float64) {
	DefaultMetrics.IntentSendWait.Observe(seconds)
}

// RecordIntentUnprocessed counts an intent that did not become a position.
func RecordIntentUnprocessed(reason string) {
	DefaultMetrics.IntentsDropped.WithLabelValues(reason).Inc()
}

// RecordTransition counts a position state transition.
func RecordTransition(from, to, reason string) {
	DefaultMetrics.PositionTransitions.WithLabelValues(from, to, reason).Inc()
}

// UpdateOpenPositions sets the non-terminal positions gauge.
func UpdateOpenPositions(n int) {
	DefaultMetrics.OpenPositions.Set(float64(n))
}

// RecordRealizedPnL adds a closed position's P&L.
func RecordRealizedPnL(pnl float64) {
	DefaultMetrics.RealizedPnL.Add(pnl)
}

// RecordTick records a completed exit-evaluation sweep.
func RecordTick(seconds, unixSeconds float64) {
	DefaultMetrics.TickDuration.Observe(seconds)
	DefaultMetrics.LastTickTimestamp.Set(unixSeconds)
}

// RecordPriceFetch records price source latency and failures.
func RecordPriceFetch(seconds float64, err error) {
	DefaultMetrics.PriceFetchLatency.Observe(seconds)
	if err != nil {
		DefaultMetrics.PriceFetchErrors.Inc()
	}
}

// RecordExecution records a buy or sell attempt.
func RecordExecution(op, outcome string, seconds float64) {
	DefaultMetrics.ExecutionLatency.WithLabelValues(op, outcome).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
