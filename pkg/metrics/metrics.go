package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Kernel metrics
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toka_kernel_submissions_total",
			Help: "Total number of kernel submissions by outcome",
		},
		[]string{"outcome"}, // ok, capability_denied, invalid_operation, handler_failed
	)

	SubmitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toka_kernel_submit_duration_seconds",
			Help:    "Time taken to process a kernel submission, from authenticate through publish",
			Buckets: prometheus.DefBuckets,
		},
	)

	EntitiesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toka_entities_total",
			Help: "Total number of entities currently known to world state",
		},
	)

	// Opcode registry metrics
	RegisteredHandlersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toka_registry_handlers_total",
			Help: "Total number of opcode handlers currently registered",
		},
	)

	HandlerDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toka_registry_dispatch_duration_seconds",
			Help:    "Time taken for a registry dispatch call, by whether a handler claimed the operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handled"},
	)

	// Event bus metrics
	BusSubscribersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toka_bus_subscribers_total",
			Help: "Total number of live event bus subscriptions",
		},
	)

	BusSubscriberLagTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "toka_bus_subscriber_lag_total",
			Help: "Cumulative count of events dropped from subscriber rings due to a full buffer",
		},
	)

	// Event store metrics
	EventsCommittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "toka_eventstore_commits_total",
			Help: "Total number of events committed to the event store",
		},
	)

	EventCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toka_eventstore_commit_duration_seconds",
			Help:    "Time taken to commit an event to the store",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toka_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toka_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toka_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toka_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toka_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toka_raft_commit_duration_seconds",
			Help:    "Time taken to commit a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IdempotencyReplaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "toka_cluster_idempotency_replays_total",
			Help: "Total number of process_message proposals served from the idempotency table instead of re-applied",
		},
	)
)

func init() {
	prometheus.MustRegister(SubmissionsTotal)
	prometheus.MustRegister(SubmitDuration)
	prometheus.MustRegister(EntitiesTotal)
	prometheus.MustRegister(RegisteredHandlersTotal)
	prometheus.MustRegister(HandlerDispatchDuration)
	prometheus.MustRegister(BusSubscribersTotal)
	prometheus.MustRegister(BusSubscriberLagTotal)
	prometheus.MustRegister(EventsCommittedTotal)
	prometheus.MustRegister(EventCommitDuration)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(RaftCommitDuration)
	prometheus.MustRegister(IdempotencyReplaysTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
