/*
Package metrics provides Prometheus metrics collection and exposition for
a Toka kernel node.

The metrics package defines and registers every toka_* metric using the
Prometheus client library, giving observability into kernel submission
outcomes, opcode dispatch, bus subscriber health, event store commits,
and Raft replication state. Metrics are exposed via an HTTP endpoint for
scraping by Prometheus servers.

# Metrics Catalog

Kernel Metrics:

toka_kernel_submissions_total{outcome}:
  - Type: Counter
  - Description: Total kernel submissions by outcome (ok, capability_denied,
    invalid_operation, handler_failed)

toka_kernel_submit_duration_seconds:
  - Type: Histogram
  - Description: Time from authenticate through publish for one submission

toka_entities_total:
  - Type: Gauge
  - Description: Total entities currently known to world state

Opcode Registry Metrics:

toka_registry_handlers_total:
  - Type: Gauge
  - Description: Total opcode handlers currently registered

toka_registry_dispatch_duration_seconds{handled}:
  - Type: Histogram
  - Description: Time taken for a registry dispatch call, by whether a
    handler claimed the operation

Event Bus Metrics:

toka_bus_subscribers_total:
  - Type: Gauge
  - Description: Total live event bus subscriptions

toka_bus_subscriber_lag_total:
  - Type: Counter
  - Description: Cumulative count of events dropped from subscriber rings
    due to a full buffer

Event Store Metrics:

toka_eventstore_commits_total:
  - Type: Counter
  - Description: Total events committed to the event store

toka_eventstore_commit_duration_seconds:
  - Type: Histogram
  - Description: Time taken to commit an event to the store

Raft Metrics:

toka_raft_is_leader:
  - Type: Gauge
  - Description: Whether this node is Raft leader (1=leader, 0=follower)

toka_raft_peers_total:
  - Type: Gauge
  - Description: Total Raft peers in the cluster

toka_raft_log_index / toka_raft_applied_index:
  - Type: Gauge
  - Description: Current and last-applied Raft log index

toka_raft_apply_duration_seconds / toka_raft_commit_duration_seconds:
  - Type: Histogram
  - Description: Time to apply a proposal / time the FSM spends committing it

toka_cluster_idempotency_replays_total:
  - Type: Counter
  - Description: process_message proposals served from the idempotency
    table instead of re-applied

# Usage

	import "github.com/scrappyAI/toka/pkg/metrics"

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.SubmitDuration)

	metrics.EntitiesTotal.Set(float64(count))

	http.Handle("/metrics", metrics.Handler())

# Design Patterns

Package Init Registration:
  - Every metric is registered in init() via MustRegister
  - Panics on duplicate registration, so metrics are available before main()

Timer Pattern:
  - Create a timer at the start of an operation, defer ObserveDuration at
    the end; ObserveDurationVec takes the same approach for label-carrying
    histograms (registry dispatch's "handled" label)

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
