package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters. All of these are best-effort observability: callers
// must never fail a request or a job because of them.
var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attribution",
		Name:      "events_ingested_total",
		Help:      "Inbound tracking events accepted at the ingest boundary.",
	}, []string{"tenant", "category"})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attribution",
		Name:      "publish_failures_total",
		Help:      "Broker publishes that exhausted the retry budget and fell back to the buffer table.",
	})

	SignalsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attribution",
		Name:      "signals_persisted_total",
		Help:      "Signals written by the reconciler, by billability verdict.",
	}, []string{"tenant", "billable"})

	SignalsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attribution",
		Name:      "signals_duplicate_total",
		Help:      "Deliveries skipped because the dedup id was already persisted.",
	})

	DeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attribution",
		Name:      "dead_lettered_total",
		Help:      "Deliveries routed to the dead-letter queue, by failure stage.",
	}, []string{"stage"})

	Replays = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attribution",
		Name:      "dlq_replays_total",
		Help:      "Administrator-triggered DLQ replays, by outcome.",
	}, []string{"outcome"})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attribution",
		Name:      "reconcile_duration_seconds",
		Help:      "Wall time of one reconcile cycle, queue callback to ack.",
		Buckets:   prometheus.DefBuckets,
	})
)
