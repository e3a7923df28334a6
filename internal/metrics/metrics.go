// Package metrics exposes the indexer's Prometheus instrumentation.
// The spec's non-goals exclude a full observability stack, but the
// ambient pipeline still counts what it does the way the pack's
// service-shaped examples do, via client_golang.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "producer",
		Name:      "events_published_total",
		Help:      "Events published to the bus, by event type.",
	}, []string{"event_type"})

	LogsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "producer",
		Name:      "logs_dropped_total",
		Help:      "Raw logs dropped during decode, by reason.",
	}, []string{"reason"})

	ReorgsDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "producer",
		Name:      "reorgs_detected_total",
		Help:      "Chain reorganizations detected and handled.",
	})

	CursorLastBlock = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "producer",
		Name:      "cursor_last_block",
		Help:      "Last block number the producer's cursor has advanced to.",
	}, []string{"chain_id"})

	MessagesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Messages processed by the consumer tier, by message type and outcome.",
	}, []string{"message_type", "outcome"})

	MessageProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "indexer",
		Subsystem: "consumer",
		Name:      "message_processing_duration_seconds",
		Help:      "Wall time to process one message, by message type.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"message_type"})
)

// MustRegister registers every collector in this package against reg.
// Call once at process start with prometheus.DefaultRegisterer (or a
// test registry).
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(EventsPublished, LogsDropped, ReorgsDetected, CursorLastBlock,
		MessagesProcessed, MessageProcessingDuration)
}
