package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionAttempts counts transaction attempts by backend and result.
	TransactionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_transaction_attempts_total",
		Help: "Total number of document store transaction attempts by result",
	}, []string{"backend", "result"})

	// StoreOperationLatency records store operation latency by backend, operation and collection.
	StoreOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedsync_store_operation_latency_seconds",
		Help:    "Document store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation", "collection"})

	// CascadeBatches counts committed cascade delete batches.
	CascadeBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_cascade_batches_total",
		Help: "Total number of committed cascade delete batches",
	})

	// CascadeDocumentsDeleted counts documents removed by cascade delete, by kind.
	CascadeDocumentsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_cascade_documents_deleted_total",
		Help: "Total number of documents removed by cascade delete",
	}, []string{"kind"})

	// LiveSubscriptions is the gauge of open subscription handles by kind.
	LiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feedsync_live_subscriptions",
		Help: "Number of open subscription handles",
	}, []string{"kind"})

	// SnapshotDeliveries counts callbacks delivered to subscription handles, by kind.
	SnapshotDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_snapshot_deliveries_total",
		Help: "Total number of snapshots delivered to subscribers",
	}, []string{"kind"})

	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})
)

// TrackStoreOperation returns a function that records operation latency when called (e.g. defer).
func TrackStoreOperation(backend, operation, collection string) func() {
	start := time.Now()
	return func() {
		StoreOperationLatency.WithLabelValues(backend, operation, collection).Observe(time.Since(start).Seconds())
	}
}
