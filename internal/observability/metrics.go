package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// StoreOpLatency records entity store operation latency by operation and kind.
	StoreOpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kinship_store_op_latency_seconds",
		Help:    "Entity store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "kind"})

	// StoreTxRetries counts transactions retried after a serialization failure.
	StoreTxRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kinship_store_tx_retries_total",
		Help: "Total number of store transactions retried after a serialization failure",
	})

	// IndexInconsistencies counts index entries found pointing at missing records.
	IndexInconsistencies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_index_inconsistencies_total",
		Help: "Total number of index entries referencing missing records",
	}, []string{"component"})

	// RelationshipTransitions counts state machine events by outcome.
	RelationshipTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_relationship_transitions_total",
		Help: "Relationship state machine events by event and result",
	}, []string{"event", "result"})

	// PairLockWait records how long writers waited for a pair lock.
	PairLockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kinship_pair_lock_wait_seconds",
		Help:    "Time spent waiting for a relationship pair lock",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2},
	}, []string{"locker"})

	// DiscoveryScanned counts index entries examined per discovery query.
	DiscoveryScanned = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kinship_discovery_scanned_entries",
		Help:    "Index entries examined to fill one discovery page",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"index"})
)

// TrackStoreOp returns a function that records store latency when called (e.g. defer).
func TrackStoreOp(operation, kind string) func() {
	start := time.Now()
	return func() {
		StoreOpLatency.WithLabelValues(operation, kind).Observe(time.Since(start).Seconds())
	}
}
