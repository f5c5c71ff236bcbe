// Package metrics exposes the verifier's operational telemetry: a
// Prometheus registry for live scraping, plus the checkpoint.txt
// throughput log produced every 100 blocks.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BlockHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "verifier",
		Name:      "block_height",
		Help:      "Height of the most recently adopted or proposed block.",
	})

	TransactionsExecuted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "verifier",
		Name:      "transactions_executed_total",
		Help:      "Total transactions in proposed blocks that finished with errorCode=SUCCESS.",
	})

	TransactionsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "verifier",
		Name:      "transactions_invalid_total",
		Help:      "Total transactions that finished with errorCode=INVALID.",
	})

	BlocksProposed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "verifier",
		Name:      "blocks_proposed_total",
		Help:      "Total blocks this verifier won the PoS race and proposed.",
	})

	BlocksAdopted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "verifier",
		Name:      "blocks_adopted_total",
		Help:      "Total peer blocks adopted after losing the PoS race.",
	})

	ShardUpdateFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "verifier",
		Name:      "shard_update_failures_total",
		Help:      "Proposals whose storage-shard Update fan-out failed, counted once per proposal under shard=\"all\".",
	}, []string{"shard"})

	BatchExecutionSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "verifier",
		Name:      "batch_execution_seconds",
		Help:      "Wall-clock time to execute one height's transaction batch.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		BlockHeight,
		TransactionsExecuted,
		TransactionsInvalid,
		BlocksProposed,
		BlocksAdopted,
		ShardUpdateFailures,
		BatchExecutionSeconds,
	)
}

// Handler returns an HTTP handler for the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
