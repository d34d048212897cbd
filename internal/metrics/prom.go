// Package metrics holds the Prometheus collectors for comparisons and a
// rolling latency window served by the stats endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// comparisonsTotal counts comparisons by outcome status.
	comparisonsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docdiff_comparisons_total",
		Help: "Total document comparisons by status",
	}, []string{"status"})

	// comparisonDuration tracks end-to-end comparison latency.
	comparisonDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docdiff_comparison_duration_seconds",
		Help:    "Comparison duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"status"})

	// comparisonNodes tracks tree sizes after pruning.
	comparisonNodes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docdiff_comparison_nodes",
		Help:    "Nodes per tree entering the edit distance engine",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
	}, []string{"side"})

	// keyrootPairs tracks the number of keyroot pairs solved per comparison.
	keyrootPairs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docdiff_keyroot_pairs",
		Help:    "Keyroot pairs solved per comparison",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	// queueDepth tracks pending asynchronous diff jobs.
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docdiff_job_queue_depth",
		Help: "Asynchronous diff jobs waiting for a worker",
	})

	// fetchTotal counts revision fetches by outcome.
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docdiff_revision_fetch_total",
		Help: "Revision fetches from the wiki API by result",
	}, []string{"result"})
)

// Comparison describes one finished comparison.
type Comparison struct {
	Status       string
	Duration     time.Duration
	PrevNodes    int
	CurrNodes    int
	KeyrootPairs int
}

// RecordComparison records a comparison in the Prometheus collectors.
func RecordComparison(c Comparison) {
	comparisonsTotal.WithLabelValues(c.Status).Inc()
	comparisonDuration.WithLabelValues(c.Status).Observe(c.Duration.Seconds())
	if c.PrevNodes > 0 {
		comparisonNodes.WithLabelValues("prev").Observe(float64(c.PrevNodes))
	}
	if c.CurrNodes > 0 {
		comparisonNodes.WithLabelValues("curr").Observe(float64(c.CurrNodes))
	}
	if c.KeyrootPairs > 0 {
		keyrootPairs.Observe(float64(c.KeyrootPairs))
	}
}

// SetQueueDepth reports the current job queue depth.
func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

// RecordFetch counts one revision fetch; result is "ok", "retryable" or "error".
func RecordFetch(result string) { fetchTotal.WithLabelValues(result).Inc() }
