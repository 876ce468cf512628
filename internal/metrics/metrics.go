// file: internal/metrics/metrics.go
// version: 1.1.0
// guid: 9f8e7d6c-5b4a-3210-9fed-cba876543210

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	resolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coverfetch",
		Name:      "resolutions_total",
		Help:      "Total number of cover resolutions by outcome (success, failure, cached)",
	}, []string{"outcome"})
	sourceHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coverfetch",
		Name:      "source_hits_total",
		Help:      "Total number of validated cover hits by source",
	}, []string{"source"})
	sourceSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coverfetch",
		Name:      "source_rate_limited_total",
		Help:      "Total number of source lookups skipped due to rate limiting",
	}, []string{"source"})
	resolutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "coverfetch",
		Name:      "resolution_duration_seconds",
		Help:      "Histogram of cover resolution durations in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.05, 1.6, 10), // ~50ms up to several seconds
	})
	backfillBooks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coverfetch",
		Name:      "backfill_books_total",
		Help:      "Total number of books processed by backfill runs by status",
	}, []string{"status"})

	booksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coverfetch",
		Name:      "books_total",
		Help:      "Current total number of tracked books",
	})
)

// Register initializes metrics with the global Prometheus registry (idempotent)
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(resolutionsTotal, sourceHits, sourceSkips,
			resolutionDuration, backfillBooks, booksGauge)
	})
}

// Resolution lifecycle helpers
func IncResolution(outcome string)    { resolutionsTotal.WithLabelValues(outcome).Inc() }
func IncSourceHit(source string)      { sourceHits.WithLabelValues(source).Inc() }
func IncSourceRateLimited(api string) { sourceSkips.WithLabelValues(api).Inc() }
func ObserveResolutionDuration(d time.Duration) {
	resolutionDuration.Observe(d.Seconds())
}
func IncBackfillBook(status string) { backfillBooks.WithLabelValues(status).Inc() }

// Gauges
func SetBooks(n int) { booksGauge.Set(float64(n)) }
