package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	ErrorsTotal       *prometheus.CounterVec
	ListingsEnriched  prometheus.Counter
	QuotaRemaining    prometheus.Gauge
	ThrottleWaits     *prometheus.CounterVec
	RateCacheTotal    *prometheus.CounterVec
	CatalogCacheTotal *prometheus.CounterVec
	SellersTotal      *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_requests_total",
			Help: "Total upstream API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_request_duration_seconds",
			Help:    "Upstream API round-trip latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "Total upstream errors by type.",
		},
		[]string{"error_type"},
	)
	listings := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_listings_enriched_total",
			Help: "Total for-sale listings enriched.",
		},
	)
	quota := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_quota_remaining",
			Help: "Last rate-limit quota reported by the upstream API.",
		},
	)
	throttles := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_throttle_waits_total",
			Help: "Governor waits by tier.",
		},
		[]string{"tier"},
	)
	rateCache := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_rate_cache_total",
			Help: "Currency normalizations by outcome.",
		},
		[]string{"outcome"},
	)
	catalogCache := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_catalog_cache_total",
			Help: "Catalog lookups by outcome.",
		},
		[]string{"outcome"},
	)
	sellers := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_sellers_total",
			Help: "Sellers processed by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(requests, requestDuration, errorsTotal, listings, quota, throttles, rateCache, catalogCache, sellers)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ErrorsTotal:       errorsTotal,
		ListingsEnriched:  listings,
		QuotaRemaining:    quota,
		ThrottleWaits:     throttles,
		RateCacheTotal:    rateCache,
		CatalogCacheTotal: catalogCache,
		SellersTotal:      sellers,
	}
}

// IncRequest increments the requests counter for an endpoint.
func (m *Metrics) IncRequest(endpoint string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint).Inc()
}

// ObserveDuration records an upstream request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncListings increments the enriched listings counter.
func (m *Metrics) IncListings() {
	if m == nil {
		return
	}
	m.ListingsEnriched.Inc()
}

// SetQuota records the last reported quota.
func (m *Metrics) SetQuota(remaining int) {
	if m == nil {
		return
	}
	m.QuotaRemaining.Set(float64(remaining))
}

// IncThrottle counts a governor wait in the given tier.
func (m *Metrics) IncThrottle(tier string) {
	if m == nil {
		return
	}
	m.ThrottleWaits.WithLabelValues(tier).Inc()
}

// IncRateCache counts a normalization outcome.
func (m *Metrics) IncRateCache(outcome string) {
	if m == nil {
		return
	}
	m.RateCacheTotal.WithLabelValues(outcome).Inc()
}

// IncCatalogCache counts a catalog lookup outcome.
func (m *Metrics) IncCatalogCache(outcome string) {
	if m == nil {
		return
	}
	m.CatalogCacheTotal.WithLabelValues(outcome).Inc()
}

// IncSeller counts a seller outcome.
func (m *Metrics) IncSeller(outcome string) {
	if m == nil {
		return
	}
	m.SellersTotal.WithLabelValues(outcome).Inc()
}
