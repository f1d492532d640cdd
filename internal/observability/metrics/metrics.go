package metrics

import "github.com/prometheus/client_golang/prometheus"

// AdapterMetrics exposes counters/histograms for outbound PMS traffic.
type AdapterMetrics struct {
	requestsTotal      *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	breakerTransitions *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
}

func NewAdapterMetrics(reg prometheus.Registerer) *AdapterMetrics {
	m := &AdapterMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pms",
			Subsystem: "adapter",
			Name:      "requests_total",
			Help:      "Total outbound PMS requests",
		}, []string{"vendor", "endpoint", "outcome"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pms",
			Subsystem: "adapter",
			Name:      "request_latency_seconds",
			Help:      "Latency of outbound PMS requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"vendor", "endpoint"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pms",
			Subsystem: "adapter",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{"vendor", "endpoint", "to"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pms",
			Subsystem: "adapter",
			Name:      "reference_cache_total",
			Help:      "Reference cache lookups",
		}, []string{"vendor", "kind", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestLatency, m.breakerTransitions, m.cacheHits)
	return m
}

func (m *AdapterMetrics) ObserveRequest(vendor, endpoint, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(vendor, endpoint, outcome).Inc()
	m.requestLatency.WithLabelValues(vendor, endpoint).Observe(seconds)
}

func (m *AdapterMetrics) ObserveBreakerTransition(vendor, endpoint, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(vendor, endpoint, to).Inc()
}

func (m *AdapterMetrics) ObserveCache(vendor, kind, result string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(vendor, kind, result).Inc()
}
