package jit

import "github.com/prometheus/client_golang/prometheus"

// cacheMetrics holds the collectors SPEC_FULL.md's DOMAIN STACK section
// names for a Cache: a compile counter, a live-unit gauge, and a
// cumulative code-bytes counter. ascrivener-jam carries
// prometheus/client_golang in its own go.mod without ever calling into
// it, so there is no corpus usage pattern to ground the collector shape
// on beyond the dependency's presence (DESIGN.md); this follows the
// library's own documented idiom (plain New*, no promauto) rather than
// auto-registering with the default registry, since a JIT cache is a
// library component that shouldn't assume it owns the process's metrics
// endpoint.
type cacheMetrics struct {
	compiles  prometheus.Counter
	units     prometheus.Gauge
	codeBytes prometheus.Counter
}

func newCacheMetrics() *cacheMetrics {
	return &cacheMetrics{
		compiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jit_compiles_total",
			Help: "Total number of units successfully compiled.",
		}),
		units: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jit_cache_units",
			Help: "Number of compiled units currently held in the cache.",
		}),
		codeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jit_code_bytes_used",
			Help: "Cumulative number of native code bytes emitted across all compiles.",
		}),
	}
}

// Collectors returns every metric a Cache exposes, for a caller to hand
// to its own prometheus.Registerer.
func (m *cacheMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.compiles, m.units, m.codeBytes}
}
