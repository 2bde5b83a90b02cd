// Package metrics exposes the Main Context's process-wide counters (spec
// §4.G) as Prometheus instruments, optionally served over --metrics-addr.
// Grounded on vjache-cie/cmd/cie/index.go's use of
// github.com/prometheus/client_golang/prometheus/promhttp for its own
// ingestion-pipeline metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups every counter/gauge the bundler reports.
type Registry struct {
	ModulesRefined   prometheus.Counter
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	ErrorsTotal      prometheus.Counter
	InFlightRefine   prometheus.Gauge
	MemCacheBytes    prometheus.Gauge
	reg              *prometheus.Registry
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		ModulesRefined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsb_modules_refined_total",
			Help: "Number of modules refined from source (cache misses that completed).",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsb_cache_hits_total",
			Help: "Number of module refinements served from the memory or disk cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsb_cache_misses_total",
			Help: "Number of module refinements that required a fresh transform.",
		}),
		ErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsb_errors_total",
			Help: "Number of reported diagnostics across all bundler instances.",
		}),
		InFlightRefine: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsb_refinements_in_flight",
			Help: "Number of module refinements currently executing.",
		}),
		MemCacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsb_mem_cache_bytes",
			Help: "Current size in bytes of the in-memory refined-module cache.",
		}),
	}
	reg.MustRegister(r.ModulesRefined, r.CacheHits, r.CacheMisses, r.ErrorsTotal, r.InFlightRefine, r.MemCacheBytes)
	return r
}

// Handler returns the HTTP handler to mount at --metrics-addr.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing the metrics handler at addr; it
// blocks, so callers run it in its own goroutine.
func (r *Registry) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	return http.ListenAndServe(addr, mux)
}
