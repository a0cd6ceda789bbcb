// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the daemon's Prometheus collectors: eBPF map
// sizes, supervisor status gauges, and DNS steering cache/resolver
// counters, grounded on the teacher's internal/ebpf/metrics.Metrics
// shape (a plain struct of prometheus instruments registered once at
// startup) rather than its dashboard-era nftables collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/flywall/internal/ebpf/maps"
	"grimm.is/flywall/internal/supervisor"
)

// Registry holds every collector landscaped exports. Register it with a
// prometheus.Registerer once during startup.
type Registry struct {
	MapEntries    *prometheus.GaugeVec
	MapMaxEntries *prometheus.GaugeVec

	ServiceStatus *prometheus.GaugeVec

	DNSCacheHits     prometheus.Counter
	DNSCacheMisses   prometheus.Counter
	DNSResolveErrors *prometheus.CounterVec
	ResolverLatency  prometheus.Histogram
}

// New constructs a Registry. Call MustRegister to attach it to reg.
func New() *Registry {
	return &Registry{
		MapEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "landscaped_ebpf_map_entries",
			Help: "Current entry count of an eBPF map.",
		}, []string{"map_name"}),
		MapMaxEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "landscaped_ebpf_map_max_entries",
			Help: "Configured maximum entry count of an eBPF map.",
		}, []string{"map_name"}),
		ServiceStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "landscaped_service_status",
			Help: "Per-interface service supervisor status (0=stop,1=staring,2=running,3=stopping).",
		}, []string{"kind", "iface"}),
		DNSCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "landscaped_dns_cache_hits_total",
			Help: "Total DNS steering cache hits.",
		}),
		DNSCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "landscaped_dns_cache_misses_total",
			Help: "Total DNS steering cache misses.",
		}),
		DNSResolveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "landscaped_dns_resolve_errors_total",
			Help: "Total upstream DNS resolution failures by cause.",
		}, []string{"cause"}),
		ResolverLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "landscaped_dns_resolver_latency_seconds",
			Help:    "Upstream DNS resolver round-trip latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// MustRegister attaches every collector in r to reg.
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		r.MapEntries, r.MapMaxEntries, r.ServiceStatus,
		r.DNSCacheHits, r.DNSCacheMisses, r.DNSResolveErrors, r.ResolverLatency,
	)
}

// SampleMaps snapshots mgr's current MapInfo stats into the gauges.
func (r *Registry) SampleMaps(mgr *maps.Manager) {
	for name, info := range mgr.GetStats() {
		r.MapEntries.WithLabelValues(name).Set(float64(info.CurrentSize))
		r.MapMaxEntries.WithLabelValues(name).Set(float64(info.MaxEntries))
	}
}

// SampleServiceStatus snapshots one service kind's supervisor statuses.
func (r *Registry) SampleServiceStatus(kind string, status map[string]supervisor.Status) {
	for iface, st := range status {
		r.ServiceStatus.WithLabelValues(kind, iface).Set(float64(st))
	}
}

// CacheHit, CacheMiss, ResolveError, and ObserveLatency implement
// internal/steering/dns.Recorder so a Registry can be handed straight to
// dns.Manager.SetRecorder.
func (r *Registry) CacheHit()  { r.DNSCacheHits.Inc() }
func (r *Registry) CacheMiss() { r.DNSCacheMisses.Inc() }

func (r *Registry) ResolveError(cause string) { r.DNSResolveErrors.WithLabelValues(cause).Inc() }
func (r *Registry) ObserveLatency(seconds float64) { r.ResolverLatency.Observe(seconds) }
