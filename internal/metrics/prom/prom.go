// Package prom adapts BLINK's cache and engine metrics hooks to
// Prometheus, following the teacher library's metrics/prom adapter
// pattern: construct once, register with a Registerer, and hand the two
// small interfaces it implements to the components that need them.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinkdb/blink/internal/cache"
	"github.com/blinkdb/blink/internal/engine"
)

// Adapter implements both cache.Metrics and engine.Metrics, exporting
// Prometheus counters/gauges for the whole storage engine. Safe for
// concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  *prometheus.CounterVec
	size    prometheus.Gauge

	queueDepth   prometheus.Gauge
	writeDropped prometheus.Counter
	syncFallback prometheus.Counter
}

// New constructs a Prometheus adapter and registers its metrics with reg
// (nil => prometheus.DefaultRegisterer).
func New(reg prometheus.Registerer, ns string) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "cache", Name: "hits_total", Help: "Cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "cache", Name: "misses_total", Help: "Cache misses",
		}),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "cache", Name: "evictions_total", Help: "Cache evictions by reason",
		}, []string{"reason"}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "cache", Name: "size_entries", Help: "Number of resident cache entries",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "engine", Name: "write_queue_depth", Help: "Pending write-behind items",
		}),
		writeDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "engine", Name: "writes_dropped_total", Help: "Background writes dropped after a durable-map error",
		}),
		syncFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "engine", Name: "sync_fallback_total", Help: "Sets that degraded to a synchronous durable write because the queue was full",
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.size, a.queueDepth, a.writeDropped, a.syncFallback)
	return a
}

// ---- cache.Metrics ----

func (a *Adapter) Hit()  { a.hits.Inc() }
func (a *Adapter) Miss() { a.misses.Inc() }

func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

func (a *Adapter) Size(entries int) { a.size.Set(float64(entries)) }

func reason(r cache.EvictReason) string {
	if r == cache.EvictExplicit {
		return "explicit"
	}
	return "capacity"
}

// ---- engine.Metrics ----

func (a *Adapter) QueueDepth(n int)  { a.queueDepth.Set(float64(n)) }
func (a *Adapter) WriteDropped()     { a.writeDropped.Inc() }
func (a *Adapter) SyncFallback()     { a.syncFallback.Inc() }

var (
	_ cache.Metrics  = (*Adapter)(nil)
	_ engine.Metrics = (*Adapter)(nil)
)
