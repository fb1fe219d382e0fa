package core

// Metrics — Prometheus counters/gauges for the subsystems this package owns.
//
// Each *Metrics owns its own prometheus.NewRegistry(); vnsd builds one and
// shares it across its NamespaceStore, Admission and Replicator. Methods are
// nil-receiver-safe so a node that never wires a *Metrics still runs without
// a nil check at every call site.

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector the namespace/admission/
// replication subsystems update. A nil *Metrics is valid everywhere it is
// used (all methods below are nil-receiver safe) so components that don't
// care about metrics never need to construct one.
type Metrics struct {
	registry *prometheus.Registry

	AdmissionRejected *prometheus.CounterVec
	DeltasApplied     *prometheus.CounterVec
	DeltasDiscarded   *prometheus.CounterVec
	SweepRemoved      prometheus.Counter
	QueueDepth        prometheus.Gauge
	NamespaceEntries  prometheus.Gauge
}

// NewMetrics constructs and registers a fresh Metrics instance against its
// own registry, so two stores in one process (common in tests) never
// collide on collector names.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		AdmissionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vns_admission_rejected_total",
			Help: "Admission checks rejected, labeled by error kind.",
		}, []string{"kind"}),
		DeltasApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vns_deltas_applied_total",
			Help: "Inbound deltas merged, labeled by operation.",
		}, []string{"op"}),
		DeltasDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vns_deltas_discarded_total",
			Help: "Inbound deltas discarded, labeled by reason.",
		}, []string{"reason"}),
		SweepRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vns_sweep_removed_total",
			Help: "Entries removed by the expiry sweep.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vns_replication_queue_depth",
			Help: "Current depth of the outbound delta queue.",
		}),
		NamespaceEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vns_namespace_entries",
			Help: "Current number of entries in the namespace, including reserved names.",
		}),
	}
	reg.MustRegister(
		m.AdmissionRejected,
		m.DeltasApplied,
		m.DeltasDiscarded,
		m.SweepRemoved,
		m.QueueDepth,
		m.NamespaceEntries,
	)
	return m
}

// Registry exposes the underlying Prometheus registry, for wiring a
// promhttp.HandlerFor in the HTTP surface.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) admissionRejected(kind string) {
	if m == nil {
		return
	}
	m.AdmissionRejected.WithLabelValues(kind).Inc()
}

func (m *Metrics) deltaApplied(op string) {
	if m == nil {
		return
	}
	m.DeltasApplied.WithLabelValues(op).Inc()
}

func (m *Metrics) deltaDiscarded(reason string) {
	if m == nil {
		return
	}
	m.DeltasDiscarded.WithLabelValues(reason).Inc()
}

func (m *Metrics) sweepRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweepRemoved.Add(float64(n))
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) setNamespaceEntries(n int) {
	if m == nil {
		return
	}
	m.NamespaceEntries.Set(float64(n))
}
