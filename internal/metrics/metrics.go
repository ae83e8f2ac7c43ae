package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tixwizard"

// Metrics groups the collectors of the service. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Transitions     *prometheus.CounterVec
	Uploads         *prometheus.CounterVec
	UploadLatencyMS prometheus.Histogram
	Exports         *prometheus.CounterVec
	StorageDegraded prometheus.Counter
	SlotWrites      prometheus.Counter
	SlotsPurged     prometheus.Counter
	Sessions        prometheus.Gauge
	Requests        *prometheus.CounterVec
	LatencyMS       *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wizard",
			Name:      "operations_total",
			Help:      "Wizard operations by name and result.",
		}, []string{"op", "result"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "total",
			Help:      "Photo uploads by result.",
		}, []string{"result"}),
		UploadLatencyMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "duration_ms",
			Help:      "Photo upload latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "total",
			Help:      "Ticket exports by result.",
		}, []string{"result"}),
		StorageDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "degraded_total",
			Help:      "Sessions that fell back to memory-only storage.",
		}),
		SlotWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "slot_writes_total",
			Help:      "Slots committed to the durable backend.",
		}),
		SlotsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "slots_purged_total",
			Help:      "Expired slots removed from the durable backend.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Wizard sessions held in memory.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
	}

	m.registry.MustRegister(
		m.Transitions,
		m.Uploads,
		m.UploadLatencyMS,
		m.Exports,
		m.StorageDegraded,
		m.SlotWrites,
		m.SlotsPurged,
		m.Sessions,
		m.Requests,
		m.LatencyMS,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) Operation(op string, err error) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) Upload(durationMS float64, outcome string) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(outcome).Inc()
	m.UploadLatencyMS.Observe(durationMS)
}

func (m *Metrics) Export(err error) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Degraded() {
	if m == nil {
		return
	}
	m.StorageDegraded.Inc()
}

func (m *Metrics) SlotsWritten(n int) {
	if m == nil {
		return
	}
	m.SlotWrites.Add(float64(n))
}

func (m *Metrics) Purged(n int64) {
	if m == nil {
		return
	}
	m.SlotsPurged.Add(float64(n))
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(n))
}

func (m *Metrics) Request(handler, status string, durationMS float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(handler, status).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(durationMS)
}
