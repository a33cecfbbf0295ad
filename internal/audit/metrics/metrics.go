package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit trail and its export.
type Metrics struct {
	Appended       prometheus.Counter
	AppendFailures prometheus.Counter
	Exported       prometheus.Counter
	ExportFailures prometheus.Counter
	ExportDropped  prometheus.Counter
	ExportBacklog  prometheus.Gauge
	BreakerOpen    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Appended: f.NewCounter(prometheus.CounterOpts{
			Name: "popai_audit_entries_appended_total",
			Help: "Audit entries appended",
		}),
		AppendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "popai_audit_append_failures_total",
			Help: "Audit appends that failed; each one is a gap in the trail",
		}),
		Exported: f.NewCounter(prometheus.CounterOpts{
			Name: "popai_audit_export_records_total",
			Help: "Audit entries published to Kafka",
		}),
		ExportFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "popai_audit_export_failures_total",
			Help: "Failed Kafka publish batches",
		}),
		ExportDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "popai_audit_export_dropped_total",
			Help: "Audit entries dropped from the export buffer when full",
		}),
		ExportBacklog: f.NewGauge(prometheus.GaugeOpts{
			Name: "popai_audit_export_backlog",
			Help: "Audit entries waiting in the export buffer",
		}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "popai_audit_export_circuit_open",
			Help: "1 when the Kafka export circuit is open",
		}),
	}
}

func (m *Metrics) IncAppended() {
	if m != nil {
		m.Appended.Inc()
	}
}

func (m *Metrics) IncAppendFailure() {
	if m != nil {
		m.AppendFailures.Inc()
	}
}

func (m *Metrics) AddExported(n int) {
	if m != nil {
		m.Exported.Add(float64(n))
	}
}

func (m *Metrics) IncExportFailure() {
	if m != nil {
		m.ExportFailures.Inc()
	}
}

func (m *Metrics) IncExportDropped() {
	if m != nil {
		m.ExportDropped.Inc()
	}
}

func (m *Metrics) SetBacklog(n int) {
	if m != nil {
		m.ExportBacklog.Set(float64(n))
	}
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
