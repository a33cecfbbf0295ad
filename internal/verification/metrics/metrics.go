package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification engine.
type Metrics struct {
	Submissions        *prometheus.CounterVec
	CapabilityDuration *prometheus.HistogramVec
	CapabilityFailures *prometheus.CounterVec
	AuditFailures      prometheus.Counter
	Scores             prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "popai_verification_submissions_total",
			Help: "Verification submissions by outcome",
		}, []string{"outcome"}), // outcome: "minted", "already_verified", or an error kind
		CapabilityDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "popai_verification_capability_duration_seconds",
			Help:    "Latency of liveness and behavioral capability calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"capability"}),
		CapabilityFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "popai_verification_capability_failures_total",
			Help: "Capability calls that failed or returned unusable output",
		}, []string{"capability"}),
		AuditFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "popai_verification_audit_append_failures_total",
			Help: "Verification hashes that could not be appended to the audit log",
		}),
		Scores: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "popai_verification_behavioral_score",
			Help:    "Distribution of behavioral scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

func (m *Metrics) IncSubmission(outcome string) {
	if m != nil {
		m.Submissions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveCapability(capability string, d time.Duration) {
	if m != nil {
		m.CapabilityDuration.WithLabelValues(capability).Observe(d.Seconds())
	}
}

func (m *Metrics) IncCapabilityFailure(capability string) {
	if m != nil {
		m.CapabilityFailures.WithLabelValues(capability).Inc()
	}
}

func (m *Metrics) IncAuditFailure() {
	if m != nil {
		m.AuditFailures.Inc()
	}
}

func (m *Metrics) ObserveScore(score float64) {
	if m != nil {
		m.Scores.Observe(score)
	}
}
