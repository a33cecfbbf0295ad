package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the challenge registry.
type Metrics struct {
	Issued   prometheus.Counter
	Consumed *prometheus.CounterVec
	Swept    prometheus.Counter
}

// New registers the challenge metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounter(prometheus.CounterOpts{
			Name: "popai_challenges_issued_total",
			Help: "Challenges issued",
		}),
		Consumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "popai_challenges_consumed_total",
			Help: "Challenge consume attempts by outcome",
		}, []string{"outcome"}), // outcome: "ok", "not_found", "expired", "wrong_identity", "error"
		Swept: f.NewCounter(prometheus.CounterOpts{
			Name: "popai_challenges_swept_total",
			Help: "Expired challenges removed by the background sweeper",
		}),
	}
}

func (m *Metrics) IncIssued() {
	if m != nil {
		m.Issued.Inc()
	}
}

func (m *Metrics) IncConsumed(outcome string) {
	if m != nil {
		m.Consumed.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) AddSwept(n int) {
	if m != nil && n > 0 {
		m.Swept.Add(float64(n))
	}
}
