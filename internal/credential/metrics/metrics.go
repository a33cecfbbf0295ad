package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the credential ledger.
type Metrics struct {
	Minted        prometheus.Counter
	AlreadyHeld   prometheus.Counter
	NotifyFailure prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Minted: f.NewCounter(prometheus.CounterOpts{
			Name: "popai_credentials_minted_total",
			Help: "Credentials minted",
		}),
		AlreadyHeld: f.NewCounter(prometheus.CounterOpts{
			Name: "popai_credentials_already_held_total",
			Help: "Mint requests answered with an existing credential",
		}),
		NotifyFailure: f.NewCounter(prometheus.CounterOpts{
			Name: "popai_credentials_notify_failures_total",
			Help: "Mint notifications that could not be published",
		}),
	}
}

func (m *Metrics) IncMinted() {
	if m != nil {
		m.Minted.Inc()
	}
}

func (m *Metrics) IncAlreadyHeld() {
	if m != nil {
		m.AlreadyHeld.Inc()
	}
}

func (m *Metrics) IncNotifyFailure() {
	if m != nil {
		m.NotifyFailure.Inc()
	}
}
