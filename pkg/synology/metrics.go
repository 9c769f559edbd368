package synology

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	loginAccepted = "accepted"
	loginRejected = "rejected"
)

// Metrics counts login and authentication outcomes. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	logins          *prometheus.CounterVec
	authentications *prometheus.CounterVec
}

// NewMetrics creates bridge metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dsbridge_logins_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		authentications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dsbridge_authentications_total",
				Help: "Total number of session authentications by whether a user was found",
			},
			[]string{"authenticated"},
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.logins.Describe(ch)
	m.authentications.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.logins.Collect(ch)
	m.authentications.Collect(ch)
}

func (m *Metrics) recordLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) recordAuthenticate(found bool) {
	if m == nil {
		return
	}
	label := "false"
	if found {
		label = "true"
	}
	m.authentications.WithLabelValues(label).Inc()
}
