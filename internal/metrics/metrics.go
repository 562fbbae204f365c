package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ProviderCalls *prometheus.CounterVec
	Resolutions   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xagent_provider_calls_total",
			Help: "Provider calls by provider and outcome kind.",
		}, []string{"provider", "outcome"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xagent_workflow_resolutions_total",
			Help: "Generation workflows by how they were resolved.",
		}, []string{"workflow", "resolution"}),
	}
	if reg != nil {
		reg.MustRegister(m.ProviderCalls, m.Resolutions)
	}
	return m
}

func (m *Metrics) ProviderCall(provider, outcome string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) Resolved(workflow, resolution string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(workflow, resolution).Inc()
}
