package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a dedicated registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	authzDecisions    *prometheus.CounterVec
	inviteTransitions *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agencycrm",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agencycrm",
			Name:      "authz_decisions_total",
			Help:      "Workspace access decisions.",
		}, []string{"decision", "reason"}),
		inviteTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agencycrm",
			Name:      "invite_transitions_total",
			Help:      "Invite state transitions by target state.",
		}, []string{"to"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agencycrm",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"scope"}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.authzDecisions,
		m.inviteTransitions,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveRequest(method, route string, status int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) RecordDecision(decision, reason string) {
	m.authzDecisions.WithLabelValues(decision, reason).Inc()
}

func (m *Metrics) RecordInviteTransition(to string) {
	m.inviteTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) RecordRateLimited(scope string) {
	m.rateLimited.WithLabelValues(scope).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
