package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts gateway traffic and refresh outcomes.
type Metrics struct {
	requests *prometheus.CounterVec
	refresh  *prometheus.CounterVec
	retries  prometheus.Counter
}

// NewMetrics registers the gateway collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expense_client_requests_total",
				Help: "API requests dispatched by the gateway, by method and status class",
			},
			[]string{"method", "status"},
		),
		refresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expense_client_token_refresh_total",
				Help: "Token refresh attempts by outcome",
			},
			[]string{"result"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "expense_client_request_retries_total",
				Help: "Requests resent once after a successful token refresh",
			},
		),
	}
	reg.MustRegister(m.requests, m.refresh, m.retries)
	return m
}

func (m *Metrics) observeRequest(method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, statusClass(status)).Inc()
}

func (m *Metrics) observeRefresh(result string) {
	if m == nil {
		return
	}
	m.refresh.WithLabelValues(result).Inc()
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status == 401:
		return "401"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
