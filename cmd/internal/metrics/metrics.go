// Package metrics holds the Prometheus collectors of the DayCheck client and dev backend.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDropped = "dropped"
)

// Metrics groups every collector. Build it with New.
type Metrics struct {
	// SessionLogins counts login attempts by result.
	SessionLogins *prometheus.CounterVec
	// SessionRefreshes counts refresh attempts by result.
	SessionRefreshes *prometheus.CounterVec
	// SessionState is 1 for the current session state label and 0 otherwise.
	SessionState *prometheus.GaugeVec

	// StreamState is 1 for the current stream state label and 0 otherwise.
	StreamState *prometheus.GaugeVec
	// StreamReconnects counts scheduled reconnects.
	StreamReconnects prometheus.Counter
	// StreamExhausted counts streams that gave up after the attempt cap.
	StreamExhausted prometheus.Counter

	// NotificationsReceived counts notification events by result (success, dropped).
	NotificationsReceived *prometheus.CounterVec

	// HTTPRequests counts dev backend requests by route and status class.
	HTTPRequests *prometheus.CounterVec
	// SSEClients is the number of open dev backend streams.
	SSEClients prometheus.Gauge
}

// New registers every collector on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		SessionLogins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "daycheck_session_logins_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		SessionRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "daycheck_session_refreshes_total",
			Help: "Token refresh attempts by result",
		}, []string{"result"}),
		SessionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "daycheck_session_state",
			Help: "Current session state (1 for the active state)",
		}, []string{"state"}),
		StreamState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "daycheck_stream_state",
			Help: "Current notification stream state (1 for the active state)",
		}, []string{"state"}),
		StreamReconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "daycheck_stream_reconnects_total",
			Help: "Reconnects scheduled after a stream error",
		}),
		StreamExhausted: f.NewCounter(prometheus.CounterOpts{
			Name: "daycheck_stream_exhausted_total",
			Help: "Streams stopped after reaching the reconnect cap",
		}),
		NotificationsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "daycheck_notifications_received_total",
			Help: "Notification events by result",
		}, []string{"result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "daycheck_devserver_http_requests_total",
			Help: "Dev backend HTTP requests by route and status class",
		}, []string{"route", "class"}),
		SSEClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "daycheck_devserver_sse_clients",
			Help: "Open dev backend notification streams",
		}),
	}
}

// ObserveLogin records a login outcome.
func (m *Metrics) ObserveLogin(ok bool) {
	if m == nil {
		return
	}
	m.SessionLogins.WithLabelValues(result(ok)).Inc()
}

// ObserveRefresh records a refresh outcome.
func (m *Metrics) ObserveRefresh(ok bool) {
	if m == nil {
		return
	}
	m.SessionRefreshes.WithLabelValues(result(ok)).Inc()
}

// SetSessionState marks state as current among all.
func (m *Metrics) SetSessionState(state string, all []string) {
	if m == nil {
		return
	}
	setOneHot(m.SessionState, state, all)
}

// SetStreamState marks state as current among all.
func (m *Metrics) SetStreamState(state string, all []string) {
	if m == nil {
		return
	}
	setOneHot(m.StreamState, state, all)
}

// ObserveReconnect records a scheduled reconnect.
func (m *Metrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.StreamReconnects.Inc()
}

// ObserveExhausted records a stream that gave up.
func (m *Metrics) ObserveExhausted() {
	if m == nil {
		return
	}
	m.StreamExhausted.Inc()
}

// ObserveNotification records a delivered (ok) or dropped notification event.
func (m *Metrics) ObserveNotification(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.NotificationsReceived.WithLabelValues(ResultSuccess).Inc()
		return
	}
	m.NotificationsReceived.WithLabelValues(ResultDropped).Inc()
}

// ObserveHTTP records one dev backend request.
func (m *Metrics) ObserveHTTP(route, class string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, class).Inc()
}

// AddSSEClients adjusts the open stream gauge by delta.
func (m *Metrics) AddSSEClients(delta float64) {
	if m == nil {
		return
	}
	m.SSEClients.Add(delta)
}

func setOneHot(g *prometheus.GaugeVec, state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		g.WithLabelValues(s).Set(v)
	}
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}
