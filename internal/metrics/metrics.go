// Registers:
//
//	#marketdesk_poll_ticks_total
//	#marketdesk_poll_failures_total
//	#marketdesk_poll_stale_discarded_total
//	#marketdesk_poll_subscriptions
//	#marketdesk_gateway_requests_total
//	#marketdesk_gateway_upstream_errors_total
//	#go_* and process_* system metrics
//
// The gateway exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	pollTicks      *prometheus.CounterVec
	pollFailures   *prometheus.CounterVec
	staleDiscarded *prometheus.CounterVec
	subscriptions  prometheus.Gauge

	requests       *prometheus.CounterVec
	upstreamErrors *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. withRuntime adds the
// go_* and process_* collectors.
func New(reg prometheus.Registerer, withRuntime bool) *Metrics {
	m := &Metrics{
		pollTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketdesk_poll_ticks_total",
				Help: "Number of poll ticks started",
			},
			[]string{"exchange"},
		),
		pollFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketdesk_poll_failures_total",
				Help: "Number of poll ticks that failed upstream",
			},
			[]string{"exchange"},
		),
		staleDiscarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketdesk_poll_stale_discarded_total",
				Help: "Number of poll results dropped because a newer tick was already applied or the subscription ended",
			},
			[]string{"exchange"},
		),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketdesk_poll_subscriptions",
			Help: "Number of active poller subscriptions",
		}),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketdesk_gateway_requests_total",
				Help: "Number of gateway requests by route and status code",
			},
			[]string{"route", "status"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketdesk_gateway_upstream_errors_total",
				Help: "Number of relayed upstream failures",
			},
			[]string{"exchange"},
		),
	}

	reg.MustRegister(m.pollTicks, m.pollFailures, m.staleDiscarded, m.subscriptions, m.requests, m.upstreamErrors)
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return m
}

func (m *Metrics) PollTick(exchange string) {
	if m != nil {
		m.pollTicks.WithLabelValues(exchange).Inc()
	}
}

func (m *Metrics) PollFailure(exchange string) {
	if m != nil {
		m.pollFailures.WithLabelValues(exchange).Inc()
	}
}

func (m *Metrics) StaleDiscarded(exchange string) {
	if m != nil {
		m.staleDiscarded.WithLabelValues(exchange).Inc()
	}
}

func (m *Metrics) SubscriptionAdded() {
	if m != nil {
		m.subscriptions.Inc()
	}
}

func (m *Metrics) SubscriptionRemoved() {
	if m != nil {
		m.subscriptions.Dec()
	}
}

func (m *Metrics) Request(route, status string) {
	if m != nil {
		m.requests.WithLabelValues(route, status).Inc()
	}
}

func (m *Metrics) UpstreamError(exchange string) {
	if m != nil {
		m.upstreamErrors.WithLabelValues(exchange).Inc()
	}
}
