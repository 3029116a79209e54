package bcp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Server and an
// Interface. A nil *Metrics is valid and records nothing.
type Metrics struct {
	received         *prometheus.CounterVec
	sent             *prometheus.CounterVec
	parseErrors      prometheus.Counter
	unknownCommands  prometheus.Counter
	sessions         prometheus.Counter
	state            prometheus.Gauge
	dispatchDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bcp_messages_received_total",
				Help: "Total BCP messages received by command.",
			},
			[]string{"command"},
		),
		sent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bcp_messages_sent_total",
				Help: "Total BCP messages written to the peer by command.",
			},
			[]string{"command"},
		),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bcp_parse_errors_total",
			Help: "Total received lines or messages that failed to parse.",
		}),
		unknownCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bcp_unknown_commands_total",
			Help: "Total received messages without a registered handler.",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bcp_sessions_total",
			Help: "Total peers accepted.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bcp_connection_state",
			Help: "Current connection state (0 not connected, 1 connecting, 2 connected, 3 disconnecting).",
		}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bcp_dispatch_duration_seconds",
			Help:    "Time spent dispatching a single message to its handler.",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.received, m.sent, m.parseErrors, m.unknownCommands,
			m.sessions, m.state, m.dispatchDuration)
	}
	return m
}

func (m *Metrics) messageReceived(command string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(command).Inc()
}

func (m *Metrics) messageSent(command string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(command).Inc()
}

func (m *Metrics) parseError() {
	if m == nil {
		return
	}
	m.parseErrors.Inc()
}

func (m *Metrics) unknownCommand() {
	if m == nil {
		return
	}
	m.unknownCommands.Inc()
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) setState(s ConnectionState) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

func (m *Metrics) observeDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(d.Seconds())
}
