package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
)

const (
	namespace = "alarm_subsystem"

	resultSuccess = "success"
	resultError   = "error"
)

// Metrics records alarm subsystem activity.
type Metrics struct {
	gatherer prometheus.Gatherer

	transitions     *prometheus.CounterVec
	hookFailures    *prometheus.CounterVec
	incidents       *prometheus.CounterVec
	monitoring      *prometheus.CounterVec
	messages        *prometheus.CounterVec
	messageFailures *prometheus.CounterVec
}

// New creates metrics registered on a fresh registry that also carries the
// Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return NewWithRegistry(reg, reg)
}

// NewWithRegistry creates metrics registered on reg and served from gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "transitions_total",
			Help:      "Alert state transitions by alarm type and target state.",
		}, []string{"alarm", "from", "to"}),
		hookFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "hook_failures_total",
			Help:      "State hooks that failed and were swallowed.",
		}, []string{"alarm", "state", "hook"}),
		incidents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incident",
			Name:      "created_total",
			Help:      "Incidents created by primary alarm type.",
		}, []string{"alarm"}),
		monitoring: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitoring",
			Name:      "requests_total",
			Help:      "Monitoring station requests by operation and result.",
		}, []string{"op", "result"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "place",
			Name:      "messages_total",
			Help:      "Messages handled by place executors, by type.",
		}, []string{"type"}),
		messageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "place",
			Name:      "message_failures_total",
			Help:      "Messages whose handling failed, by type.",
		}, []string{"type"}),
	}
}

// Transition implements alarms.Metrics.
func (m *Metrics) Transition(t alarm.Type, from, to string) {
	m.transitions.WithLabelValues(string(t), from, to).Inc()
}

// HookFailure implements alarms.Metrics.
func (m *Metrics) HookFailure(t alarm.Type, state, hook string) {
	m.hookFailures.WithLabelValues(string(t), state, hook).Inc()
}

// IncidentCreated implements incident.Metrics.
func (m *Metrics) IncidentCreated(t alarm.Type) {
	m.incidents.WithLabelValues(string(t)).Inc()
}

// MonitoringRequest implements incident.Metrics.
func (m *Metrics) MonitoringRequest(op string, err error) {
	m.monitoring.WithLabelValues(op, result(err)).Inc()
}

// MessageHandled counts a message handled by a place executor.
func (m *Metrics) MessageHandled(msgType string, err error) {
	m.messages.WithLabelValues(msgType).Inc()

	if err != nil {
		m.messageFailures.WithLabelValues(msgType).Inc()
	}
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return resultError
	}

	return resultSuccess
}
