// Package metrics exposes the door engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "classgate"

type Metrics struct {
	Decisions           *prometheus.CounterVec
	Detections          *prometheus.CounterVec
	Operations          *prometheus.CounterVec
	QueueLength         prometheus.Gauge
	SelfRegisterPending prometheus.Gauge
	PollErrors          prometheus.Counter
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_decisions_total",
			Help:      "Door authorization decisions by result and reason.",
		}, []string{"result", "reason"}),
		Detections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_detections_total",
			Help:      "Card detections handled by the capture machine.",
		}, []string{"mode", "outcome"}),
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_operations_total",
			Help:      "Administrative engine operations by name and status.",
		}, []string{"op", "status"}),
		QueueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_queue_length",
			Help:      "Credentials waiting in the batch capture queue.",
		}),
		SelfRegisterPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "self_register_sessions",
			Help:      "Live self-register sessions.",
		}),
		PollErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reader_poll_errors_total",
			Help:      "Errors returned by the credential reader.",
		}),
	}
}

func (m *Metrics) ObserveDecision(granted bool, reason string) {
	result := "denied"
	if granted {
		result = "granted"
		reason = ""
	}
	m.Decisions.WithLabelValues(result, reason).Inc()
}

func (m *Metrics) ObserveDetection(mode, outcome string) {
	m.Detections.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) ObserveOperation(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Operations.WithLabelValues(op, status).Inc()
}
