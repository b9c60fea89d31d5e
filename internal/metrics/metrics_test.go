package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDecision(true, "ignored")
	m.ObserveDecision(false, "unregistered")
	m.ObserveDecision(false, "unregistered")
	m.ObserveOperation("start_batch", nil)
	m.ObserveOperation("start_batch", errors.New("x"))

	assert.Equal(t, 1.0, counterValue(t, reg, "classgate_authorization_decisions_total",
		map[string]string{"result": "granted", "reason": ""}))
	assert.Equal(t, 2.0, counterValue(t, reg, "classgate_authorization_decisions_total",
		map[string]string{"result": "denied", "reason": "unregistered"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "classgate_engine_operations_total",
		map[string]string{"op": "start_batch", "status": "error"}))
}
