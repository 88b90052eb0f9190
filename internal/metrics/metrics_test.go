package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

func TestBTMIsSingleton(t *testing.T) {
	assert.Same(t, BTM(), BTM())
}

func TestObserveCounts(t *testing.T) {
	m := BTM()
	before := testutil.ToFloat64(m.consumptions.WithLabelValues(string(models.StatusValid)))
	m.ObserveConsumption(models.StatusValid)
	m.ObserveConsumption(models.StatusValid)
	after := testutil.ToFloat64(m.consumptions.WithLabelValues(string(models.StatusValid)))
	assert.Equal(t, before+2, after)

	cleaned := testutil.ToFloat64(m.cleanupRemoved)
	m.ObserveCleanup(3)
	m.ObserveCleanup(0)
	assert.Equal(t, cleaned+3, testutil.ToFloat64(m.cleanupRemoved))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *BTMMetrics
	assert.NotPanics(t, func() {
		m.ObserveRegistration("accepted")
		m.ObserveAuthorization("granted")
		m.ObserveCleanup(1)
	})
}
