package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveDispatch("native", "native", "success", 20*time.Millisecond)
	m.ObserveDispatch("native", "native", "success", 30*time.Millisecond)
	m.RecordRejection("CASH_IN", "SUPPLY_CAP_EXCEEDED")
	m.RecordMultiSig("signed")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.dispatches.WithLabelValues("native", "native", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rejections.WithLabelValues("CASH_IN", "SUPPLY_CAP_EXCEEDED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.multisigEvents.WithLabelValues("signed")))
}

func TestMetricsDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveDispatch("native", "native", "success", time.Second)
		m.RecordRejection("BURN", "X")
		m.RecordMultiSig("created")
		m.RecordSignerRequest("dfns", "success")
	})
}
