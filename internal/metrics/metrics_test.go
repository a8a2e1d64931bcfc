package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveAdmission("vm", "allowed")
	m.ObserveAdmission("vm", "allowed")
	m.ObserveAdmission("container", "denied")
	m.ObserveCorrection("vms")
	m.ObserveReconcileRun(nil)
	m.ObserveReconcileRun(errors.New("boom"))
	m.ObserveTokens("debit", -40)
	m.ObserveTokens("credit", 100)
	m.ObserveRefill()
	m.ObserveInfrastructureFailure("create")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.admissionDecisions.WithLabelValues("vm", "allowed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.admissionDecisions.WithLabelValues("container", "denied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.reconcileCorrections.WithLabelValues("vms")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.reconcileRuns.WithLabelValues("error")))
	assert.Equal(t, float64(40), testutil.ToFloat64(m.tokenVolume.WithLabelValues("debit")))
	assert.Equal(t, float64(100), testutil.ToFloat64(m.tokenVolume.WithLabelValues("credit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.contractRefills))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.infrastructureFailure.WithLabelValues("create")))
}

func TestNilMetricsRecordsNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAdmission("vm", "allowed")
		m.ObserveCorrection("vms")
		m.ObserveReconcileRun(nil)
		m.ObserveTokens("credit", 1)
		m.ObserveRefill()
		m.ObserveInfrastructureFailure("delete")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRefill()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "compute_qms_contracts_refills_total 1")
}
