package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncTrigger("boot", ResultSuccess)
	pr.IncReconciliation("boot", "optimistic_reset")
	pr.IncReconciliation("periodic_job", "already_today")
	pr.IncReconciliation("periodic_job", "already_today")
	pr.IncStoreError("legacy", "get")
	pr.IncWakeArmed("primary")
	pr.IncWakeFired("fallback", true)
	pr.IncPeriodicRun(ResultRetry)
	pr.IncRecompute("terminated")

	assert.InDelta(t, 2, testutil.ToFloat64(pr.reconciliations.WithLabelValues("periodic_job", "already_today")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.wakeFired.WithLabelValues("fallback", "true")), 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 7)
}

func TestPrometheusRecorder_NilSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncTrigger("boot", ResultSuccess)
	pr.IncRecompute("requested")
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncWakeArmed("primary")

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "dayroll_wake_armed_total"))
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NoopRecorder{}, OrNoop(nil))
	pr := NewPrometheusRecorder(nil)
	assert.Same(t, pr, OrNoop(pr))
}
