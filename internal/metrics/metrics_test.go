package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("voiceover")

	m.JobCreated()
	m.JobCreated()
	m.JobTransitioned("DONE")
	m.RateLimited("create")
	m.ReconcileFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobTransitions.WithLabelValues("DONE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.jobTransitions.WithLabelValues("FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcileFailures))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobCreated()
		m.JobTransitioned("DONE")
		m.ObserveSynthesis("ok", time.Second)
		m.ObserveRequest("GET", "/jobs", 200, time.Millisecond)
		require.NoError(t, m.RegisterDB(nil, "x"))
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New("voiceover")
	m.ObserveRequest("POST", "/jobs", 201, 20*time.Millisecond)
	m.ObserveSynthesis("ok", 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `voiceover_http_requests_total{method="POST",route="/jobs",status="201"} 1`)
	assert.Contains(t, string(body), "voiceover_synthesis_duration_seconds_count")
}
