package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIsolatedPerInstance(t *testing.T) {
	// Two collectors in one process must not panic on duplicate registration
	a := NewMetrics()
	b := NewMetrics()

	a.RecordBuild(nil)
	a.RecordBuild(errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(a.BuildsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.BuildsTotal.WithLabelValues("failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BuildsTotal.WithLabelValues("success")))
}

func TestBridgeCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordDispatch("files")
	m.RecordDispatch("files")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommandsPending))

	m.RecordSettled(OutcomeOK)
	m.RecordSettled(OutcomeTimeout)
	m.RecordDiscarded("stale")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.CommandsPending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsCompleted.WithLabelValues(OutcomeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsDiscarded.WithLabelValues("stale")))
	assert.Equal(t, int64(0), m.GetSnapshot().PendingCommands)
}

func TestTimerRecordsHandlerCall(t *testing.T) {
	m := NewMetrics()

	NewTimer(m, "crypto", "hash").Stop(StatusSuccess)
	NewTimer(m, "crypto", "hash").Stop(StatusError)
	NewTimer(nil, "crypto", "hash").Stop(StatusSuccess)

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.CommandsServed)
	assert.Equal(t, int64(1), snap.CommandErrors)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.SetAppsLoaded(3)
	m.RecordHTTPRequest("GET", "/health", "200", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "webapp_apps_loaded 3"))
	assert.True(t, strings.Contains(body, "webapp_http_requests_total"))
}
