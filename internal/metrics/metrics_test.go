package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.DownloadStarted()
	m.DownloadStarted()
	assert.InDelta(t, 2, testutil.ToFloat64(m.inflight), 0)

	m.DownloadFinished("downloaded", 100)
	m.DownloadFinished("failed", 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.inflight), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.downloads.WithLabelValues("downloaded")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.downloads.WithLabelValues("failed")), 0)
	assert.InDelta(t, 100, testutil.ToFloat64(m.downloadedBytes), 0)

	m.AccessDenied()
	m.IntegrityFailure()
	m.CleanupFailure()
	m.SessionState("playing")
	assert.InDelta(t, 1, testutil.ToFloat64(m.accessDenied), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.integrityFailures), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cleanupFailures), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessionStates.WithLabelValues("playing")), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.DownloadStarted()
		m.DownloadFinished("downloaded", 1)
		m.AccessDenied()
		m.IntegrityFailure()
		m.CleanupFailure()
		m.SessionState("idle")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.DownloadStarted()
	m.DownloadFinished("cached", 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `audiokeeper_downloads_total{result="cached"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
