package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getMetricsBody(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_New(t *testing.T) {
	m := New()
	assert.NotNil(t, m.EventsApplied)
	assert.NotNil(t, m.BootstrapRuns)
	assert.NotNil(t, m.BootstrapsInFlight)
	assert.NotNil(t, m.CacheEvictions)
	assert.NotNil(t, m.RemoteErrors)
	assert.NotNil(t, m.SessionsRetained)
}

func TestMetrics_RecordEvent(t *testing.T) {
	m := New()
	m.RecordEvent("session.updated")
	m.RecordEvent("session.updated")
	m.RecordEvent("message.part.updated")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `mirror_events_applied_total{type="session.updated"} 2`)
	assert.Contains(t, body, `mirror_events_applied_total{type="message.part.updated"} 1`)
}

func TestMetrics_RecordBootstrap(t *testing.T) {
	m := New()
	m.RecordBootstrap("root", "ok")
	m.RecordBootstrap("workspace", "partial")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `mirror_bootstrap_runs_total{kind="root",status="ok"} 1`)
	assert.Contains(t, body, `mirror_bootstrap_runs_total{kind="workspace",status="partial"} 1`)
}

func TestMetrics_RecordEviction(t *testing.T) {
	m := New()
	m.RecordEviction("file")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `mirror_cache_evictions_total{cache="file"} 1`)
}

func TestMetrics_SessionsRetained(t *testing.T) {
	m := New()
	m.SetSessionsRetained("/work/a", 42)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `mirror_sessions_retained{directory="/work/a"} 42`)
}
