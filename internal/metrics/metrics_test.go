package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequest_CountsByLabels(t *testing.T) {
	t.Parallel()
	m := New()

	m.ObserveRequest(http.MethodPost, "/upload", 200, 20*time.Millisecond)
	m.ObserveRequest(http.MethodPost, "/upload", 200, 30*time.Millisecond)
	m.ObserveRequest(http.MethodPost, "/upload", 500, time.Second)

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("POST", "/upload", "200"))
	if got != 2 {
		t.Errorf("expected 2 ok requests, got %v", got)
	}
	got = testutil.ToFloat64(m.requestTotal.WithLabelValues("POST", "/upload", "500"))
	if got != 1 {
		t.Errorf("expected 1 failed request, got %v", got)
	}
}

func TestDeploymentAndJobs(t *testing.T) {
	t.Parallel()
	m := New()

	m.DeploymentFinished("error", "provision")
	m.DeploymentFinished("ok", "")
	m.JobStarted()
	m.JobStarted()
	m.JobFinished()

	if got := testutil.ToFloat64(m.deployments.WithLabelValues("error", "provision")); got != 1 {
		t.Errorf("expected 1 failed deployment, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobsActive); got != 1 {
		t.Errorf("expected 1 active job, got %v", got)
	}
}

func TestNewWithRegistry_ReusesRegisteredCollectors(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a := NewWithRegistry(reg)
	b := NewWithRegistry(reg)

	a.RateLimitHit("/upload")
	b.RateLimitHit("/upload")

	if got := testutil.ToFloat64(a.rateLimitHits.WithLabelValues("/upload")); got != 2 {
		t.Errorf("expected shared counter at 2, got %v", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	t.Parallel()
	m := New()
	m.ObserveStage("publish", "ok", 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sitedrop_deploy_stage_duration_seconds") {
		t.Errorf("stage histogram missing from output:\n%s", rec.Body.String())
	}
}

func TestNilMetrics_NoPanic(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.ObserveRequest("GET", "/health", 200, time.Millisecond)
	m.RateLimitHit("/upload")
	m.ObserveStage("record", "ok", 0)
	m.DeploymentFinished("ok", "")
	m.JobStarted()
	m.JobFinished()
	if m.Registry() != nil {
		t.Error("expected nil registry")
	}
}
