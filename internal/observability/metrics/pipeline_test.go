package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

func TestPipelineMetricsCountsOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPipelineMetrics("paperflow-test", registry)

	m.ObserveDocument(domain.DocumentOutcome{State: domain.StateOrganized, Label: domain.LabelInvoice, Tier: domain.TierHigh, Method: domain.MethodSimilarityReasoning}, 20*time.Millisecond)
	m.ObserveDocument(domain.DocumentOutcome{State: domain.StateSkippedIdentity}, time.Millisecond)

	if got := testutil.ToFloat64(m.documentsTotal.WithLabelValues("paperflow-test", "organized")); got != 1 {
		t.Fatalf("expected 1 organized document, got %v", got)
	}
	if got := testutil.ToFloat64(m.classificationsTotal.WithLabelValues("paperflow-test", "similarity+reasoning", "high", "invoice")); got != 1 {
		t.Fatalf("expected 1 classification, got %v", got)
	}
	if got := testutil.CollectAndCount(m.classificationsTotal); got != 1 {
		t.Fatalf("skipped documents must not count as classifications, got %d series", got)
	}
}

func TestPipelineMetricsObserveRun(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPipelineMetrics("paperflow-test", registry)

	started := time.Now()
	summary := domain.NewRunSummary("run-1", started)
	summary.Record(domain.DocumentOutcome{State: domain.StateFailed})
	summary.Finish(started.Add(2 * time.Second))
	m.ObserveRun(summary)

	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("paperflow-test", "success")); got != 1 {
		t.Fatalf("expected 1 successful run, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastRunDocuments.WithLabelValues("paperflow-test", "failed")); got != 1 {
		t.Fatalf("expected last run failed gauge 1, got %v", got)
	}
}

func TestHTTPMiddlewareCollapsesUnknownPaths(t *testing.T) {
	m := NewHTTPServerMetrics("paperflow-api")
	handler := m.Middleware("paperflow-api", http.NotFoundHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/1", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/2", nil))

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("paperflow-api", http.MethodGet, "unmatched", "404")); got != 2 {
		t.Fatalf("expected 2 unmatched requests, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "paperflow_http_requests_total") {
		t.Fatalf("expected metrics exposition, got %q", rec.Body.String())
	}
}
