package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

// PipelineMetrics implements usecase.PipelineObserver.
type PipelineMetrics struct {
	service string

	documentsTotal       *prometheus.CounterVec
	documentDuration     *prometheus.HistogramVec
	classificationsTotal *prometheus.CounterVec
	runsTotal            *prometheus.CounterVec
	runDuration          *prometheus.HistogramVec
	lastRunDocuments     *prometheus.GaugeVec
}

func NewPipelineMetrics(service string, registry prometheus.Registerer) *PipelineMetrics {
	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperflow",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Documents reaching a terminal state.",
		},
		[]string{"service", "state"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paperflow",
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "Per-document processing duration by terminal state.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "state"},
	)
	classificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperflow",
			Subsystem: "classifier",
			Name:      "decisions_total",
			Help:      "Classification decisions by method, tier and label.",
		},
		[]string{"service", "method", "tier", "label"},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperflow",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Completed runs by status.",
		},
		[]string{"service", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paperflow",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Run duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service", "status"},
	)
	lastRunDocuments := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "paperflow",
			Subsystem: "pipeline",
			Name:      "last_run_documents",
			Help:      "Per-state document counts of the most recent run.",
		},
		[]string{"service", "state"},
	)

	registry.MustRegister(documentsTotal, documentDuration, classificationsTotal, runsTotal, runDuration, lastRunDocuments)

	return &PipelineMetrics{
		service:              service,
		documentsTotal:       documentsTotal,
		documentDuration:     documentDuration,
		classificationsTotal: classificationsTotal,
		runsTotal:            runsTotal,
		runDuration:          runDuration,
		lastRunDocuments:     lastRunDocuments,
	}
}

func (m *PipelineMetrics) ObserveDocument(outcome domain.DocumentOutcome, elapsed time.Duration) {
	state := string(outcome.State)
	m.documentsTotal.WithLabelValues(m.service, state).Inc()
	m.documentDuration.WithLabelValues(m.service, state).Observe(elapsed.Seconds())
	if outcome.Method != "" {
		m.classificationsTotal.WithLabelValues(m.service, string(outcome.Method), string(outcome.Tier), string(outcome.Label)).Inc()
	}
}

func (m *PipelineMetrics) ObserveRun(summary *domain.RunSummary) {
	if summary == nil {
		return
	}
	status := string(summary.Status)
	m.runsTotal.WithLabelValues(m.service, status).Inc()
	if !summary.FinishedAt.IsZero() {
		m.runDuration.WithLabelValues(m.service, status).Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	}
	m.lastRunDocuments.WithLabelValues(m.service, string(domain.StateOrganized)).Set(float64(summary.Organized))
	m.lastRunDocuments.WithLabelValues(m.service, string(domain.StateSkippedDuplicate)).Set(float64(summary.SkippedDuplicate))
	m.lastRunDocuments.WithLabelValues(m.service, string(domain.StateSkippedIdentity)).Set(float64(summary.SkippedIdentity))
	m.lastRunDocuments.WithLabelValues(m.service, string(domain.StateFailed)).Set(float64(summary.Failed))
}
