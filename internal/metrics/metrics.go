// Package metrics exposes Prometheus collectors for report generation.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kiranshivaraju/hyroxreport/internal/ai"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

const namespace = "hyroxreport"

// Metrics holds every collector of the service. It implements the recorder
// interfaces of the report, section and improvement packages.
type Metrics struct {
	reports          *prometheus.CounterVec
	reportDuration   *prometheus.HistogramVec
	sections         *prometheus.CounterVec
	sectionDuration  *prometheus.HistogramVec
	oracleCalls      *prometheus.CounterVec
	oracleDuration   *prometheus.HistogramVec
	improvementClamp *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	auto := promauto.With(reg)
	return &Metrics{
		reports: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_finished_total",
			Help:      "Report generations by final status.",
		}, []string{"status"}),
		reportDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_seconds",
			Help:      "Wall time of one report generation.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 900},
		}, []string{"status"}),
		sections: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sections_total",
			Help:      "Section pipeline runs by section and final state.",
		}, []string{"section", "result"}),
		sectionDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "section_duration_seconds",
			Help:      "Wall time of one section pipeline run.",
			Buckets:   []float64{1, 5, 10, 20, 40, 80, 160},
		}, []string{"section"}),
		oracleCalls: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Language model calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		oracleDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_call_duration_seconds",
			Help:      "Latency of language model calls.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 9),
		}, []string{"provider"}),
		improvementClamp: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "improvement_clamped_total",
			Help:      "Improvement estimates clamped to their ceiling, by segment kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ReportFinished(status string, d time.Duration) {
	m.reports.WithLabelValues(status).Inc()
	m.reportDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) SectionOutcome(sectionID, result string, d time.Duration) {
	m.sections.WithLabelValues(sectionID, result).Inc()
	m.sectionDuration.WithLabelValues(sectionID).Observe(d.Seconds())
}

func (m *Metrics) ImprovementClamped(kind string) {
	m.improvementClamp.WithLabelValues(kind).Inc()
}

// Outcome labels of oracle calls.
const (
	OutcomeOK          = "ok"
	OutcomeTimeout     = "timeout"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ai.ErrInferenceTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, ai.ErrRateLimited):
		return OutcomeRateLimited
	default:
		return OutcomeError
	}
}

type instrumentedOracle struct {
	next    models.Oracle
	metrics *Metrics
}

// InstrumentOracle counts and times every call made through o.
func InstrumentOracle(o models.Oracle, m *Metrics) models.Oracle {
	return &instrumentedOracle{next: o, metrics: m}
}

func (o *instrumentedOracle) Name() string { return o.next.Name() }

func (o *instrumentedOracle) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	start := time.Now()
	resp, err := o.next.Chat(ctx, req)
	provider := o.next.Name()
	o.metrics.oracleCalls.WithLabelValues(provider, outcome(err)).Inc()
	o.metrics.oracleDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	return resp, err
}
