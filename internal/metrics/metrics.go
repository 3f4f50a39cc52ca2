// Package metrics exposes parse and language-model metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/coursework/internal/llm"
	"github.com/ppiankov/coursework/internal/model"
	"github.com/ppiankov/coursework/internal/pipeline"
)

const namespace = "coursework"

// ParseMetrics implements pipeline.Metrics and observes llm outcomes
type ParseMetrics struct {
	registry *prometheus.Registry

	parsesTotal   *prometheus.CounterVec
	parseDuration *prometheus.HistogramVec
	assignments   prometheus.Histogram
	confidence    prometheus.Histogram
	stageStatus   *prometheus.CounterVec
	failures      *prometheus.CounterVec
	llmCalls      *prometheus.CounterVec
	llmDuration   *prometheus.HistogramVec
	llmAttempts   prometheus.Counter
}

// New registers every collector on a private registry
func New() *ParseMetrics {
	registry := prometheus.NewRegistry()

	m := &ParseMetrics{
		registry: registry,
		parsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "parses_total",
			Help:      "Completed parses by extractor and domain.",
		}, []string{"extractor", "domain"}),
		parseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "parse_duration_seconds",
			Help:      "Parse duration in seconds by whether the AI stages were enabled.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"ai"}),
		assignments: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "assignments_per_parse",
			Help:      "Assignments returned per parse.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "confidence",
			Help:      "Aggregate result confidence.",
			Buckets:   []float64{0.1, 0.3, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95},
		}),
		stageStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "stage_status_total",
			Help:      "Final status of each stage per parse.",
		}, []string{"stage", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "failures_total",
			Help:      "Parses aborted by stage.",
		}, []string{"stage"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tasks_total",
			Help:      "Language-model tasks by task, status and cache use.",
		}, []string{"task", "status", "cached"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "task_duration_seconds",
			Help:      "Language-model task duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		llmAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "Provider calls including retries.",
		}),
	}

	registry.MustRegister(
		m.parsesTotal, m.parseDuration, m.assignments, m.confidence,
		m.stageStatus, m.failures, m.llmCalls, m.llmDuration, m.llmAttempts,
	)
	return m
}

// Registry returns the registry the collectors live on
func (m *ParseMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *ParseMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveParse records one completed parse
func (m *ParseMetrics) ObserveParse(res *model.ParseResult, d time.Duration) {
	meta := res.Metadata
	ai := "off"
	if meta.AIEnabled {
		ai = "on"
	}
	m.parsesTotal.WithLabelValues(meta.Extractor, meta.Domain).Inc()
	m.parseDuration.WithLabelValues(ai).Observe(d.Seconds())
	m.assignments.Observe(float64(len(res.Assignments)))
	m.confidence.Observe(meta.Confidence)

	m.stageStatus.WithLabelValues(string(pipeline.StageRegex), string(meta.Stages.Regex)).Inc()
	m.stageStatus.WithLabelValues(string(pipeline.StageAIRemainder), string(meta.Stages.AIRemainder)).Inc()
	m.stageStatus.WithLabelValues(string(pipeline.StageAIValidate), string(meta.Stages.AIValidate)).Inc()
	m.stageStatus.WithLabelValues(string(pipeline.StageMerging), string(meta.Stages.Merging)).Inc()
}

// ObserveFailure records a parse aborted in stage
func (m *ParseMetrics) ObserveFailure(stage pipeline.Stage) {
	m.failures.WithLabelValues(string(stage)).Inc()
}

// ObserveLLM records one language-model task; pass it to llm.WithObserver
func (m *ParseMetrics) ObserveLLM(o llm.Outcome) {
	cached := "false"
	if o.Cached {
		cached = "true"
	}
	m.llmCalls.WithLabelValues(string(o.Task), string(o.Status), cached).Inc()
	m.llmDuration.WithLabelValues(string(o.Task)).Observe(o.Duration.Seconds())
	m.llmAttempts.Add(float64(o.Attempts))
}
