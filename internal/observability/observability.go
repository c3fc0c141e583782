// Package observability wires structured logging and Prometheus
// metrics for the service.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// NewLogger builds the service logger. level accepts zap's level
// names; an empty level means info.
func NewLogger(level string, development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("observability: parse log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}

// Metrics holds the service's Prometheus instruments.
type Metrics struct {
	ProjectsCreated  prometheus.Counter
	AnalysisRuns     *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	SlideEdits       *prometheus.CounterVec
	SlideBuildErrors prometheus.Counter
	DeckWrites       *prometheus.CounterVec
	EventsPublished  *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// NewMetrics registers the service instruments on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ProjectsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "expertsure_projects_created_total",
			Help: "Projects created via upload.",
		}),
		AnalysisRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "expertsure_analysis_runs_total",
			Help: "Initial analysis runs by outcome.",
		}, []string{"outcome"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "expertsure_analysis_duration_seconds",
			Help:    "Wall time of initial analysis runs.",
			Buckets: prometheus.DefBuckets,
		}),
		SlideEdits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "expertsure_slide_edits_total",
			Help: "Slide edit requests by outcome.",
		}, []string{"outcome"}),
		SlideBuildErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "expertsure_slide_build_errors_total",
			Help: "Slide table builds rejected by the engine.",
		}),
		DeckWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "expertsure_deck_writes_total",
			Help: "Deck artifact writes by result (written, skipped).",
		}, []string{"result"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "expertsure_events_published_total",
			Help: "Events published by type.",
		}, []string{"type"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "expertsure_http_requests_total",
			Help: "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "expertsure_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// NewDefaultMetrics registers on the default Prometheus registry.
func NewDefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}
