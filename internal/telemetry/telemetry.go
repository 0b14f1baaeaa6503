// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// for the analysis pipeline.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "dietplanner"

// Metrics holds the pipeline's Prometheus metrics.
type Metrics struct {
	DocumentsTotal     *prometheus.CounterVec
	ExtractionFailures *prometheus.CounterVec
	RiskLabels         *prometheus.CounterVec
	ModelFallbacks     prometheus.Counter
	MenuGroups         *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	StoreFailures      prometheus.Counter
}

// Provider wraps the tracer and a per-process metrics registry.
type Provider struct {
	Tracer   trace.Tracer
	Metrics  *Metrics
	registry *prometheus.Registry
}

// NewProvider creates a provider with its own registry, so several
// providers can coexist in one process (tests, embedded servers).
func NewProvider() *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Provider{
		Tracer:   otel.Tracer(serviceName),
		Metrics:  initMetrics(promauto.With(reg)),
		registry: reg,
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the underlying registry.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

func initMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		DocumentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dietplanner_documents_total",
			Help: "Documents received for analysis by detected format",
		}, []string{"format"}),
		ExtractionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dietplanner_extraction_failures_total",
			Help: "Documents rejected during text extraction by error code",
		}, []string{"code"}),
		RiskLabels: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dietplanner_risk_labels_total",
			Help: "Risk labels assigned by label and deciding path",
		}, []string{"label", "source"}),
		ModelFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "dietplanner_model_fallbacks_total",
			Help: "Risk classifications that fell back from the trained model to the rules",
		}),
		MenuGroups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dietplanner_menu_groups_total",
			Help: "Meal plans generated by menu group",
		}, []string{"menu_group"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dietplanner_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		StoreFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dietplanner_store_failures_total",
			Help: "Analysis events that could not be recorded",
		}),
	}
}

// RecordDocument counts a document by format.
func (p *Provider) RecordDocument(ctx context.Context, format string) {
	if format == "" {
		format = "manual"
	}
	p.Metrics.DocumentsTotal.WithLabelValues(format).Inc()
}

// RecordExtractionFailure counts a rejected document.
func (p *Provider) RecordExtractionFailure(ctx context.Context, code string) {
	p.Metrics.ExtractionFailures.WithLabelValues(code).Inc()
}

// RecordRisk counts a risk label. fallback marks a model failure absorbed by the rules.
func (p *Provider) RecordRisk(ctx context.Context, label, source string, fallback bool) {
	p.Metrics.RiskLabels.WithLabelValues(label, source).Inc()
	if fallback {
		p.Metrics.ModelFallbacks.Inc()
	}
}

// RecordMenuGroup counts a generated plan.
func (p *Provider) RecordMenuGroup(ctx context.Context, group string) {
	p.Metrics.MenuGroups.WithLabelValues(group).Inc()
}

// RecordStage observes a stage's latency.
func (p *Provider) RecordStage(ctx context.Context, stage string, duration time.Duration) {
	p.Metrics.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordStoreFailure counts a lost analysis event.
func (p *Provider) RecordStoreFailure(ctx context.Context) {
	p.Metrics.StoreFailures.Inc()
}

// StartSpan starts a new trace span.
// The caller is responsible for ending the span with span.End().
//
//nolint:spancheck // Caller is responsible for ending the span
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
