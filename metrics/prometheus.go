package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"toolbox_backend/mirror"
	"toolbox_backend/variation"
)

const namespace = "toolbox"

// Exporter owns a private Prometheus registry with the toolbox series. It
// implements variation.Observer and mirror.Observer.
//
// Example:
//
//	exporter := metrics.NewExporter()
//	gen, _ := variation.NewGenerator(variation.WithObserver(exporter))
//	router.Handle("/metrics", exporter.Handler())
type Exporter struct {
	registry *prometheus.Registry

	variants        *prometheus.CounterVec
	variantDuration *prometheus.HistogramVec
	stageSkipped    *prometheus.CounterVec
	batches         *prometheus.CounterVec
	mirrorRequests  *prometheus.CounterVec
	mirrorDuration  *prometheus.HistogramVec
	creditsSpent    prometheus.Counter
}

// NewExporter registers every series plus the Go runtime and process
// collectors.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		variants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variants_total",
			Help:      "Variants produced, by level and whether the minimal fallback was used.",
		}, []string{"level", "fallback"}),
		variantDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "variant_duration_seconds",
			Help:      "Time to produce one variant.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"level"}),
		stageSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_skipped_total",
			Help:      "Pipeline stages rolled back after a failure or guard rejection.",
		}, []string{"stage"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variant_batches_total",
			Help:      "Variant batch requests by final status.",
		}, []string{"status"}),
		mirrorRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_requests_total",
			Help:      "Mirror requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		mirrorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mirror_duration_seconds",
			Help:      "Mirror request latency including the provider call.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"provider"}),
		creditsSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_spent_total",
			Help:      "Image credits kept after a mirror request.",
		}),
	}

	e.registry.MustRegister(
		e.variants,
		e.variantDuration,
		e.stageSkipped,
		e.batches,
		e.mirrorRequests,
		e.mirrorDuration,
		e.creditsSpent,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// ObserveVariant implements variation.Observer.
func (e *Exporter) ObserveVariant(level variation.Level, duration time.Duration, fallback bool) {
	lvl := strconv.Itoa(int(level))
	e.variants.WithLabelValues(lvl, strconv.FormatBool(fallback)).Inc()
	e.variantDuration.WithLabelValues(lvl).Observe(duration.Seconds())
}

// ObserveStageSkipped implements variation.Observer.
func (e *Exporter) ObserveStageSkipped(stage variation.StageName) {
	e.stageSkipped.WithLabelValues(string(stage)).Inc()
}

// ObserveBatch counts one finished batch request.
func (e *Exporter) ObserveBatch(status string) {
	e.batches.WithLabelValues(status).Inc()
}

// ObserveMirror implements mirror.Observer. Successful and safety-blocked
// calls keep their credit; every other outcome was refunded or never
// charged.
func (e *Exporter) ObserveMirror(provider, outcome string, duration time.Duration) {
	e.mirrorRequests.WithLabelValues(provider, outcome).Inc()
	e.mirrorDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if outcome == mirror.OutcomeSuccess || outcome == mirror.OutcomeSafety {
		e.creditsSpent.Inc()
	}
}

// Registry exposes the registry for tests and extra collectors.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

var (
	_ variation.Observer = (*Exporter)(nil)
	_ mirror.Observer    = (*Exporter)(nil)
)
