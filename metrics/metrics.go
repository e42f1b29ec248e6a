// Package metrics exposes Prometheus instrumentation for the analysis flows.
//
// Metrics are registered on the default registry and served by the
// /metrics route.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hoax_guard"

var (
	// AnalysesTotal counts finished analyses.
	// Labels: kind (text, image), outcome (ok or an error kind).
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analyses_total",
		Help:      "Analyses by kind and outcome.",
	}, []string{"kind", "outcome"})

	// VerdictsTotal counts successful verdicts by label.
	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verdicts_total",
		Help:      "Verdicts returned, by kind and label.",
	}, []string{"kind", "label"})

	// ModelCallSeconds measures the single model call of each analysis.
	ModelCallSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "model_call_seconds",
		Help:      "Latency of model calls.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 90},
	}, []string{"provider", "status"})

	// ImageFetchesTotal counts image-by-URL downloads.
	// Labels: outcome (ok, network, blocked, status, content_type, too_large).
	ImageFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "image_fetches_total",
		Help:      "Image-by-URL fetches by outcome.",
	}, []string{"outcome"})
)

func ObserveModelCall(provider string, err error, took time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ModelCallSeconds.WithLabelValues(provider, status).Observe(took.Seconds())
}

func ObserveAnalysis(kind, outcome string) {
	AnalysesTotal.WithLabelValues(kind, outcome).Inc()
}

func ObserveVerdict(kind, label string) {
	VerdictsTotal.WithLabelValues(kind, label).Inc()
}

func ObserveImageFetch(outcome string) {
	ImageFetchesTotal.WithLabelValues(outcome).Inc()
}
