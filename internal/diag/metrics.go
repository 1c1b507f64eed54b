package diag

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Process metrics, kept on a private registry and exported as a text
// file at the end of a run:
//   - op_total{comp,stage,result}
//   - error_total{comp,code}
//   - op_duration_ms{comp,stage}
var (
	registry = prometheus.NewRegistry()

	opTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "responsio",
		Name:      "op_total",
		Help:      "Operations by component, stage and result.",
	}, []string{"comp", "stage", "result"})

	errorTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "responsio",
		Name:      "error_total",
		Help:      "Errors by component and classification code.",
	}, []string{"comp", "code"})

	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "responsio",
		Name:      "op_duration_ms",
		Help:      "Stage durations in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"comp", "stage"})

	registerOnce sync.Once
)

func register() {
	registerOnce.Do(func() {
		registry.MustRegister(opTotal, errorTotal, opDuration)
	})
}

// IncOp counts one operation (result=success|error).
func IncOp(comp, stage, result string) {
	register()
	opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError counts one error by classification.
func IncError(comp, code string) {
	register()
	errorTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration records a stage duration in milliseconds.
func ObserveDuration(comp, stage string, durMS int64) {
	register()
	opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// Registry exposes the metric registry, e.g. for a scrape handler or tests.
func Registry() *prometheus.Registry {
	register()
	return registry
}

// WriteMetrics writes the registry in text exposition format to path.
func WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, Registry())
}
