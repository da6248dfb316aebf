package automation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics は自動配信の Prometheus 指標です。nil の場合は何も記録しません。
type Metrics struct {
	itemsCreated *prometheus.CounterVec
	itemsSkipped *prometheus.CounterVec
	errors       *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
}

// NewMetrics は reg に指標を登録します。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		itemsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_items_created_total",
				Help: "Timeline items created by automation triggers",
			},
			[]string{"trigger"},
		),
		itemsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_items_skipped_total",
				Help: "Timeline items suppressed because they already existed",
			},
			[]string{"trigger"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_errors_total",
				Help: "Errors recorded while processing automation triggers",
			},
			[]string{"trigger"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "automation_run_duration_seconds",
				Help:    "Duration of a single trigger run",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"trigger"},
		),
	}
}

func (m *Metrics) observe(kind Kind, created int, result RunResult, took time.Duration) {
	if m == nil {
		return
	}
	label := string(kind)
	m.itemsCreated.WithLabelValues(label).Add(float64(created))
	m.itemsSkipped.WithLabelValues(label).Add(float64(result.Skipped))
	m.errors.WithLabelValues(label).Add(float64(len(result.Errors)))
	m.runDuration.WithLabelValues(label).Observe(took.Seconds())
}
