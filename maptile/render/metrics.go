package render

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics mirrors pmtiles/server_metrics.go's shape: one counter for
// overall request outcomes, one histogram for render duration, both
// created per Renderer under the "maptile" namespace and registered with
// the default Prometheus registry. A duplicate registration (a second
// Renderer in the same process) is logged and otherwise ignored.
type metrics struct {
	renders        *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
}

type renderTracker struct {
	start   time.Time
	metrics *metrics
}

func (m *metrics) startRender() *renderTracker {
	return &renderTracker{start: time.Now(), metrics: m}
}

func (t *renderTracker) finish(status string) {
	t.metrics.renders.WithLabelValues(status).Inc()
	t.metrics.renderDuration.WithLabelValues(status).Observe(time.Since(t.start).Seconds())
}

func register[K prometheus.Collector](logger *log.Logger, metric K) K {
	if err := prometheus.Register(metric); err != nil {
		logger.Println(err)
	}
	return metric
}

func createMetrics(logger *log.Logger) *metrics {
	return &metrics{
		renders: register(logger, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maptile",
			Name:      "renders_total",
			Help:      "Number of Render calls by outcome status",
		}, []string{"status"})),
		renderDuration: register(logger, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maptile",
			Name:      "render_duration_seconds",
			Help:      "Render call duration in seconds by outcome status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"})),
	}
}
