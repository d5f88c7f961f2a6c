package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's instrumentation: submission/dispatch traffic,
// callback traffic and rejections, and stream saturation.
type Metrics struct {
	SubmissionsTotal      prometheus.Counter
	DispatchFailuresTotal prometheus.Counter
	CallbacksTotal        *prometheus.CounterVec
	StreamsActive         prometheus.Gauge
	StreamEventsTotal     *prometheus.CounterVec
	JobsReapedTotal       prometheus.Counter
}

// NewMetrics creates and registers all metrics on a private registry.
// Returns the metrics plus the HTTP handler serving them.
func NewMetrics() (*Metrics, http.Handler) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		SubmissionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "formflow_submissions_total",
			Help: "Total number of intake submissions accepted for dispatch",
		}),
		DispatchFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "formflow_dispatch_failures_total",
			Help: "Total number of submissions the external worker rejected",
		}),
		CallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formflow_callbacks_total",
			Help: "Total number of worker callbacks by outcome",
		}, []string{"outcome"}),
		StreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "formflow_streams_active",
			Help: "Number of currently open event streams",
		}),
		StreamEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formflow_stream_events_total",
			Help: "Total number of events emitted on streams by type",
		}, []string{"type"}),
		JobsReapedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "formflow_jobs_reaped_total",
			Help: "Total number of stale jobs marked failed by the reaper",
		}),
	}

	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
