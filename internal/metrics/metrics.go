// Package metrics holds the Prometheus collectors shared by the registry,
// the plugin clients and the engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "vista"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics groups vista's collectors.
type Metrics struct {
	OpenViews      prometheus.Gauge
	OpenMultiViews prometheus.Gauge
	EditsApplied   *prometheus.CounterVec
	PluginStarts   *prometheus.CounterVec
	PluginCalls    *prometheus.HistogramVec
	Notifications  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which suits tests and embedding.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpenViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_views",
			Help:      "Number of views currently registered.",
		}),
		OpenMultiViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_multiviews",
			Help:      "Number of multiviews currently registered.",
		}),
		EditsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_edits_total",
			Help:      "View edits applied, by result.",
		}, []string{"result"}),
		PluginStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_starts_total",
			Help:      "Plugin start attempts, by plugin and result.",
		}, []string{"plugin", "result"}),
		PluginCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plugin_call_duration_seconds",
			Help:      "Duration of command plugin calls, by plugin and result.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"plugin", "result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_notifications_total",
			Help:      "Notifications exchanged with channel plugins, by plugin, direction and method.",
		}, []string{"plugin", "direction", "method"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.OpenViews,
			m.OpenMultiViews,
			m.EditsApplied,
			m.PluginStarts,
			m.PluginCalls,
			m.Notifications,
		)
	}
	return m
}

// Result maps an error to a result label value.
func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
