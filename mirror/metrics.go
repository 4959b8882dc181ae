package mirror

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// actionCount is a Counter vector of mirror actions
	actionCount *prometheus.CounterVec
	// actionLatency is a Histogram vector that keeps track of action durations
	actionLatency *prometheus.HistogramVec
	// lastRunTimestamp is a Gauge that captures the timestamp of the last run
	lastRunTimestamp prometheus.Gauge
	// lastRunDuration is a Gauge that captures the duration of the last run
	lastRunDuration prometheus.Gauge
	// lastRunResults is a Gauge vector with the number of mirrors per result of the last run
	lastRunResults *prometheus.GaugeVec
)

// EnableMetrics will enable metrics collection for mirror runs.
// Available metrics are...
//   - mirror_action_count - (tags: action,success)
//     A Counter for each clone, update, reclone and delete attempt tagged with the result (success=true|false)
//   - mirror_action_latency_seconds - (tags: action)
//     A Histogram that keeps track of the action latency.
//   - last_run_timestamp_seconds
//     A Gauge that captures the Timestamp of the last completed run.
//   - last_run_duration_seconds
//     A Gauge that captures the duration of the last completed run.
//   - last_run_results - (tags: result)
//     A Gauge with number of cloned, updated, deleted, failed and anomaly mirrors of the last run.
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	actionCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "mirror_action_count",
		Help:      "Count of mirror actions",
	},
		[]string{
			// clone, update, reclone or delete
			"action",
			// Whether the action was successful or not
			"success",
		},
	)

	actionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "mirror_action_latency_seconds",
		Help:      "Latency of mirror actions",
		Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 60, 90, 120, 150, 300},
	},
		[]string{
			"action",
		},
	)

	lastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Timestamp of the last completed run",
	})

	lastRunDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "last_run_duration_seconds",
		Help:      "Duration of the last completed run",
	})

	lastRunResults = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "last_run_results",
		Help:      "Number of mirrors per result of the last run",
	},
		[]string{
			// cloned, updated, deleted, failed or anomaly
			"result",
		},
	)

	registerer.MustRegister(
		actionCount,
		actionLatency,
		lastRunTimestamp,
		lastRunDuration,
		lastRunResults,
	)
}

// recordAction records a mirror action attempt
func recordAction(action Action, success bool) {
	// if metrics not enabled return
	if actionCount == nil {
		return
	}
	actionCount.With(prometheus.Labels{
		"action":  string(action),
		"success": strconv.FormatBool(success),
	}).Inc()
}

func updateActionLatency(action Action, start time.Time) {
	// if metrics not enabled return
	if actionLatency == nil {
		return
	}
	actionLatency.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
}

// RecordRun updates last run metrics from the report
func RecordRun(r *Report) {
	// if metrics not enabled return
	if lastRunTimestamp == nil || r.DryRun {
		return
	}
	lastRunTimestamp.Set(float64(time.Now().Unix()))
	lastRunDuration.Set(r.Duration.Seconds())
	lastRunResults.WithLabelValues("cloned").Set(float64(len(r.Cloned)))
	lastRunResults.WithLabelValues("updated").Set(float64(len(r.Updated)))
	lastRunResults.WithLabelValues("deleted").Set(float64(len(r.Deleted)))
	lastRunResults.WithLabelValues("failed").Set(float64(r.Failed()))
	lastRunResults.WithLabelValues("anomaly").Set(float64(len(r.Anomalies)))
}
