// Package metrics holds the Prometheus collectors for the session coordinator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ActiveSessions     prometheus.Gauge
	SessionsStarted    prometheus.Counter
	SessionsFailed     prometheus.Counter
	SessionsTerminated *prometheus.CounterVec
	SessionDuration    prometheus.Histogram

	FragmentsReceived prometheus.Counter
	FragmentsDropped  *prometheus.CounterVec
	ResponsesRelayed  *prometheus.CounterVec
	ForcedCleanups    prometheus.Counter

	UploadsReceived prometheus.Counter
}

// New registers all collectors with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "shabad_active_sessions",
			Help: "Current number of registered transcription sessions",
		}),
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "shabad_sessions_started_total",
			Help: "Total number of sessions that reached the active state",
		}),
		SessionsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "shabad_sessions_failed_total",
			Help: "Total number of sessions whose recognizer could not be opened",
		}),
		SessionsTerminated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shabad_sessions_terminated_total",
			Help: "Total number of terminated sessions by outcome",
		}, []string{"outcome"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "shabad_session_duration_seconds",
			Help:    "Lifetime of transcription sessions",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		FragmentsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "shabad_fragments_received_total",
			Help: "Total number of audio fragments received from clients",
		}),
		FragmentsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shabad_fragments_dropped_total",
			Help: "Total number of audio fragments dropped by reason",
		}, []string{"reason"}),
		ResponsesRelayed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shabad_responses_relayed_total",
			Help: "Total number of recognizer responses relayed to clients",
		}, []string{"finality"}),
		ForcedCleanups: f.NewCounter(prometheus.CounterOpts{
			Name: "shabad_forced_cleanups_total",
			Help: "Total number of sessions closed by the drain timeout",
		}),
		UploadsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "shabad_uploads_received_total",
			Help: "Total number of audio files accepted by the upload endpoint",
		}),
	}
}
