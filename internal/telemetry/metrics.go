// Package telemetry exposes Prometheus metrics for runs, polling and
// suggestion generation.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patchpilot_runs_total",
			Help: "Runs that reached a terminal status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "patchpilot_run_duration_seconds",
			Help:    "Wall time from run start to terminal status",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	FindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patchpilot_findings_total",
			Help: "Findings recorded, by category",
		},
		[]string{"category"},
	)

	SuggestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patchpilot_suggestions_total",
			Help: "Suggestions generated, by source (ai or rules)",
		},
		[]string{"source"},
	)

	PollsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "patchpilot_polls_total",
			Help: "Completed repository poll cycles",
		},
	)

	PollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "patchpilot_poll_errors_total",
			Help: "Repository fetch errors during polling",
		},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patchpilot_webhook_events_total",
			Help: "Webhook deliveries, by outcome",
		},
		[]string{"outcome"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "patchpilot_queue_depth",
			Help: "Run ids waiting for a worker",
		},
	)
)
