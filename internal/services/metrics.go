package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stocklab",
		Name:      "pipeline_actions_total",
		Help:      "Pipeline actions processed, by action and outcome.",
	}, []string{"action", "outcome"})

	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stocklab",
		Name:      "pipeline_action_duration_seconds",
		Help:      "Duration of pipeline actions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "stocklab",
		Name:      "active_sessions",
		Help:      "Number of sessions currently registered.",
	})
)

func observeAction(action string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	actionsTotal.WithLabelValues(action, outcome).Inc()
	actionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}
