// Package observability registers the service's Prometheus collectors.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncRunsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Number of incremental syncs, labeled by outcome.",
	}, []string{"outcome"})

	activitiesUpsertedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "sync",
		Name:      "activities_upserted_total",
		Help:      "Number of provider activities inserted or updated.",
	})

	syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trainingsync",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Time spent refreshing, listing, and upserting during a sync.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trainingsync",
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful sync.",
	})

	tokenRefreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "credentials",
		Name:      "refresh_total",
		Help:      "Provider token refresh attempts, labeled by outcome.",
	}, []string{"outcome"})

	feedbackCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "feedback",
		Name:      "records_total",
		Help:      "Feedback records persisted, labeled by adherence and pain.",
	}, []string{"adherence", "pain"})

	dialogueStepCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "dialogue",
		Name:      "transitions_total",
		Help:      "Dialogue transitions, labeled by the step entered.",
	}, []string{"step"})
)

func init() {
	prometheus.MustRegister(syncRunsCounter, activitiesUpsertedCounter, syncDuration, lastSyncGauge, tokenRefreshCounter, feedbackCounter, dialogueStepCounter)
}

// RecordSync tracks the outcome of one sync run.
func RecordSync(err error, count int, elapsed time.Duration) {
	syncDuration.Observe(elapsed.Seconds())
	if err != nil {
		syncRunsCounter.WithLabelValues("failed").Inc()
		return
	}
	syncRunsCounter.WithLabelValues("succeeded").Inc()
	activitiesUpsertedCounter.Add(float64(count))
	lastSyncGauge.Set(float64(time.Now().Unix()))
}

// RecordTokenRefresh counts a refresh attempt.
func RecordTokenRefresh(outcome string) {
	tokenRefreshCounter.WithLabelValues(outcome).Inc()
}

// RecordFeedback counts a persisted feedback record.
func RecordFeedback(adherence string, hasPain bool) {
	if adherence == "" {
		adherence = "unknown"
	}
	feedbackCounter.WithLabelValues(adherence, strconv.FormatBool(hasPain)).Inc()
}

// RecordDialogueStep counts a dialogue transition.
func RecordDialogueStep(step string) {
	dialogueStepCounter.WithLabelValues(step).Inc()
}
