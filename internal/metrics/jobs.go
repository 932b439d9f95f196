package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobsAdmittedTotal,
		admissionsRejectedTotal,
		jobsFinishedTotal,
		stageDurationSeconds,
		cleanupFailuresTotal,
		workerBusy,
		queueDepth,
	)
}

var (
	jobsAdmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartdub_jobs_admitted_total",
		Help: "Jobs accepted by the submission gate.",
	})

	admissionsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartdub_admissions_rejected_total",
			Help: "Submissions refused by the submission gate, labeled by reason.",
		},
		[]string{"reason"},
	)

	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartdub_jobs_finished_total",
			Help: "Jobs that reached a terminal state, labeled by status.",
		},
		[]string{"status"}, // done, error
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartdub_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage", "result"}, // result: ok, error
	)

	cleanupFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartdub_cleanup_failures_total",
		Help: "Transient artifact cleanups that still failed after retries.",
	})

	workerBusy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smartdub_worker_busy",
		Help: "1 while the single-flight worker holds the exclusivity token.",
	})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smartdub_queue_depth",
		Help: "Queued jobs observed at the last claim.",
	})
)

func IncJobAdmitted() {
	jobsAdmittedTotal.Inc()
}

func IncAdmissionRejected(reason string) {
	admissionsRejectedTotal.WithLabelValues(reason).Inc()
}

func IncJobFinished(status string) {
	jobsFinishedTotal.WithLabelValues(status).Inc()
}

// ObserveStage records one stage execution.
func ObserveStage(stage string, d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	stageDurationSeconds.WithLabelValues(stage, result).Observe(d.Seconds())
}

func IncCleanupFailure() {
	cleanupFailuresTotal.Inc()
}

func SetWorkerBusy(busy bool) {
	if busy {
		workerBusy.Set(1)
		return
	}
	workerBusy.Set(0)
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
