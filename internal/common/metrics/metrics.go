// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verdict label values.
const (
	VerdictAllowed = "allowed"
	VerdictDenied  = "denied"
	VerdictError   = "error"
)

var (
	AntispamChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antispam_checks_total",
			Help: "Total number of anti-spam checks by remote method and verdict",
		},
		[]string{"method", "verdict"},
	)

	AntispamCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "antispam_check_duration_seconds",
			Help:    "Duration of anti-spam checks including the remote call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	AntispamInactiveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antispam_inactive_total",
			Help: "Verdicts flagged as needing manual admin approval",
		},
		[]string{"method"},
	)

	AntispamCheckErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antispam_check_errors_total",
			Help: "Anti-spam checks that failed before a verdict was obtained",
		},
		[]string{"method", "code"},
	)
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// VerdictLabel maps an allow flag onto the verdict label.
func VerdictLabel(allowed bool) string {
	if allowed {
		return VerdictAllowed
	}
	return VerdictDenied
}
