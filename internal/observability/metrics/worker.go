package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	WorkerReasonDeadlineExceeded     = "deadline_exceeded"
	WorkerReasonDBLockTimeout        = "db_lock_timeout"
	WorkerReasonSerializationFailure = "serialization_failure"
	WorkerReasonUniqueViolation      = "unique_violation"
	WorkerReasonUnknown              = "unknown"
)

const (
	WorkerJobProvisioning = "provisioning"
	WorkerJobSweep        = "paid_session_sweep"
)

// WorkerMetrics captures background worker health for the provisioning
// consumer.
type WorkerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	jobsManual     prometheus.Counter
	runLoopLag     prometheus.Observer
}

func NewWorkerMetrics(cfg Config) *WorkerMetrics {
	return newWorkerMetrics(prometheus.DefaultRegisterer, cfg)
}

func newWorkerMetrics(registerer prometheus.Registerer, cfg Config) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := serviceLabels(cfg)

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "worker_job_runs_total",
		Help:        "Background worker runs by job.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "worker_job_duration_seconds",
		Help:        "Background worker latency by job.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "worker_job_errors_total",
		Help:        "Background worker errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "worker_batch_processed_total",
		Help:        "Items processed per worker batch.",
		ConstLabels: constLabels,
	}, []string{"job", "resource"})
	jobsManual := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "provisioning_jobs_manual_total",
		Help:        "Provisioning jobs that exhausted retries and need manual follow-up.",
		ConstLabels: constLabels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "worker_runloop_lag_seconds",
		Help:        "Worker loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(jobRuns, jobDuration, jobErrors, batchProcessed, jobsManual, runLoopLag)

	return &WorkerMetrics{
		jobRuns:        jobRuns,
		jobDuration:    jobDuration,
		jobErrors:      jobErrors,
		batchProcessed: batchProcessed,
		jobsManual:     jobsManual,
		runLoopLag:     runLoopLag,
	}
}

func (m *WorkerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *WorkerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *WorkerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyWorkerReason(err)).Inc()
}

func (m *WorkerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

func (m *WorkerMetrics) IncManual() {
	if m == nil {
		return
	}
	m.jobsManual.Inc()
}

func (m *WorkerMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m == nil {
		return
	}
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ClassifyWorkerReason maps worker errors to low-cardinality reasons.
func ClassifyWorkerReason(err error) string {
	switch {
	case err == nil:
		return WorkerReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return WorkerReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return WorkerReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return WorkerReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return WorkerReasonUniqueViolation
	default:
		return WorkerReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
