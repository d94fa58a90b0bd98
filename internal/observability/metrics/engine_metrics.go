package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/recouply/internal/batch"
	"gorm.io/gorm"
)

const (
	EngineErrorTypeDeadlineExceeded    = "deadline_exceeded"
	EngineErrorTypeValidation          = "validation"
	EngineErrorTypeMatchNotFound       = "match_not_found"
	EngineErrorTypeAlreadySettled      = "already_settled"
	EngineErrorTypeUpstreamUnavailable = "upstream_unavailable"
	EngineErrorTypeDB                  = "db"
	EngineErrorTypeBusinessRule        = "business_rule"
	EngineErrorTypeUnknown             = "unknown"
)

const (
	EngineJobReasonDeadlineExceeded     = "deadline_exceeded"
	EngineJobReasonDBLockTimeout        = "db_lock_timeout"
	EngineJobReasonSerializationFailure = "serialization_failure"
	EngineJobReasonUniqueViolation      = "unique_violation"
	EngineJobReasonUpstreamUnavailable  = "upstream_unavailable"
	EngineJobReasonUnknown              = "unknown"
)

const (
	DraftStatusAbsent = "absent"
)

// EngineMetrics captures collections engine health signals.
type EngineMetrics struct {
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobTimeouts      *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	rowsProcessed    *prometheus.CounterVec
	rowErrors        *prometheus.CounterVec
	draftTransitions *prometheus.CounterVec
	runLoopLag       prometheus.Observer
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *EngineMetrics
)

// Engine returns the singleton engine metrics registry.
func Engine() *EngineMetrics {
	return EngineWithConfig(Config{})
}

// EngineWithConfig returns the singleton engine metrics registry using config labels.
func EngineWithConfig(cfg Config) *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = newEngineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return engineMetrics
}

// ResetEngineMetricsForTest resets the engine metrics singleton for tests.
func ResetEngineMetricsForTest() {
	engineMetricsOnce = sync.Once{}
	engineMetrics = nil
}

func newEngineMetrics(registerer prometheus.Registerer, cfg Config) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "recouply"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recouply_engine_job_runs_total",
		Help:        "Engine phase runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "recouply_engine_job_duration_seconds",
		Help:        "Engine phase latency.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recouply_engine_job_timeouts_total",
		Help:        "Engine phases that hit their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recouply_engine_job_errors_total",
		Help:        "Engine phase failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	rowsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recouply_engine_rows_processed_total",
		Help:        "Rows handled per phase and resource.",
		ConstLabels: constLabels,
	}, []string{"job", "resource"})
	rowErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recouply_engine_row_errors_total",
		Help:        "Row-level failures per phase by error type.",
		ConstLabels: constLabels,
	}, []string{"job", "error_type"})
	draftTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recouply_draft_transition_total",
		Help:        "Outreach draft state transitions.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "recouply_engine_runloop_lag_seconds",
		Help:        "Engine run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		rowsProcessed,
		rowErrors,
		draftTransitions,
		runLoopLag,
	)

	return &EngineMetrics{
		jobRuns:          jobRuns,
		jobDuration:      jobDuration,
		jobTimeouts:      jobTimeouts,
		jobErrors:        jobErrors,
		rowsProcessed:    rowsProcessed,
		rowErrors:        rowErrors,
		draftTransitions: draftTransitions,
		runLoopLag:       runLoopLag,
	}
}

// IncJobRun increments the run counter for an engine phase.
func (m *EngineMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records engine phase latency in seconds.
func (m *EngineMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *EngineMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *EngineMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyEngineJobReason(err)).Inc()
}

// AddRowsProcessed increments the processed counter for a resource by count.
func (m *EngineMetrics) AddRowsProcessed(job, resource string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.rowsProcessed.WithLabelValues(job, resource).Add(float64(count))
}

func (m *EngineMetrics) IncRowError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.rowErrors.WithLabelValues(job, ClassifyEngineErrorType(err)).Inc()
}

// AddDraftTransition counts drafts moving between states.
func (m *EngineMetrics) AddDraftTransition(from, to string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.draftTransitions.WithLabelValues(from, to).Add(float64(count))
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *EngineMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// ClassifyEngineErrorType returns a low-cardinality error type for logging.
func ClassifyEngineErrorType(err error) string {
	switch {
	case err == nil:
		return EngineErrorTypeUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return EngineErrorTypeDeadlineExceeded
	case errors.Is(err, batch.ErrUpstreamUnavailable):
		return EngineErrorTypeUpstreamUnavailable
	case errors.Is(err, batch.ErrValidation):
		return EngineErrorTypeValidation
	case errors.Is(err, batch.ErrMatchNotFound):
		return EngineErrorTypeMatchNotFound
	case errors.Is(err, batch.ErrAlreadySettled):
		return EngineErrorTypeAlreadySettled
	case isDBError(err):
		return EngineErrorTypeDB
	default:
		return EngineErrorTypeBusinessRule
	}
}

// IsEngineErrorRetryable reports whether a later run may succeed on the same row.
func IsEngineErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, batch.ErrUpstreamUnavailable) {
		return true
	}
	return isDBError(err)
}

// ClassifyEngineJobReason maps phase errors to low-cardinality reasons.
func ClassifyEngineJobReason(err error) string {
	switch {
	case err == nil:
		return EngineJobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return EngineJobReasonDeadlineExceeded
	case errors.Is(err, batch.ErrUpstreamUnavailable):
		return EngineJobReasonUpstreamUnavailable
	case hasPGCode(err, "55P03"):
		return EngineJobReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return EngineJobReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return EngineJobReasonUniqueViolation
	default:
		return EngineJobReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
