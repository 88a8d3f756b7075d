package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonDeadlock             = "deadlock"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonUnknown              = "unknown"
)

const (
	OutcomeSettled = "settled"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// SettlementMetrics captures settlement pipeline and scheduler health.
type SettlementMetrics struct {
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	jobTimeouts       *prometheus.CounterVec
	jobErrors         *prometheus.CounterVec
	outcomes          *prometheus.CounterVec
	earnedAmount      prometheus.Counter
	retries           prometheus.Counter
	commissions       *prometheus.CounterVec
	payoutTransitions *prometheus.CounterVec
	dispatchTasks     *prometheus.CounterVec
	integrity         *prometheus.GaugeVec
}

var (
	settlementMetricsOnce sync.Once
	settlementMetrics     *SettlementMetrics
)

// Settlement returns the singleton settlement metrics.
func Settlement() *SettlementMetrics {
	return SettlementWithConfig(Config{})
}

// SettlementWithConfig returns the singleton, creating it with cfg const labels on first use.
func SettlementWithConfig(cfg Config) *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementMetrics = newSettlementMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return settlementMetrics
}

// ResetSettlementMetricsForTest resets the singleton for tests.
func ResetSettlementMetricsForTest() {
	settlementMetricsOnce = sync.Once{}
	settlementMetrics = nil
}

func newSettlementMetrics(registerer prometheus.Registerer, cfg Config) *SettlementMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "payout"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &SettlementMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payout_scheduler_job_runs_total",
			Help:        "Scheduler job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "payout_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payout_scheduler_job_timeouts_total",
			Help:        "Scheduler jobs that hit their deadline.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payout_scheduler_job_errors_total",
			Help:        "Scheduler job errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payout_settlement_payments_total",
			Help:        "Per-payment settlement outcomes.",
			ConstLabels: constLabels,
		}, []string{"outcome", "reason"}),
		earnedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "payout_settlement_earned_amount_total",
			Help:        "Sum of instructor earnings recorded by settlement.",
			ConstLabels: constLabels,
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "payout_settlement_retries_total",
			Help:        "Per-payment settlement attempts retried after a transient store error.",
			ConstLabels: constLabels,
		}),
		commissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payout_affiliate_commissions_total",
			Help:        "Commission calculations by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		payoutTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payout_affiliate_transitions_total",
			Help:        "Affiliate payout status transitions.",
			ConstLabels: constLabels,
		}, []string{"from", "to"}),
		dispatchTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payout_dispatch_tasks_total",
			Help:        "Best-effort side effect tasks by result.",
			ConstLabels: constLabels,
		}, []string{"task", "result"}),
		integrity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "payout_integrity_anomalies",
			Help:        "Rows violating settlement invariants at the last maintenance run.",
			ConstLabels: constLabels,
		}, []string{"check"}),
	}

	registerer.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.jobTimeouts,
		m.jobErrors,
		m.outcomes,
		m.earnedAmount,
		m.retries,
		m.commissions,
		m.payoutTransitions,
		m.dispatchTasks,
		m.integrity,
	)
	return m
}

func (m *SettlementMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SettlementMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SettlementMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *SettlementMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

// ObserveOutcome records one payment's settlement outcome.
func (m *SettlementMetrics) ObserveOutcome(outcome, reason string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome, reason).Inc()
}

func (m *SettlementMetrics) AddEarnedAmount(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.earnedAmount.Add(amount)
}

func (m *SettlementMetrics) IncRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *SettlementMetrics) IncCommission(result string) {
	if m == nil {
		return
	}
	m.commissions.WithLabelValues(result).Inc()
}

func (m *SettlementMetrics) IncPayoutTransition(from, to string) {
	if m == nil {
		return
	}
	m.payoutTransitions.WithLabelValues(from, to).Inc()
}

func (m *SettlementMetrics) IncDispatchTask(task, result string) {
	if m == nil {
		return
	}
	m.dispatchTasks.WithLabelValues(task, result).Inc()
}

func (m *SettlementMetrics) SetIntegrityAnomalies(check string, count int64) {
	if m == nil {
		return
	}
	m.integrity.WithLabelValues(check).Set(float64(count))
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	switch {
	case err == nil:
		return JobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return JobReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return JobReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return JobReasonSerializationFailure
	case hasPGCode(err, "40P01"):
		return JobReasonDeadlock
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return JobReasonUniqueViolation
	default:
		return JobReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
