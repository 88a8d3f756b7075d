package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payout/internal/clock"
	"github.com/smallbiznis/payout/internal/config"
	earningdomain "github.com/smallbiznis/payout/internal/earning/domain"
	earningrepo "github.com/smallbiznis/payout/internal/earning/repository"
	obsmetrics "github.com/smallbiznis/payout/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/payout/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/payout/internal/payment/repository"
	"github.com/smallbiznis/payout/internal/scheduler/domain"
	"github.com/smallbiznis/payout/internal/scheduler/repository"
	settlementservice "github.com/smallbiznis/payout/internal/settlement/service"
	"github.com/smallbiznis/payout/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSettlementMetricsForTest()
	obsmetrics.SettlementWithConfig(obsmetrics.Config{
		ServiceName: "payout",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	db := dbtest.Open(t, &domain.JobRun{})
	s := &Scheduler{log: zap.NewNop(), db: db, genID: node, clock: clock.NewFakeClock(testNow), jobRuns: repository.Provide()}
	err = s.runJob(context.Background(), "timeout_job", "schedule", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "payout",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "payout_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "payout",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.JobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "payout_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}

	runs, err := s.ListRuns(context.Background(), "timeout_job", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusFailed, runs[0].Status)
}

type fixture struct {
	sched *Scheduler
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	cfg   *config.PayoutConfigHolder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := prometheus.NewRegistry()
	t.Cleanup(swapPrometheusRegistry(registry))
	obsmetrics.ResetSettlementMetricsForTest()

	db := dbtest.Open(t,
		&paymentdomain.Payment{},
		&paymentdomain.Refund{},
		&earningdomain.InstructorEarning{},
		&domain.JobRun{},
	)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fc := clock.NewFakeClock(testNow)
	holder := config.NewStaticPayoutConfigHolder(config.DefaultPayoutConfig())

	svc := settlementservice.NewService(settlementservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fc,
		Payments: paymentrepo.Provide(),
		Earnings: earningrepo.Provide(),
		Config:   holder,
	})
	sched, err := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fc,
		Settlement: svc,
		Payout:     holder,
		JobRuns:    repository.Provide(),
		Earnings:   earningrepo.Provide(),
	})
	require.NoError(t, err)
	return &fixture{sched: sched, db: db, node: node, clock: fc, cfg: holder}
}

func (f *fixture) seedPayment(t *testing.T, age time.Duration, paidOut bool) paymentdomain.Payment {
	t.Helper()
	p := paymentdomain.Payment{
		ID:           f.node.Generate(),
		Amount:       decimal.NewFromInt(200),
		Status:       paymentdomain.PaymentStatusCompleted,
		CourseID:     f.node.Generate(),
		InstructorID: f.node.Generate(),
		UserID:       f.node.Generate(),
		CreatedAt:    testNow.Add(-age),
		UpdatedAt:    testNow.Add(-age),
	}
	if paidOut {
		at := testNow.Add(-time.Hour)
		p.PaidOutAt = &at
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTriggerNow_SettlesAndRecordsRun(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, 30*24*time.Hour, false)
	f.seedPayment(t, time.Hour, false)

	report, err := f.sched.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, "140.00", report.TotalAmount.StringFixed(2))

	runs, err := f.sched.ListRuns(context.Background(), JobSettlement, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "manual", runs[0].Trigger)
	assert.Equal(t, domain.RunStatusSucceeded, runs[0].Status)
	assert.Equal(t, 1, runs[0].ProcessedCount)
	assert.Equal(t, "140.00", runs[0].TotalAmount.StringFixed(2))
}

func TestStart_SchedulingDisabledStillAllowsManualTrigger(t *testing.T) {
	f := newFixture(t)
	cfg := f.cfg.Get()
	cfg.SchedulingEnabled = false
	require.NoError(t, f.cfg.Store(cfg))

	require.NoError(t, f.sched.Start())
	assert.Nil(t, f.sched.cron)
	require.NoError(t, f.sched.Stop())

	f.seedPayment(t, 30*24*time.Hour, false)
	report, err := f.sched.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)
}

func TestStart_RegistersJobs(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sched.Start())
	require.NotNil(t, f.sched.cron)
	assert.Len(t, f.sched.cron.Jobs(), 3)
	require.NoError(t, f.sched.Stop())
}

func TestMaintenance_PrunesAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := &domain.JobRun{
		ID:          f.node.Generate(),
		Job:         JobSettlement,
		RunID:       "old",
		Trigger:     "schedule",
		StartedAt:   testNow.Add(-60 * 24 * time.Hour),
		FinishedAt:  testNow.Add(-60 * 24 * time.Hour),
		TotalAmount: decimal.Zero,
		Status:      domain.RunStatusSucceeded,
	}
	require.NoError(t, repository.Provide().Insert(ctx, f.db, stale))
	f.seedPayment(t, 30*24*time.Hour, true)

	require.NoError(t, f.sched.runMaintenance(ctx, "schedule"))

	runs, err := f.sched.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, JobMaintenance, runs[0].Job)
	assert.EqualValues(t, 1, runs[0].Metadata[checkPaidOutWithoutEarning])

	// read-only: the anomaly is reported, not repaired
	var earnings int64
	require.NoError(t, f.db.Model(&earningdomain.InstructorEarning{}).Count(&earnings).Error)
	assert.Zero(t, earnings)
}

func TestRunOnce_JoinsJobErrors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Migrator().DropTable(&paymentdomain.Payment{}))

	err := f.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settlement:")
	assert.Contains(t, err.Error(), "eligibility_report:")

	runs, listErr := f.sched.ListRuns(context.Background(), JobSettlement, 10)
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].Error)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSettlementMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
