package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	affiliatedomain "github.com/smallbiznis/payout/internal/affiliate/domain"
	"github.com/smallbiznis/payout/internal/apperror"
	"github.com/smallbiznis/payout/internal/clock"
	"github.com/smallbiznis/payout/internal/config"
	earningdomain "github.com/smallbiznis/payout/internal/earning/domain"
	earningrepo "github.com/smallbiznis/payout/internal/earning/repository"
	paymentdomain "github.com/smallbiznis/payout/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/payout/internal/payment/repository"
	"github.com/smallbiznis/payout/internal/settlement/domain"
	"github.com/smallbiznis/payout/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 4, 20, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	cfg      *config.PayoutConfigHolder
	payments paymentdomain.Repository
}

type fixtureOption func(*Params)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	db := dbtest.Open(t,
		&paymentdomain.Payment{},
		&paymentdomain.Refund{},
		&earningdomain.InstructorEarning{},
	)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	fc := clock.NewFakeClock(testNow)
	holder := config.NewStaticPayoutConfigHolder(config.DefaultPayoutConfig())

	p := Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fc,
		Payments: paymentrepo.Provide(),
		Earnings: earningrepo.Provide(),
		Config:   holder,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &fixture{svc: NewService(p), db: db, node: node, clock: fc, cfg: holder, payments: p.Payments}
}

func (f *fixture) seedPayment(t *testing.T, age time.Duration, amount string) paymentdomain.Payment {
	t.Helper()
	p := paymentdomain.Payment{
		ID:           f.node.Generate(),
		Amount:       decimal.RequireFromString(amount),
		Status:       paymentdomain.PaymentStatusCompleted,
		CourseID:     f.node.Generate(),
		InstructorID: f.node.Generate(),
		UserID:       f.node.Generate(),
		CreatedAt:    testNow.Add(-age),
		UpdatedAt:    testNow.Add(-age),
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) seedRefund(t *testing.T, paymentID snowflake.ID, status paymentdomain.RefundStatus) {
	t.Helper()
	require.NoError(t, f.db.Create(&paymentdomain.Refund{
		ID:        f.node.Generate(),
		PaymentID: paymentID,
		Status:    status,
		Amount:    decimal.NewFromInt(1),
		CreatedAt: testNow,
	}).Error)
}

func (f *fixture) setBatchSize(t *testing.T, n int) {
	t.Helper()
	cfg := f.cfg.Get()
	cfg.BatchSize = n
	require.NoError(t, f.cfg.Store(cfg))
}

func (f *fixture) earningCount(t *testing.T, paymentID snowflake.ID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&earningdomain.InstructorEarning{}).Where("payment_id = ?", paymentID).Count(&count).Error)
	return count
}

const old = 10 * 24 * time.Hour

func TestEarningAmount(t *testing.T) {
	assert.Equal(t, "70.00", EarningAmount(decimal.NewFromInt(100), decimal.NewFromInt(70)).StringFixed(2))
	assert.Equal(t, "23.33", EarningAmount(decimal.RequireFromString("33.33"), decimal.NewFromInt(70)).StringFixed(2))
	assert.Equal(t, "0.04", EarningAmount(decimal.RequireFromString("0.05"), decimal.NewFromInt(70)).StringFixed(2))
}

func TestRunSettlement_SettlesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedPayment(t, old, "100.00")

	first, err := f.svc.RunSettlement(ctx, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Settled)
	assert.Equal(t, "70.00", first.TotalAmount.StringFixed(2))

	second, err := f.svc.RunSettlement(ctx, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Scanned)
	assert.Equal(t, 0, second.Settled)

	assert.Equal(t, int64(1), f.earningCount(t, p.ID))
	stored, err := f.payments.FindByID(ctx, f.db, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaidOutAt)
	assert.True(t, stored.PaidOutAt.Equal(testNow))
}

func TestProcessBatch_DuplicateCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedPayment(t, old, "50.00")

	// two overlapping runs that both saw the payment as a candidate
	report := f.svc.ProcessBatch(ctx, []paymentdomain.Payment{p, p}, domain.TriggerSchedule)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.SkipReasons[domain.ReasonAlreadyPaidOut])
	assert.Equal(t, int64(1), f.earningCount(t, p.ID))
}

type raceRepo struct {
	paymentdomain.Repository
}

func (r raceRepo) MarkPaidOut(context.Context, *gorm.DB, snowflake.ID, time.Time) (bool, error) {
	return false, nil
}

func TestSettlePayment_LostRaceRollsBack(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		p.Payments = raceRepo{Repository: paymentrepo.Provide()}
	})
	p := f.seedPayment(t, old, "80.00")

	res := f.svc.SettlePayment(context.Background(), p.ID)
	assert.Equal(t, domain.OutcomeSkipped, res.Outcome)
	assert.Equal(t, domain.ReasonLostRace, res.Reason)
	assert.Equal(t, int64(0), f.earningCount(t, p.ID), "earning insert must roll back")
}

type flakyRepo struct {
	paymentdomain.Repository
	failures atomic.Int32
	calls    atomic.Int32
}

func (r *flakyRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*paymentdomain.Payment, error) {
	r.calls.Add(1)
	if r.failures.Add(-1) >= 0 {
		return nil, &pgconn.PgError{Code: "40001"}
	}
	return r.Repository.FindByID(ctx, db, id)
}

func TestSettlePayment_RetriesTransient(t *testing.T) {
	repo := &flakyRepo{Repository: paymentrepo.Provide()}
	repo.failures.Store(1)
	f := newFixture(t, func(p *Params) { p.Payments = repo })
	p := f.seedPayment(t, old, "10.00")

	res := f.svc.SettlePayment(context.Background(), p.ID)
	assert.Equal(t, domain.OutcomeSettled, res.Outcome)
	assert.Equal(t, int32(2), repo.calls.Load())
}

func TestSettlePayment_GivesUpAfterAttempts(t *testing.T) {
	repo := &flakyRepo{Repository: paymentrepo.Provide()}
	repo.failures.Store(10)
	f := newFixture(t, func(p *Params) { p.Payments = repo })
	p := f.seedPayment(t, old, "10.00")

	res := f.svc.SettlePayment(context.Background(), p.ID)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.True(t, apperror.Is(res.Err, apperror.KindTransient))
	assert.Equal(t, int32(settleAttempts), repo.calls.Load())
}

func TestSettlePayment_MissingPaymentFailsWithoutRetry(t *testing.T) {
	repo := &flakyRepo{Repository: paymentrepo.Provide()}
	f := newFixture(t, func(p *Params) { p.Payments = repo })

	res := f.svc.SettlePayment(context.Background(), f.node.Generate())
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, domain.ErrPaymentNotFound)
	assert.Equal(t, int32(1), repo.calls.Load())
}

func TestSettlePayment_RecheckSeesNewRefund(t *testing.T) {
	f := newFixture(t)
	p := f.seedPayment(t, old, "30.00")
	f.seedRefund(t, p.ID, paymentdomain.RefundStatusPending)

	res := f.svc.SettlePayment(context.Background(), p.ID)
	assert.Equal(t, domain.OutcomeSkipped, res.Outcome)
	assert.Equal(t, domain.ReasonBlockedByRefund, res.Reason)
}

func TestScan_TruncatesToBatchOldestFirst(t *testing.T) {
	f := newFixture(t)
	f.setBatchSize(t, 2)

	oldest := f.seedPayment(t, old+3*time.Hour, "10.00")
	middle := f.seedPayment(t, old+2*time.Hour, "10.00")
	f.seedPayment(t, old+time.Hour, "10.00")
	f.seedPayment(t, old, "10.00")

	got, err := f.svc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, oldest.ID, got[0].ID)
	assert.Equal(t, middle.ID, got[1].ID)
}

func TestScan_SkipsIneligibleAcrossPages(t *testing.T) {
	f := newFixture(t)
	f.setBatchSize(t, 1)
	cfg := f.cfg.Get()
	cfg.OversampleFactor = 1
	cfg.MaxScanPages = 5
	require.NoError(t, f.cfg.Store(cfg))

	blocked := f.seedPayment(t, old+2*time.Hour, "10.00")
	f.seedRefund(t, blocked.ID, paymentdomain.RefundStatusCompleted)
	eligible := f.seedPayment(t, old+time.Hour, "10.00")

	got, err := f.svc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, eligible.ID, got[0].ID)
}

func TestScan_StopsAtPageBudget(t *testing.T) {
	f := newFixture(t)
	f.setBatchSize(t, 1)
	cfg := f.cfg.Get()
	cfg.OversampleFactor = 1
	cfg.MaxScanPages = 2
	require.NoError(t, f.cfg.Store(cfg))

	for i := 0; i < 3; i++ {
		p := f.seedPayment(t, old+time.Duration(3-i)*time.Hour, "10.00")
		f.seedRefund(t, p.ID, paymentdomain.RefundStatusPending)
	}
	f.seedPayment(t, old, "10.00")

	got, err := f.svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	summary, err := f.svc.EligibilitySummary(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Truncated)
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 2, summary.Reasons[domain.ReasonBlockedByRefund])
	assert.Zero(t, summary.Eligible)
}

func TestEligibilitySummary(t *testing.T) {
	f := newFixture(t)
	settled := f.seedPayment(t, old+time.Hour, "10.00")
	res := f.svc.SettlePayment(context.Background(), settled.ID)
	require.Equal(t, domain.OutcomeSettled, res.Outcome)

	f.seedPayment(t, old, "10.00")
	f.seedPayment(t, time.Hour, "10.00")
	refunded := f.seedPayment(t, old, "10.00")
	f.seedRefund(t, refunded.ID, paymentdomain.RefundStatusPending)

	summary, err := f.svc.EligibilitySummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 1, summary.Eligible)
	assert.False(t, summary.Truncated)
	assert.Equal(t, 1, summary.Reasons[domain.ReasonWithinWaitingPeriod])
	assert.Equal(t, 1, summary.Reasons[domain.ReasonBlockedByRefund])
	assert.Equal(t, 1, summary.Reasons[domain.ReasonAlreadyPaidOut])
}

type refundOutageRepo struct {
	paymentdomain.Repository
}

func (r refundOutageRepo) ListRefundsByPaymentIDs(context.Context, *gorm.DB, []snowflake.ID) (map[snowflake.ID][]paymentdomain.Refund, error) {
	return nil, errors.New("refunds table unavailable")
}

func TestScan_RefundOutageDefersToSettleRecheck(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixture(t, func(p *Params) {
		p.Log = zap.New(core)
		p.Payments = refundOutageRepo{Repository: paymentrepo.Provide()}
	})
	p := f.seedPayment(t, old, "25.00")
	f.seedRefund(t, p.ID, paymentdomain.RefundStatusCompleted)

	got, err := f.svc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, p.ID, got[0].ID)
	assert.Equal(t, 1, logs.FilterMessage("refund load failed, scanning page without refunds").Len())

	res := f.svc.SettlePayment(context.Background(), p.ID)
	assert.Equal(t, domain.OutcomeSkipped, res.Outcome)
	assert.Equal(t, domain.ReasonBlockedByRefund, res.Reason)
	assert.Equal(t, int64(0), f.earningCount(t, p.ID))
}

type calculatorMock struct {
	mock.Mock
}

func (m *calculatorMock) CalculateForPayment(ctx context.Context, userID, courseID snowflake.ID, finalPrice decimal.Decimal) (*affiliatedomain.AffiliatePayout, error) {
	args := m.Called(ctx, userID, courseID, finalPrice)
	payout, _ := args.Get(0).(*affiliatedomain.AffiliatePayout)
	return payout, args.Error(1)
}

type recordingInvalidator struct {
	keys []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, keys ...string) error {
	r.keys = append(r.keys, keys...)
	return nil
}

func TestSettlePayment_SideEffects(t *testing.T) {
	calc := &calculatorMock{}
	inv := &recordingInvalidator{}
	f := newFixture(t, func(p *Params) {
		p.Commissions = calc
		p.Cache = inv
	})
	p := f.seedPayment(t, old, "120.00")

	calc.On("CalculateForPayment", mock.Anything, p.UserID, p.CourseID, mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(p.Amount)
	})).Return(nil, errors.New("referral store down")).Once()

	res := f.svc.SettlePayment(context.Background(), p.ID)
	assert.Equal(t, domain.OutcomeSettled, res.Outcome, "side effect failures never fail the payment")
	calc.AssertExpectations(t)
	assert.ElementsMatch(t, []string{
		"instructor:" + p.InstructorID.String() + ":earnings",
		"payment:" + p.ID.String(),
	}, inv.keys)
}

type fakeTrigger struct {
	report *domain.RunReport
}

func (f fakeTrigger) TriggerNow(context.Context) (*domain.RunReport, error) {
	return f.report, nil
}

func TestAdmin(t *testing.T) {
	f := newFixture(t)
	admin := NewAdmin(AdminParams{DB: f.db, Log: zap.NewNop(), Service: f.svc, Config: f.cfg})

	_, err := admin.TriggerSettlement(context.Background())
	assert.True(t, apperror.Is(err, apperror.KindState))

	assert.True(t, admin.Healthy(context.Background()))
	snap := admin.Config()
	assert.Equal(t, 7, snap.WaitingPeriodDays)
	assert.Equal(t, "1h0m0s", snap.SettlementInterval)

	want := domain.NewRunReport()
	want.Settled = 4
	admin = NewAdmin(AdminParams{DB: f.db, Log: zap.NewNop(), Service: f.svc, Config: f.cfg, Trigger: fakeTrigger{report: want}})
	got, err := admin.TriggerSettlement(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, got.Settled)
}
