package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payout/internal/apperror"
	"github.com/smallbiznis/payout/internal/cache"
	earningdomain "github.com/smallbiznis/payout/internal/earning/domain"
	"github.com/smallbiznis/payout/internal/notification"
	obsmetrics "github.com/smallbiznis/payout/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/payout/internal/payment/domain"
	"github.com/smallbiznis/payout/internal/settlement/domain"
	"github.com/smallbiznis/payout/internal/settlement/eligibility"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	settleAttempts   = 3
	settleRetryDelay = 50 * time.Millisecond
)

var hundred = decimal.NewFromInt(100)

// EarningAmount is amount × sharePercent ÷ 100 rounded half-up to cents.
func EarningAmount(amount, sharePercent decimal.Decimal) decimal.Decimal {
	return amount.Mul(sharePercent).Div(hundred).Round(2)
}

// RunSettlement scans and settles one batch. Only scan failures are returned.
func (s *Service) RunSettlement(ctx context.Context, trigger domain.Trigger) (*domain.RunReport, error) {
	candidates, err := s.Scan(ctx)
	if err != nil {
		s.notify(ctx, notification.EventSettlementFailed, map[string]any{
			"trigger": trigger,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("scan candidates: %w", err)
	}

	report := s.ProcessBatch(ctx, candidates, trigger)
	s.notify(ctx, notification.EventSettlementCompleted, map[string]any{
		"trigger":      trigger,
		"scanned":      report.Scanned,
		"settled":      report.Settled,
		"skipped":      report.Skipped,
		"failed":       report.Failed,
		"total_amount": report.TotalAmount.StringFixed(2),
	})
	return report, nil
}

// ProcessBatch settles each candidate independently. A cancelled context stops
// the batch; payments already settled stay settled.
func (s *Service) ProcessBatch(ctx context.Context, candidates []paymentdomain.Payment, trigger domain.Trigger) *domain.RunReport {
	report := domain.NewRunReport()
	report.Scanned = len(candidates)

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			s.logger(ctx).Warn("settlement batch interrupted",
				zap.Int("remaining", report.Scanned-report.Settled-report.Skipped-report.Failed),
			)
			break
		}
		res := s.SettlePayment(ctx, candidate.ID)
		report.Add(res)
		s.observe(ctx, res, trigger)
	}
	return report
}

// SettlePayment converts one payment into an earning at most once, retrying
// transient store errors.
func (s *Service) SettlePayment(ctx context.Context, paymentID snowflake.ID) domain.Result {
	var (
		res      domain.Result
		attempts int
	)
	err := retry.Do(
		func() error {
			attempts++
			var err error
			res, err = s.settleOnce(ctx, paymentID)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(settleAttempts),
		retry.Delay(settleRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(apperror.IsTransientStoreError),
		retry.OnRetry(func(n uint, err error) {
			s.metrics.IncRetry()
			s.logger(ctx).Warn("settlement retry",
				zap.String("payment_id", paymentID.String()),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		s.logger(ctx).Error("settlement failed",
			zap.String("payment_id", paymentID.String()),
			zap.Int("attempts", attempts),
			zap.String("reason", obsmetrics.ClassifyJobReason(err)),
			zap.Error(err),
		)
		return domain.Result{PaymentID: paymentID, Outcome: domain.OutcomeFailed, Err: err}
	}
	return res
}

func (s *Service) settleOnce(ctx context.Context, paymentID snowflake.ID) (domain.Result, error) {
	cfg := s.cfg.Get()
	now := s.clock.Now()
	res := domain.Result{PaymentID: paymentID}

	var (
		payment *paymentdomain.Payment
		earning *earningdomain.InstructorEarning
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.payments.FindByID(ctx, tx, paymentID)
		if err != nil {
			return apperror.FromStore(err)
		}
		if payment == nil {
			return apperror.Wrap(apperror.KindNotFound, domain.ErrPaymentNotFound)
		}
		if payment.PaidOutAt != nil {
			res.Outcome, res.Reason = domain.OutcomeSkipped, domain.ReasonAlreadyPaidOut
			return nil
		}

		refunds, err := s.payments.ListRefunds(ctx, tx, paymentID)
		if err != nil {
			return apperror.Transient(domain.ErrRefundLoadFailed.Error(), err)
		}
		exists, err := s.earnings.ExistsForPayment(ctx, tx, paymentID)
		if err != nil {
			return apperror.FromStore(err)
		}
		decision := eligibility.Evaluate(eligibility.Input{
			Payment:       *payment,
			Refunds:       refunds,
			EarningExists: exists,
		}, now, cfg.WaitingPeriod())
		if !decision.Eligible {
			res.Outcome, res.Reason = domain.OutcomeSkipped, decision.Reason
			return nil
		}

		earning = &earningdomain.InstructorEarning{
			ID:           s.genID.Generate(),
			PaymentID:    payment.ID,
			InstructorID: payment.InstructorID,
			CourseID:     payment.CourseID,
			Amount:       EarningAmount(payment.Amount, cfg.InstructorSharePercent),
			Status:       earningdomain.EarningStatusAvailable,
			CreatedAt:    now,
		}
		inserted, err := s.earnings.Insert(ctx, tx, earning)
		if err != nil {
			return apperror.FromStore(err)
		}
		if !inserted {
			res.Outcome, res.Reason = domain.OutcomeSkipped, domain.ReasonLostRace
			return nil
		}

		marked, err := s.payments.MarkPaidOut(ctx, tx, payment.ID, now)
		if err != nil {
			return apperror.FromStore(err)
		}
		if !marked {
			return domain.ErrLostRace
		}

		res.Outcome, res.Reason, res.Amount = domain.OutcomeSettled, domain.ReasonEligible, earning.Amount
		return nil
	})
	if errors.Is(err, domain.ErrLostRace) {
		return domain.Result{PaymentID: paymentID, Outcome: domain.OutcomeSkipped, Reason: domain.ReasonLostRace}, nil
	}
	if err != nil {
		return res, err
	}

	if res.Outcome == domain.OutcomeSettled {
		s.afterSettle(ctx, *payment, *earning)
	}
	return res, nil
}

// afterSettle runs best-effort side effects once the settlement has committed.
func (s *Service) afterSettle(ctx context.Context, payment paymentdomain.Payment, earning earningdomain.InstructorEarning) {
	s.logger(ctx).Info("payment settled",
		zap.String("payment_id", payment.ID.String()),
		zap.String("earning_id", earning.ID.String()),
		zap.String("instructor_id", payment.InstructorID.String()),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("earning_amount", earning.Amount.StringFixed(2)),
	)

	if s.cache != nil {
		keys := []string{cache.InstructorEarningsKey(payment.InstructorID), cache.PaymentKey(payment.ID)}
		s.submit(ctx, "cache_invalidate", func(ctx context.Context) error {
			return s.cache.Invalidate(ctx, keys...)
		})
	}
	s.notify(ctx, notification.EventPaymentSettled, map[string]any{
		"payment_id":     payment.ID.String(),
		"instructor_id":  payment.InstructorID.String(),
		"earning_id":     earning.ID.String(),
		"earning_amount": earning.Amount.StringFixed(2),
	})
	if s.commissions != nil {
		s.submit(ctx, "affiliate_commission", func(ctx context.Context) error {
			_, err := s.commissions.CalculateForPayment(ctx, payment.UserID, payment.CourseID, payment.Amount)
			return err
		})
	}
}

func (s *Service) notify(ctx context.Context, eventType string, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	s.submit(ctx, "notify", func(ctx context.Context) error {
		return s.notifier.Notify(ctx, eventType, payload)
	})
}

func (s *Service) observe(ctx context.Context, res domain.Result, trigger domain.Trigger) {
	s.metrics.ObserveOutcome(string(res.Outcome), string(res.Reason))
	switch res.Outcome {
	case domain.OutcomeSettled:
		amount, _ := res.Amount.Float64()
		s.metrics.AddEarnedAmount(amount)
		s.obsMetrics.RecordPaymentSettled(ctx, string(trigger))
	case domain.OutcomeSkipped:
		s.logger(ctx).Debug("payment skipped",
			zap.String("payment_id", res.PaymentID.String()),
			zap.String("reason", string(res.Reason)),
		)
	}
}
