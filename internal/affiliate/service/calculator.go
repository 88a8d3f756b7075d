package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payout/internal/affiliate/domain"
	"github.com/smallbiznis/payout/internal/apperror"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// CommissionAmount is finalPrice × percent ÷ 100 rounded half-up to cents.
func CommissionAmount(finalPrice, percent decimal.Decimal) decimal.Decimal {
	return finalPrice.Mul(percent).Div(hundred).Round(2)
}

// Calculate creates the commission for a referral discount usage. Repeated
// calls for the same usage return the stored payout unchanged.
func (s *Service) Calculate(ctx context.Context, usageID snowflake.ID, finalPrice decimal.Decimal) (*domain.AffiliatePayout, error) {
	usage, err := s.repo.FindUsage(ctx, s.db, usageID)
	if err != nil {
		return nil, apperror.FromStore(err)
	}
	if usage == nil {
		return nil, apperror.Wrap(apperror.KindNotFound, domain.ErrUsageNotFound)
	}
	return s.calculateForUsage(ctx, usage, finalPrice, "discount_usage")
}

// CalculateForPayment resolves the referral usage behind a settled payment and
// creates its commission. It is a no-op without a referral usage or while
// commissions are disabled.
func (s *Service) CalculateForPayment(ctx context.Context, userID, courseID snowflake.ID, finalPrice decimal.Decimal) (*domain.AffiliatePayout, error) {
	if !s.cfg.Get().CommissionEnabled {
		return nil, nil
	}
	usage, err := s.repo.FindReferralUsage(ctx, s.db, userID, courseID)
	if err != nil {
		return nil, apperror.FromStore(err)
	}
	if usage == nil {
		return nil, nil
	}
	return s.calculateForUsage(ctx, usage, finalPrice, "settlement")
}

func (s *Service) calculateForUsage(ctx context.Context, usage *domain.DiscountUsage, finalPrice decimal.Decimal, source string) (*domain.AffiliatePayout, error) {
	if usage.DiscountType != domain.DiscountTypeReferral {
		s.metrics.IncCommission("rejected")
		return nil, apperror.Wrap(apperror.KindValidation, domain.ErrNotReferral)
	}
	if !usage.IsReferral() {
		s.metrics.IncCommission("rejected")
		return nil, apperror.Wrap(apperror.KindValidation, domain.ErrMissingReferrer)
	}

	// a stored payout is returned even after commissions are switched off
	existing, err := s.repo.FindPayoutByUsage(ctx, s.db, usage.ID)
	if err != nil {
		return nil, apperror.FromStore(err)
	}
	if existing != nil {
		s.metrics.IncCommission("existing")
		return existing, nil
	}

	cfg := s.cfg.Get()
	if !cfg.CommissionEnabled {
		s.metrics.IncCommission("disabled")
		return nil, apperror.Wrap(apperror.KindState, domain.ErrCommissionDisabled)
	}

	if finalPrice.IsNegative() {
		return nil, apperror.Wrap(apperror.KindValidation, domain.ErrInvalidFinalPrice)
	}

	now := s.clock.Now()
	payout := &domain.AffiliatePayout{
		ID:                s.genID.Generate(),
		DiscountUsageID:   usage.ID,
		ReferredByUserID:  *usage.ReferredByUserID,
		CourseID:          usage.CourseID,
		CommissionPercent: cfg.CommissionPercent,
		CommissionAmount:  CommissionAmount(finalPrice, cfg.CommissionPercent),
		Status:            domain.PayoutStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	inserted, err := s.repo.InsertPayout(ctx, s.db, payout)
	if err != nil {
		return nil, apperror.FromStore(err)
	}
	if !inserted {
		// lost the race to a concurrent trigger for the same usage
		stored, err := s.repo.FindPayoutByUsage(ctx, s.db, usage.ID)
		if err != nil {
			return nil, apperror.FromStore(err)
		}
		if stored == nil {
			return nil, apperror.Wrap(apperror.KindNotFound, domain.ErrPayoutNotFound)
		}
		s.metrics.IncCommission("existing")
		return stored, nil
	}

	s.metrics.IncCommission("created")
	s.obsMetrics.RecordCommissionCreated(ctx, source)
	s.log.Info("affiliate commission created",
		zap.String("payout_id", payout.ID.String()),
		zap.String("discount_usage_id", usage.ID.String()),
		zap.String("referred_by_user_id", payout.ReferredByUserID.String()),
		zap.String("commission_amount", payout.CommissionAmount.StringFixed(2)),
		zap.String("source", source),
	)
	return payout, nil
}
