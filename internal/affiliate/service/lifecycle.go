package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payout/internal/affiliate/domain"
	"github.com/smallbiznis/payout/internal/apperror"
	"go.uber.org/zap"
)

// MarkPaid transitions a PENDING payout to PAID.
func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID) (*domain.AffiliatePayout, error) {
	now := s.clock.Now()
	updated, err := s.repo.MarkPaid(ctx, s.db, id, now)
	if err != nil {
		return nil, apperror.FromStore(err)
	}
	if !updated {
		return nil, s.transitionError(ctx, id)
	}
	s.recordTransition(ctx, id, domain.PayoutStatusPaid, "")
	return s.Get(ctx, id)
}

// Cancel transitions a PENDING payout to CANCELLED with a mandatory reason.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID, reason string) (*domain.AffiliatePayout, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Wrap(apperror.KindValidation, domain.ErrCancelReasonMissing)
	}
	now := s.clock.Now()
	updated, err := s.repo.Cancel(ctx, s.db, id, reason, now)
	if err != nil {
		return nil, apperror.FromStore(err)
	}
	if !updated {
		return nil, s.transitionError(ctx, id)
	}
	s.recordTransition(ctx, id, domain.PayoutStatusCancelled, reason)
	return s.Get(ctx, id)
}

// BulkMarkPaid applies MarkPaid to each id independently.
func (s *Service) BulkMarkPaid(ctx context.Context, ids []snowflake.ID) (*domain.BulkResult, error) {
	if len(ids) == 0 {
		return nil, apperror.Wrap(apperror.KindValidation, domain.ErrEmptyBulkRequest)
	}
	return s.bulk(ctx, ids, func(id snowflake.ID) error {
		_, err := s.MarkPaid(ctx, id)
		return err
	}), nil
}

// BulkCancel applies Cancel with one shared reason to each id independently.
func (s *Service) BulkCancel(ctx context.Context, ids []snowflake.ID, reason string) (*domain.BulkResult, error) {
	if len(ids) == 0 {
		return nil, apperror.Wrap(apperror.KindValidation, domain.ErrEmptyBulkRequest)
	}
	return s.bulk(ctx, ids, func(id snowflake.ID) error {
		_, err := s.Cancel(ctx, id, reason)
		return err
	}), nil
}

func (s *Service) bulk(ctx context.Context, ids []snowflake.ID, apply func(snowflake.ID) error) *domain.BulkResult {
	result := &domain.BulkResult{
		TotalRequested: len(ids),
		FailureReasons: map[string]string{},
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			result.TotalFailed++
			result.FailureReasons[id.String()] = "cancelled"
			continue
		}
		if err := apply(id); err != nil {
			result.TotalFailed++
			reason := apperror.CodeOf(err)
			if reason == "" {
				reason = err.Error()
			}
			result.FailureReasons[id.String()] = reason
			continue
		}
		result.TotalProcessed++
	}
	return result
}

// transitionError explains why a conditional update changed nothing.
func (s *Service) transitionError(ctx context.Context, id snowflake.ID) error {
	payout, err := s.repo.FindPayout(ctx, s.db, id)
	if err != nil {
		return apperror.FromStore(err)
	}
	if payout == nil {
		return apperror.Wrap(apperror.KindNotFound, domain.ErrPayoutNotFound)
	}
	return &apperror.Error{
		Kind:    apperror.KindState,
		Code:    domain.ErrPayoutNotPending.Error(),
		Message: "payout is " + string(payout.Status),
		Err:     domain.ErrPayoutNotPending,
	}
}

func (s *Service) recordTransition(ctx context.Context, id snowflake.ID, to domain.PayoutStatus, reason string) {
	s.metrics.IncPayoutTransition(string(domain.PayoutStatusPending), string(to))
	s.obsMetrics.RecordPayoutTransition(ctx, string(to))
	fields := []zap.Field{
		zap.String("payout_id", id.String()),
		zap.String("to", string(to)),
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	s.log.Info("affiliate payout transitioned", fields...)
}
