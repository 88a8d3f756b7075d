package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/payout/internal/payment/domain"
	"github.com/smallbiznis/payout/internal/settlement/domain"
	"github.com/smallbiznis/payout/internal/settlement/eligibility"
	"go.uber.org/zap"
)

// Scan returns at most batchSize eligible payments, oldest first.
func (s *Service) Scan(ctx context.Context) ([]paymentdomain.Payment, error) {
	cfg := s.cfg.Get()
	limit := cfg.BatchSize
	out := make([]paymentdomain.Payment, 0, limit)
	if limit <= 0 {
		return out, nil
	}

	_, err := s.walkCandidates(ctx, func(p paymentdomain.Payment, d domain.Decision) bool {
		if d.Eligible {
			out = append(out, p)
		}
		return len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EligibilitySummary counts the candidate window by decision reason.
func (s *Service) EligibilitySummary(ctx context.Context) (*domain.EligibilitySummary, error) {
	summary := &domain.EligibilitySummary{Reasons: map[domain.Reason]int{}}
	truncated, err := s.walkCandidates(ctx, func(_ paymentdomain.Payment, d domain.Decision) bool {
		summary.Scanned++
		summary.Reasons[d.Reason]++
		if d.Eligible {
			summary.Eligible++
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	summary.Truncated = truncated

	paidOut, err := s.payments.CountPaidOut(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if paidOut > 0 {
		summary.Reasons[domain.ReasonAlreadyPaidOut] += int(paidOut)
	}
	return summary, nil
}

// walkCandidates evaluates oversampled candidate pages until visit returns
// false, a page comes back short, or the page budget runs out. It reports
// true only in the last case, when more candidates may remain unvisited.
func (s *Service) walkCandidates(ctx context.Context, visit func(paymentdomain.Payment, domain.Decision) bool) (bool, error) {
	cfg := s.cfg.Get()
	pageSize := cfg.ScanPageSize()
	maxPages := cfg.MaxScanPages
	if maxPages <= 0 {
		maxPages = 1
	}
	waiting := cfg.WaitingPeriod()
	now := s.clock.Now()

	offset := 0
	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		rows, err := s.payments.ListSettlementCandidates(ctx, s.db, pageSize, offset)
		if err != nil {
			return false, err
		}
		if len(rows) == 0 {
			return false, nil
		}

		ids := make([]snowflake.ID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		refunds, err := s.payments.ListRefundsByPaymentIDs(ctx, s.db, ids)
		if err != nil {
			// the processor re-checks refunds strictly inside its transaction
			s.logger(ctx).Warn("refund load failed, scanning page without refunds",
				zap.Int("page", page),
				zap.Int("rows", len(rows)),
				zap.Error(err),
			)
			refunds = nil
		}
		settled, err := s.earnings.ExistingPaymentIDs(ctx, s.db, ids)
		if err != nil {
			return false, err
		}

		for _, row := range rows {
			_, exists := settled[row.ID]
			decision := eligibility.Evaluate(eligibility.Input{
				Payment:       row,
				Refunds:       refunds[row.ID],
				EarningExists: exists,
			}, now, waiting)
			if !visit(row, decision) {
				return false, nil
			}
		}

		if len(rows) < pageSize {
			return false, nil
		}
		offset += len(rows)
	}
	return true, nil
}
