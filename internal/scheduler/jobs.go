package scheduler

import (
	"context"
	"fmt"

	"github.com/smallbiznis/payout/internal/notification"
	obsmetrics "github.com/smallbiznis/payout/internal/observability/metrics"
	settlementdomain "github.com/smallbiznis/payout/internal/settlement/domain"
	"go.uber.org/zap"
)

const (
	checkPaidOutWithoutEarning = "paid_out_without_earning"
	checkEarningWithoutPaidOut = "earning_without_paid_out"
)

func (s *Scheduler) SettlementJob(ctx context.Context, trigger settlementdomain.Trigger) (*settlementdomain.RunReport, error) {
	run := jobRunFromContext(ctx)
	report, err := s.settlement.RunSettlement(ctx, trigger)
	if err != nil {
		return nil, err
	}
	run.AddProcessed(report.Settled + report.Skipped)
	run.AddErrors(report.Failed)
	run.AddAmount(report.TotalAmount)
	run.SetMeta("scanned", report.Scanned)
	run.SetMeta("settled", report.Settled)
	run.SetMeta("skipped", report.Skipped)
	run.SetMeta("failed", report.Failed)
	if len(report.SkipReasons) > 0 {
		reasons := make(map[string]int, len(report.SkipReasons))
		for reason, n := range report.SkipReasons {
			reasons[string(reason)] = n
		}
		run.SetMeta("skip_reasons", reasons)
	}
	return report, nil
}

// EligibilityReportJob publishes counts of the candidate window by reason.
func (s *Scheduler) EligibilityReportJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	summary, err := s.settlement.EligibilitySummary(ctx)
	if err != nil {
		return fmt.Errorf("eligibility summary: %w", err)
	}
	run.AddProcessed(summary.Scanned)
	run.SetMeta("eligible", summary.Eligible)

	s.logger(ctx).Info("eligibility report",
		zap.Int("scanned", summary.Scanned),
		zap.Int("eligible", summary.Eligible),
		zap.Any("reasons", summary.Reasons),
		zap.Bool("truncated", summary.Truncated),
	)
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, notification.EventEligibilityReport, summary); err != nil {
			s.logSchedulerError(ctx, run, "eligibility report not published", err)
		}
	}
	return nil
}

// MaintenanceJob prunes old job runs and audits settlement invariants without
// repairing anything.
func (s *Scheduler) MaintenanceJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	cfg := s.payout.Get()

	if cfg.JobRunRetention > 0 {
		cutoff := s.clock.Now().Add(-cfg.JobRunRetention)
		pruned, err := s.jobRuns.DeleteStartedBefore(ctx, s.db, cutoff)
		if err != nil {
			s.logSchedulerError(ctx, run, "job run pruning failed", err)
		} else {
			run.AddProcessed(int(pruned))
			run.SetMeta("pruned_runs", pruned)
		}
	}

	metrics := obsmetrics.Settlement()
	checks := []struct {
		name  string
		count func() (int64, error)
	}{
		{checkPaidOutWithoutEarning, func() (int64, error) { return s.earnings.CountPaidOutWithoutEarning(ctx, s.db) }},
		{checkEarningWithoutPaidOut, func() (int64, error) { return s.earnings.CountEarningsWithoutPaidOut(ctx, s.db) }},
	}
	for _, check := range checks {
		n, err := check.count()
		if err != nil {
			s.logSchedulerError(ctx, run, "integrity check failed", err, zap.String("check", check.name))
			continue
		}
		metrics.SetIntegrityAnomalies(check.name, n)
		run.SetMeta(check.name, n)
		if n > 0 {
			s.logger(ctx).Warn("integrity anomaly", zap.String("check", check.name), zap.Int64("count", n))
		}
	}
	return ctx.Err()
}
