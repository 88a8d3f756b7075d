package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-co-op/gocron/v2"
	"github.com/smallbiznis/payout/internal/apperror"
	"github.com/smallbiznis/payout/internal/clock"
	"github.com/smallbiznis/payout/internal/config"
	earningdomain "github.com/smallbiznis/payout/internal/earning/domain"
	"github.com/smallbiznis/payout/internal/lease"
	"github.com/smallbiznis/payout/internal/notification"
	obsmetrics "github.com/smallbiznis/payout/internal/observability/metrics"
	"github.com/smallbiznis/payout/internal/scheduler/domain"
	settlementdomain "github.com/smallbiznis/payout/internal/settlement/domain"
	settlementservice "github.com/smallbiznis/payout/internal/settlement/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	JobSettlement        = "settlement"
	JobEligibilityReport = "eligibility_report"
	JobMaintenance       = "maintenance"
)

var (
	ErrInvalidConfig     = errors.New("invalid_scheduler_config")
	ErrSettlementTimeout = errors.New("settlement_timed_out")
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Settlement *settlementservice.Service
	Payout     *config.PayoutConfigHolder
	JobRuns    domain.Repository
	Earnings   earningdomain.Repository
	Notifier   notification.Notifier `optional:"true"`
	Locker     *lease.Locker         `optional:"true"`
	Config     Config                `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	settlement *settlementservice.Service
	payout     *config.PayoutConfigHolder
	jobRuns    domain.Repository
	earnings   earningdomain.Repository
	notifier   notification.Notifier
	locker     *lease.Locker

	mu   sync.Mutex
	cron gocron.Scheduler
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Settlement == nil || p.Payout == nil || p.JobRuns == nil || p.Earnings == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		settlement: p.Settlement,
		payout:     p.Payout,
		jobRuns:    p.JobRuns,
		earnings:   p.Earnings,
		notifier:   p.Notifier,
		locker:     p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	trigger string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, trigger, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Settlement()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
		s.recordRun(ctx, run, err)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// recordRun persists the run history. Failures are logged only.
func (s *Scheduler) recordRun(ctx context.Context, run *jobRun, runErr error) {
	entry := &domain.JobRun{
		ID:             s.genID.Generate(),
		Job:            run.job,
		RunID:          run.runID,
		Trigger:        run.trigger,
		StartedAt:      run.startedAt,
		FinishedAt:     s.clock.Now(),
		ProcessedCount: run.processedCount,
		ErrorCount:     run.errorCount,
		TotalAmount:    run.totalAmount,
		Status:         domain.RunStatusSucceeded,
	}
	if runErr != nil {
		msg := runErr.Error()
		entry.Status = domain.RunStatusFailed
		entry.Error = &msg
	}
	if len(run.metadata) > 0 {
		entry.Metadata = datatypes.JSONMap(run.metadata)
	}
	if err := s.jobRuns.Insert(context.WithoutCancel(ctx), s.db, entry); err != nil {
		s.logger(ctx).Warn("job run not recorded", zap.String("run_id", run.runID), zap.Error(err))
	}
}

// RunOnce runs every job a single time in order.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	trigger := string(settlementdomain.TriggerSchedule)
	err = errors.Join(err, s.runSettlement(parent, trigger, nil))
	err = errors.Join(err, s.runEligibilityReport(parent, trigger))
	err = errors.Join(err, s.runMaintenance(parent, trigger))
	return err
}

// TriggerNow runs settlement immediately, regardless of schedulingEnabled.
func (s *Scheduler) TriggerNow(ctx context.Context) (*settlementdomain.RunReport, error) {
	var report *settlementdomain.RunReport
	err := s.runSettlement(ctx, string(settlementdomain.TriggerManual), &report)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, apperror.Transient(ErrSettlementTimeout.Error(), ErrSettlementTimeout)
	}
	return report, nil
}

func (s *Scheduler) runSettlement(parent context.Context, trigger string, out **settlementdomain.RunReport) error {
	batchSize := s.payout.Get().BatchSize
	return s.runJob(parent, JobSettlement, trigger, batchSize, s.cfg.SettlementTimeout, func(ctx context.Context) error {
		report, err := s.SettlementJob(ctx, settlementdomain.Trigger(trigger))
		if out != nil {
			*out = report
		}
		return err
	})
}

func (s *Scheduler) runEligibilityReport(parent context.Context, trigger string) error {
	return s.runJob(parent, JobEligibilityReport, trigger, s.payout.Get().ScanPageSize(), s.cfg.ReportTimeout, func(ctx context.Context) error {
		return s.withLease(ctx, JobEligibilityReport, s.EligibilityReportJob)
	})
}

func (s *Scheduler) runMaintenance(parent context.Context, trigger string) error {
	return s.runJob(parent, JobMaintenance, trigger, 0, s.cfg.MaintenanceTimeout, func(ctx context.Context) error {
		return s.withLease(ctx, JobMaintenance, s.MaintenanceJob)
	})
}

// withLease runs fn only on the instance holding the job lease for this tick.
func (s *Scheduler) withLease(ctx context.Context, name string, fn func(context.Context) error) error {
	token, ok, err := s.locker.TryAcquire(ctx, name, s.cfg.LeaseTTL)
	if err != nil {
		// a lease outage must not stop read-only jobs
		s.logger(ctx).Warn("lease unavailable, running without it", zap.String("lease", name), zap.Error(err))
		return fn(ctx)
	}
	if !ok {
		jobRunFromContext(ctx).SetMeta("skipped", "lease_held")
		s.logger(ctx).Debug("lease held elsewhere, skipping", zap.String("lease", name))
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), name, token); err != nil {
			s.logger(ctx).Warn("lease release failed", zap.String("lease", name), zap.Error(err))
		}
	}()
	return fn(ctx)
}

// Start registers the periodic jobs. Nothing is scheduled while
// schedulingEnabled is false; TriggerNow keeps working.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	cfg := s.payout.Get()
	if !cfg.SchedulingEnabled {
		s.log.Info("periodic scheduling disabled")
		return nil
	}

	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return err
	}
	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context, string) error
	}{
		{JobSettlement, cfg.SettlementInterval, func(ctx context.Context, trigger string) error {
			return s.runSettlement(ctx, trigger, nil)
		}},
		{JobEligibilityReport, cfg.ReportInterval, s.runEligibilityReport},
		{JobMaintenance, cfg.MaintenanceInterval, s.runMaintenance},
	}
	for _, job := range jobs {
		job := job
		_, err := cron.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(func() {
				if err := job.run(context.Background(), string(settlementdomain.TriggerSchedule)); err != nil {
					s.log.Warn("scheduled job failed", zap.String("job", job.name), zap.Error(err))
				}
			}),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = cron.Shutdown()
			return fmt.Errorf("register %s: %w", job.name, err)
		}
		s.log.Info("job scheduled", zap.String("job", job.name), zap.Duration("interval", job.interval))
	}

	cron.Start()
	s.cron = cron
	return nil
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return nil
	}
	err := s.cron.Shutdown()
	s.cron = nil
	return err
}

// ListRuns returns recent job runs, newest first.
func (s *Scheduler) ListRuns(ctx context.Context, job string, limit int) ([]domain.JobRun, error) {
	runs, err := s.jobRuns.ListRecent(ctx, s.db, domain.ListRunsRequest{Job: job, Limit: limit})
	if err != nil {
		return nil, apperror.FromStore(err)
	}
	return runs, nil
}
