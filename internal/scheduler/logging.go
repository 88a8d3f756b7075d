package scheduler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	obscontext "github.com/smallbiznis/payout/internal/observability/context"
	obslogger "github.com/smallbiznis/payout/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payout/internal/observability/metrics"
	"github.com/smallbiznis/payout/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

type jobRun struct {
	job            string
	runID          string
	trigger        string
	batchSize      int
	startedAt      time.Time
	processedCount int
	errorCount     int
	totalAmount    decimal.Decimal
	metadata       map[string]any
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.processedCount += count
}

func (r *jobRun) AddErrors(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.errorCount += count
}

func (r *jobRun) IncError() {
	r.AddErrors(1)
}

func (r *jobRun) AddAmount(amount decimal.Decimal) {
	if r == nil {
		return
	}
	r.totalAmount = r.totalAmount.Add(amount)
}

func (r *jobRun) SetMeta(key string, value any) {
	if r == nil {
		return
	}
	if r.metadata == nil {
		r.metadata = map[string]any{}
	}
	r.metadata[key] = value
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job, trigger string, batchSize int) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:         job,
		runID:       s.genID.Generate().String(),
		trigger:     trigger,
		batchSize:   batchSize,
		startedAt:   s.clock.Now(),
		totalAmount: decimal.Zero,
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithRunID(ctx, run.runID)
	ctx = correlation.ContextWithCorrelationID(ctx, run.runID)
	ctx = s.withLogContext(ctx)
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return nil
}

func (s *Scheduler) withLogContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if kind, _ := obscontext.ActorFromContext(ctx); kind != "" {
		return ctx
	}
	return obscontext.WithActor(ctx, "system", "scheduler")
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("trigger", run.trigger),
		zap.Int("batch_size", run.batchSize),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("trigger", run.trigger),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processedCount),
		zap.Int("error_count", run.errorCount),
		zap.String("total_amount", run.totalAmount.StringFixed(2)),
	}
	log := s.logger(ctx)
	if run.errorCount > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logSchedulerError(ctx context.Context, run *jobRun, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	if run != nil {
		run.IncError()
	}
	job := ""
	if run != nil {
		job = run.job
	}
	baseFields := []zap.Field{
		zap.String("job", job),
		zap.String("error_type", obsmetrics.ClassifyJobReason(err)),
		zap.Error(err),
	}
	s.logger(s.withLogContext(ctx)).Error(msg, append(baseFields, fields...)...)
}
