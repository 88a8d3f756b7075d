package service

import (
	"context"
	"time"

	"github.com/smallbiznis/payout/internal/apperror"
	"github.com/smallbiznis/payout/internal/config"
	"github.com/smallbiznis/payout/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Trigger runs a manual settlement through the same path as scheduled runs.
type Trigger interface {
	TriggerNow(ctx context.Context) (*domain.RunReport, error)
}

type AdminParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Service *Service
	Config  *config.PayoutConfigHolder
	Trigger Trigger `optional:"true"`
}

// Admin is the operator control surface for settlement.
type Admin struct {
	db      *gorm.DB
	log     *zap.Logger
	svc     *Service
	cfg     *config.PayoutConfigHolder
	trigger Trigger
}

func NewAdmin(p AdminParams) *Admin {
	return &Admin{
		db:      p.DB,
		log:     p.Log.Named("settlement.admin"),
		svc:     p.Service,
		cfg:     p.Config,
		trigger: p.Trigger,
	}
}

func (a *Admin) TriggerSettlement(ctx context.Context) (*domain.RunReport, error) {
	if a.trigger == nil {
		return nil, apperror.Wrap(apperror.KindState, domain.ErrSettlementTrigger)
	}
	return a.trigger.TriggerNow(ctx)
}

func (a *Admin) EligibilitySummary(ctx context.Context) (*domain.EligibilitySummary, error) {
	summary, err := a.svc.EligibilitySummary(ctx)
	if err != nil {
		return nil, apperror.FromStore(err)
	}
	return summary, nil
}

func (a *Admin) Config() domain.ConfigSnapshot {
	cfg := a.cfg.Get()
	return domain.ConfigSnapshot{
		WaitingPeriodDays:      cfg.WaitingPeriodDays,
		InstructorSharePercent: cfg.InstructorSharePercent,
		BatchSize:              cfg.BatchSize,
		SchedulingEnabled:      cfg.SchedulingEnabled,
		CommissionPercent:      cfg.CommissionPercent,
		CommissionEnabled:      cfg.CommissionEnabled,
		OversampleFactor:       cfg.OversampleFactor,
		MaxScanPages:           cfg.MaxScanPages,
		SettlementInterval:     cfg.SettlementInterval.String(),
		ReportInterval:         cfg.ReportInterval.String(),
		MaintenanceInterval:    cfg.MaintenanceInterval.String(),
	}
}

// Healthy pings the database without touching any table.
func (a *Admin) Healthy(ctx context.Context) bool {
	sqlDB, err := a.db.DB()
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		a.log.Warn("health check failed", zap.Error(err))
		return false
	}
	return true
}
